package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusSkipped, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusStopped, true},
		{StatusCanceled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsTerminal())
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in       string
		wantStat Status
		wantOK   bool
	}{
		{"", StatusPending, true},
		{"pending", StatusPending, true},
		{"skipped", StatusSkipped, true},
		{"bogus", StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseStatus(tt.in)
			assert.Equal(t, tt.wantStat, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, CanTransitionTo(StatusPending, StatusRunning))
	assert.True(t, CanTransitionTo(StatusPending, StatusCanceled))
	assert.True(t, CanTransitionTo(StatusRunning, StatusCompleted))
	assert.True(t, CanTransitionTo(StatusRunning, StatusFailed))
	assert.True(t, CanTransitionTo(StatusRunning, StatusStopped))
	assert.True(t, CanTransitionTo(StatusFailed, StatusPending))
	assert.False(t, CanTransitionTo(StatusCompleted, StatusRunning))
	assert.False(t, CanTransitionTo(StatusCanceled, StatusPending))
	assert.False(t, CanTransitionTo(StatusSkipped, StatusRunning))
}

func TestTransition(t *testing.T) {
	tk := &Task{Status: StatusPending}

	require := assert.New(t)
	require.NoError(Transition(tk, StatusRunning))
	require.Equal(StatusRunning, tk.Status)

	err := Transition(tk, StatusPending)
	require.ErrorIs(err, ErrInvalidTransition)
	require.Equal(StatusRunning, tk.Status)
}
