package logtail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-dev/taskflow/internal/task"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no cr", "line one\nline two\n", "line one\nline two\n"},
		{"progress bar", "10%\r50%\r100%\ndone\n", "100%\ndone\n"},
		{"trailing cr only", "abc\r", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestLastNLines(t *testing.T) {
	got := LastNLines("a\nb\nc\nd\n", 2)
	assert.Equal(t, []string{"c", "d"}, got)

	got = LastNLines("a\nb\n", 10)
	assert.Equal(t, []string{"a", "b"}, got)

	assert.Empty(t, LastNLines("", 5))
}

func TestTailer_BacklogThenStreamThenEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.log")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	terminal := false
	tailer := New(path, 10*time.Millisecond, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	frames := tailer.Run(ctx, func() (task.Status, bool) {
		if terminal {
			return task.StatusCompleted, true
		}
		return task.StatusRunning, false
	})

	first := <-frames
	require.Equal(t, FrameLog, first.Type)
	assert.Equal(t, "hello\n", first.Data)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("world\n")
	require.NoError(t, err)
	f.Close()

	second := <-frames
	require.Equal(t, FrameLog, second.Type)
	assert.Equal(t, "world\n", second.Data)

	terminal = true
	var end Frame
	for fr := range frames {
		end = fr
	}
	assert.Equal(t, FrameEnd, end.Type)
	assert.Equal(t, task.StatusCompleted, end.Status)
}

func TestTailer_AppearGraceExpires(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "never.log")

	tailer := New(path, 5*time.Millisecond, 20*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frames := tailer.Run(ctx, func() (task.Status, bool) { return task.StatusRunning, false })

	var got []Frame
	for fr := range frames {
		got = append(got, fr)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, FrameError, got[len(got)-1].Type)
}
