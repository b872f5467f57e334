package procdiscovery

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarker_WriteReadRemoveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, WriteMarker(dir, 8080))

	m, ok := ReadMarker(dir)
	require.True(t, ok)
	assert.Equal(t, 8080, m.Port)
	assert.Equal(t, dir, m.Workspace)

	require.NoError(t, RemoveMarker(dir))
	_, ok = ReadMarker(dir)
	assert.False(t, ok)
}

func TestRemoveMarker_MissingFileIsNotError(t *testing.T) {
	assert.NoError(t, RemoveMarker(t.TempDir()))
}

func TestIsWebInstance(t *testing.T) {
	assert.True(t, isWebInstance([]string{"/usr/local/bin/taskflow", "web", "-w", "/data/ws"}))
	assert.False(t, isWebInstance([]string{"/usr/local/bin/taskflow", "status"}))
	assert.False(t, isWebInstance([]string{"/usr/local/bin/other", "web"}))
}

func TestWorkspaceArg(t *testing.T) {
	assert.Equal(t, "/data/ws", workspaceArg([]string{"taskflow", "web", "-w", "/data/ws"}))
	assert.Equal(t, "/data/ws", workspaceArg([]string{"taskflow", "web", "--workspace=/data/ws"}))
	assert.Equal(t, "", workspaceArg([]string{"taskflow", "web"}))
}

func TestIsAlive(t *testing.T) {
	assert.True(t, IsAlive(1))
	assert.False(t, IsAlive(0))
	assert.False(t, IsAlive(-1))
}

func TestWaitForExit_ReturnsOnceChildExits(t *testing.T) {
	cmd := exec.Command("sleep", "0.2")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, WaitForExit(ctx, pid, 20*time.Millisecond))
	<-done
}

func TestWaitForExit_RespectsContextCancellation(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := WaitForExit(ctx, cmd.Process.Pid, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
