//go:build integration
// +build integration

package integration

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-dev/taskflow/internal/api"
	"github.com/taskflow-dev/taskflow/internal/auth"
	"github.com/taskflow-dev/taskflow/internal/config"
	"github.com/taskflow-dev/taskflow/internal/logger"
	"github.com/taskflow-dev/taskflow/internal/workspace"
	"github.com/taskflow-dev/taskflow/pkg/client"
)

func init() {
	logger.Init("error", false)
}

func setupTestServer(t *testing.T) (*httptest.Server, *workspace.Workspace) {
	t.Helper()
	dir := t.TempDir()

	ws, err := workspace.Open(dir, nil, 200*time.Millisecond, 500, zerolog.Nop())
	require.NoError(t, err)

	cfg := &config.OpsConfig{
		Task:    config.TaskConfig{StopGrace: 200 * time.Millisecond, HistoryCap: 500},
		LogTail: config.LogTailConfig{PollInterval: 50 * time.Millisecond, AppearGrace: time.Second, RestTailLines: 200},
		Metrics: config.MetricsConfig{Enabled: false},
	}
	authMgr := auth.NewManager(dir)
	srv := api.NewServer(cfg, ws, authMgr, filepath.Join(dir, "taskflow.log"))
	srv.Start()

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Stop()
		ts.Close()
		ws.Shutdown(context.Background())
	})

	return ts, ws
}

func writeTaskConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestTaskLifecycle_CreateQueueAndRunTask(t *testing.T) {
	ts, _ := setupTestServer(t)
	c := client.New(ts.URL)
	ctx := context.Background()

	cfgPath := writeTaskConfig(t, "- name: hello\n  command: echo ok\n")

	desc, err := c.CreateQueue(ctx, "gpu-box", cfgPath)
	require.NoError(t, err)
	require.NotEmpty(t, desc.ID)

	added, rejected, err := c.LoadNewTasks(ctx, desc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, added)
	assert.Empty(t, rejected)

	tasks, err := c.QueueTasks(ctx, desc.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, c.RunTask(ctx, tasks[0].ID))

	deadline := time.Now().Add(3 * time.Second)
	var finished []client.Task
	for time.Now().Before(deadline) {
		finished, err = c.QueueTasks(ctx, desc.ID)
		require.NoError(t, err)
		if finished[0].Status == "completed" || finished[0].Status == "failed" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, "completed", finished[0].Status)
}

func TestTaskLifecycle_DuplicateQueueConfigRejected(t *testing.T) {
	ts, _ := setupTestServer(t)
	c := client.New(ts.URL)
	ctx := context.Background()

	cfgPath := writeTaskConfig(t, "- name: hello\n  command: echo ok\n")

	_, err := c.CreateQueue(ctx, "gpu-box", cfgPath)
	require.NoError(t, err)

	_, err = c.CreateQueue(ctx, "gpu-box-2", cfgPath)
	assert.Error(t, err)
}

func TestTaskLifecycle_QueueStatusAggregatesBusyDevices(t *testing.T) {
	ts, _ := setupTestServer(t)
	c := client.New(ts.URL)
	ctx := context.Background()

	cfgPath := writeTaskConfig(t, "- name: gpu-task\n  command: CUDA_VISIBLE_DEVICES=0 sleep 1\n")
	desc, err := c.CreateQueue(ctx, "gpu-box", cfgPath)
	require.NoError(t, err)

	_, _, err = c.LoadNewTasks(ctx, desc.ID)
	require.NoError(t, err)

	tasks, err := c.QueueTasks(ctx, desc.ID)
	require.NoError(t, err)
	require.NoError(t, c.RunTask(ctx, tasks[0].ID))

	deadline := time.Now().Add(time.Second)
	var status *client.QueueStatus
	for time.Now().Before(deadline) {
		status, err = c.GetQueueStatus(ctx)
		require.NoError(t, err)
		if len(status.BusyGPUs) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Contains(t, status.BusyGPUs, 0)

	_ = c.StopTask(ctx, tasks[0].ID)
}

func TestAdminEndpoints_StopAll(t *testing.T) {
	ts, _ := setupTestServer(t)
	c := client.New(ts.URL)
	ctx := context.Background()

	cfgPath := writeTaskConfig(t, "- name: long\n  command: sleep 5\n")
	desc, err := c.CreateQueue(ctx, "gpu-box", cfgPath)
	require.NoError(t, err)
	_, _, err = c.LoadNewTasks(ctx, desc.ID)
	require.NoError(t, err)

	tasks, err := c.QueueTasks(ctx, desc.ID)
	require.NoError(t, err)
	require.NoError(t, c.RunTask(ctx, tasks[0].ID))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, c.StopAll(ctx))
}
