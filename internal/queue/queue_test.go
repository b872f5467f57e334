package queue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-dev/taskflow/internal/task"
)

type noopReserver struct{}

func (noopReserver) Reserve(devices []int, queueID, taskID string) error { return nil }
func (noopReserver) Release(taskID string)                              {}

func newTestQueue(t *testing.T, configYAML string) *Queue {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "tasks.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0o644))

	q, err := New("queue_test", "test", configPath, noopReserver{}, nil, nil, 200*time.Millisecond, 500, zerolog.Nop())
	require.NoError(t, err)
	return q
}

func TestQueue_SequentialAutoRun(t *testing.T) {
	q := newTestQueue(t, `
- name: T1
  command: echo a
- name: T2
  command: echo b
`)
	added, rejected, err := q.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2"}, added)
	assert.Empty(t, rejected)

	q.StartAuto()

	require.Eventually(t, func() bool {
		recs := q.History().All()
		return len(recs) == 2
	}, 5*time.Second, 10*time.Millisecond)

	recs := q.History().All()
	assert.Equal(t, "T1", recs[0].Name)
	assert.Equal(t, "T2", recs[1].Name)
	assert.Equal(t, task.StatusCompleted, recs[0].Status)
	assert.Equal(t, task.StatusCompleted, recs[1].Status)

	for _, rec := range recs {
		data, err := os.ReadFile(rec.LogPath)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}
}

func TestQueue_ForcedStop(t *testing.T) {
	q := newTestQueue(t, `
- name: T1
  command: sleep 60
`)
	_, _, err := q.Load()
	require.NoError(t, err)

	tasks := q.Tasks()
	require.Len(t, tasks, 1)
	id := tasks[0].ID

	require.NoError(t, q.StartTask(id))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, q.StopTask(id))

	require.Eventually(t, func() bool {
		recs := q.History().All()
		return len(recs) == 1
	}, 4*time.Second, 10*time.Millisecond)

	recs := q.History().All()
	assert.Equal(t, task.StatusStopped, recs[0].Status)
}

func TestQueue_AdditiveReload(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "tasks.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
- name: A
  command: echo a
- name: B
  command: echo b
`), 0o644))

	q, err := New("q", "test", configPath, noopReserver{}, nil, nil, 200*time.Millisecond, 500, zerolog.Nop())
	require.NoError(t, err)

	added, rejected, err := q.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, added)
	assert.Empty(t, rejected)

	require.NoError(t, os.WriteFile(configPath, []byte(`
- name: A
  command: echo a
- name: B
  command: echo b
- name: C
  command: echo c
- name: A
  command: echo a-again
`), 0o644))

	added, rejected, err = q.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, added)
	assert.Equal(t, []string{"A", "B", "A"}, rejected)

	names := make([]string, 0)
	for _, tk := range q.Tasks() {
		names = append(names, tk.Name)
	}
	assert.Equal(t, []string{"A", "B", "C"}, names)
}

func TestQueue_RetryThenStart(t *testing.T) {
	q := newTestQueue(t, `
- name: T1
  command: exit 1
`)
	_, _, err := q.Load()
	require.NoError(t, err)

	id := q.Tasks()[0].ID
	require.NoError(t, q.StartTask(id))

	require.Eventually(t, func() bool {
		tk, _ := q.GetTask(id)
		return tk.Status == task.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, q.Retry(id))
	tk, _ := q.GetTask(id)
	assert.Equal(t, task.StatusPending, tk.Status)
	assert.Nil(t, tk.StartedAt)

	require.NoError(t, q.StartTask(id))
	require.Eventually(t, func() bool {
		tk, _ := q.GetTask(id)
		return tk.Status == task.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)
}
