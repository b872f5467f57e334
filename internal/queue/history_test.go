package queue

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-dev/taskflow/internal/task"
)

func TestHistory_AppendAndRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".history.json")

	h := NewHistory(path, 10)
	require.NoError(t, h.Load())

	require.NoError(t, h.Append(&task.HistoryRecord{ID: "1", Name: "T1", Status: task.StatusCompleted}))
	require.NoError(t, h.Append(&task.HistoryRecord{ID: "2", Name: "T2", Status: task.StatusFailed}))

	reloaded := NewHistory(path, 10)
	require.NoError(t, reloaded.Load())

	recs := reloaded.All()
	require.Len(t, recs, 2)
	assert.Equal(t, "T1", recs[0].Name)
	assert.Equal(t, "T2", recs[1].Name)
}

func TestHistory_EvictsOverCap(t *testing.T) {
	dir := t.TempDir()
	h := NewHistory(filepath.Join(dir, ".history.json"), 2)

	require.NoError(t, h.Append(&task.HistoryRecord{ID: "1", Name: "T1"}))
	require.NoError(t, h.Append(&task.HistoryRecord{ID: "2", Name: "T2"}))
	require.NoError(t, h.Append(&task.HistoryRecord{ID: "3", Name: "T3"}))

	recs := h.All()
	require.Len(t, recs, 2)
	assert.Equal(t, "T2", recs[0].Name)
	assert.Equal(t, "T3", recs[1].Name)
}

func TestHistory_Names(t *testing.T) {
	dir := t.TempDir()
	h := NewHistory(filepath.Join(dir, ".history.json"), 10)
	require.NoError(t, h.Append(&task.HistoryRecord{ID: "1", Name: "T1"}))

	names := h.Names()
	assert.True(t, names["T1"])
	assert.False(t, names["T2"])
}

func TestHistory_LoadMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	h := NewHistory(filepath.Join(dir, "nope", ".history.json"), 10)
	require.NoError(t, h.Load())
	assert.Empty(t, h.All())
}
