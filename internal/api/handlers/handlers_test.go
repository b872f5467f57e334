package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-dev/taskflow/internal/workspace"
)

func writeConfig(t *testing.T, dir, file, yaml string) string {
	t.Helper()
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	w, err := workspace.Open(t.TempDir(), nil, 200*time.Millisecond, 500, zerolog.Nop())
	require.NoError(t, err)
	return w
}

func TestQueueHandler_CreateListDeleteTasks(t *testing.T) {
	w := newTestWorkspace(t)
	h := NewQueueHandler(w)
	cfgPath := writeConfig(t, t.TempDir(), "tasks.yaml", "- name: T1\n  command: echo hi\n")

	body, _ := json.Marshal(createQueueRequest{Name: "gpu-box", YAMLPath: cfgPath})
	req := httptest.NewRequest(http.MethodPost, "/api/queues", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var desc struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &desc))
	require.NotEmpty(t, desc.ID)

	listReq := httptest.NewRequest(http.MethodGet, "/api/queues", nil)
	listRec := httptest.NewRecorder()
	h.List(listRec, listReq)
	assert.Equal(t, http.StatusOK, listRec.Code)
	assert.Contains(t, listRec.Body.String(), desc.ID)

	// queue has no tasks yet until Load() runs; load it then list tasks.
	q, ok := w.GetQueue(desc.ID)
	require.True(t, ok)
	_, _, err := q.Load()
	require.NoError(t, err)

	tasksReq := httptest.NewRequest(http.MethodGet, "/api/queues/"+desc.ID+"/tasks", nil)
	tasksReq = withURLParam(tasksReq, "qid", desc.ID)
	tasksRec := httptest.NewRecorder()
	h.Tasks(tasksRec, tasksReq)
	assert.Equal(t, http.StatusOK, tasksRec.Code)
	assert.Contains(t, tasksRec.Body.String(), "T1")
}

func TestQueueHandler_CreateRejectsDuplicateConfig(t *testing.T) {
	w := newTestWorkspace(t)
	h := NewQueueHandler(w)
	cfgPath := writeConfig(t, t.TempDir(), "tasks.yaml", "- name: T1\n  command: echo hi\n")

	body, _ := json.Marshal(createQueueRequest{Name: "gpu-box", YAMLPath: cfgPath})
	h.Create(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/queues", bytes.NewReader(body)))

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/queues", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTaskHandler_RunRetryLifecycle(t *testing.T) {
	w := newTestWorkspace(t)
	cfgPath := writeConfig(t, t.TempDir(), "tasks.yaml", "- name: T1\n  command: echo hi\n")
	desc, err := w.AddQueue("gpu-box", cfgPath)
	require.NoError(t, err)
	q, _ := w.GetQueue(desc.ID)
	_, _, err = q.Load()
	require.NoError(t, err)

	var tid string
	for _, task := range q.Tasks() {
		tid = task.ID
	}
	require.NotEmpty(t, tid)

	th := NewTaskHandler(w)
	runReq := httptest.NewRequest(http.MethodPost, "/api/tasks/"+tid+"/run", nil)
	runReq = withURLParam(runReq, "tid", tid)
	runRec := httptest.NewRecorder()
	th.Run(runRec, runReq)
	assert.Equal(t, http.StatusOK, runRec.Code)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := q.TaskStatus(tid); st.IsTerminal() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	retryReq := httptest.NewRequest(http.MethodPost, "/api/tasks/"+tid+"/retry", nil)
	retryReq = withURLParam(retryReq, "tid", tid)
	retryRec := httptest.NewRecorder()
	th.Retry(retryRec, retryReq)
	assert.Equal(t, http.StatusOK, retryRec.Code)
}

func TestAdminHandler_QueueStatus(t *testing.T) {
	w := newTestWorkspace(t)
	cfgPath := writeConfig(t, t.TempDir(), "tasks.yaml", "- name: T1\n  command: echo hi\n")
	_, err := w.AddQueue("gpu-box", cfgPath)
	require.NoError(t, err)

	ah := NewAdminHandler(w, "")
	rec := httptest.NewRecorder()
	ah.QueueStatus(rec, httptest.NewRequest(http.MethodGet, "/api/queue-status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gpu-box")
}
