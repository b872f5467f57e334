package handlers

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taskflow-dev/taskflow/internal/logtail"
	"github.com/taskflow-dev/taskflow/internal/queue"
	"github.com/taskflow-dev/taskflow/internal/task"
	"github.com/taskflow-dev/taskflow/internal/workspace"
)

// TaskHandler implements the task-scoped REST endpoints: the
// run/stop/retry lifecycle actions and the plain-HTTP log reader.
type TaskHandler struct {
	ws *workspace.Workspace
}

func NewTaskHandler(ws *workspace.Workspace) *TaskHandler { return &TaskHandler{ws: ws} }

// Run handles POST /api/tasks/{tid}/run.
func (h *TaskHandler) Run(w http.ResponseWriter, r *http.Request) {
	tid := chi.URLParam(r, "tid")
	_, q, ok := h.ws.FindTask(tid)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown task id")
		return
	}
	if err := q.StartTask(tid); err != nil {
		writeTaskActionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Stop handles POST /api/tasks/{tid}/stop.
func (h *TaskHandler) Stop(w http.ResponseWriter, r *http.Request) {
	tid := chi.URLParam(r, "tid")
	_, q, ok := h.ws.FindTask(tid)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown task id")
		return
	}
	if err := q.StopTask(tid); err != nil {
		writeTaskActionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Retry handles POST /api/tasks/{tid}/retry.
func (h *TaskHandler) Retry(w http.ResponseWriter, r *http.Request) {
	tid := chi.URLParam(r, "tid")
	_, q, ok := h.ws.FindTask(tid)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown task id")
		return
	}
	if err := q.Retry(tid); err != nil {
		writeTaskActionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeTaskActionError(w http.ResponseWriter, err error) {
	var conflict *queue.DeviceConflictError
	switch {
	case errors.As(err, &conflict):
		respondError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, task.ErrTaskNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, task.ErrNotPending), errors.Is(err, task.ErrNotRunning), errors.Is(err, task.ErrNotRetriable):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// Logs handles GET /api/logs/{tid}?lines=N, the plain-HTTP counterpart
// of /ws/logs/{tid}: a point-in-time tail rather than a live stream.
// A missing log file yields an empty-body success with a placeholder
// string rather than a 404, since "no output yet" isn't an error.
func (h *TaskHandler) Logs(w http.ResponseWriter, r *http.Request) {
	tid := chi.URLParam(r, "tid")

	var logPath string
	if t, _, ok := h.ws.FindTask(tid); ok {
		logPath = t.LogPath
	} else if rec, _, ok := h.ws.FindInHistory(tid); ok {
		logPath = rec.LogPath
	} else {
		respondError(w, http.StatusNotFound, "unknown task id")
		return
	}

	lines := 200
	if v := r.URL.Query().Get("lines"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			lines = n
		}
	}

	content, err := readLogTail(logPath, lines)
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"lines": []string{"(log file not yet available)"}})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"lines": content})
}

func readLogTail(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return logtail.LastNLines(logtail.Sanitize(string(data)), n), nil
}
