package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskflow-dev/taskflow/internal/config"
	"github.com/taskflow-dev/taskflow/internal/queue"
	"github.com/taskflow-dev/taskflow/internal/task"
	"github.com/taskflow-dev/taskflow/internal/workspace"
)

// QueueHandler implements the queue-scoped REST endpoints.
type QueueHandler struct {
	ws *workspace.Workspace
}

func NewQueueHandler(ws *workspace.Workspace) *QueueHandler { return &QueueHandler{ws: ws} }

// List handles GET /api/queues.
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.ws.ListQueues())
}

type createQueueRequest struct {
	Name     string `json:"name"`
	YAMLPath string `json:"yaml_path"`
}

// Create handles POST /api/queues.
func (h *QueueHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createQueueRequest
	if err := decodeJSON(r, &req); err != nil || req.Name == "" || req.YAMLPath == "" {
		respondError(w, http.StatusBadRequest, "name and yaml_path are required")
		return
	}
	desc, err := h.ws.AddQueue(req.Name, req.YAMLPath)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, desc)
}

// Delete handles DELETE /api/queues/{qid}.
func (h *QueueHandler) Delete(w http.ResponseWriter, r *http.Request) {
	qid := chi.URLParam(r, "qid")
	if err := h.ws.RemoveQueue(qid); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Tasks handles GET /api/queues/{qid}/tasks.
func (h *QueueHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	qid := chi.URLParam(r, "qid")
	q, ok := h.ws.GetQueue(qid)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown queue id")
		return
	}
	respondJSON(w, http.StatusOK, q.Tasks())
}

// History handles GET /api/queues/{qid}/history.
func (h *QueueHandler) History(w http.ResponseWriter, r *http.Request) {
	qid := chi.URLParam(r, "qid")
	q, ok := h.ws.GetQueue(qid)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown queue id")
		return
	}
	respondJSON(w, http.StatusOK, q.History().All())
}

type queueIDRequest struct {
	QueueID string `json:"queue_id"`
}

func (h *QueueHandler) resolveQueue(w http.ResponseWriter, r *http.Request) (*queue.Queue, bool) {
	var req queueIDRequest
	if err := decodeJSON(r, &req); err != nil || req.QueueID == "" {
		respondError(w, http.StatusBadRequest, "queue_id is required")
		return nil, false
	}
	q, ok := h.ws.GetQueue(req.QueueID)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown queue id")
		return nil, false
	}
	return q, true
}

// StartQueue handles POST /api/start-queue: enables auto-dispatch.
func (h *QueueHandler) StartQueue(w http.ResponseWriter, r *http.Request) {
	q, ok := h.resolveQueue(w, r)
	if !ok {
		return
	}
	q.StartAuto()
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// StopQueue handles POST /api/stop-queue: disables auto-dispatch
// without interrupting a task already running.
func (h *QueueHandler) StopQueue(w http.ResponseWriter, r *http.Request) {
	q, ok := h.resolveQueue(w, r)
	if !ok {
		return
	}
	q.StopAuto()
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// CheckYAML handles GET /api/check-yaml?queue_id=: previews what Load
// would do without mutating the queue.
func (h *QueueHandler) CheckYAML(w http.ResponseWriter, r *http.Request) {
	qid := r.URL.Query().Get("queue_id")
	q, ok := h.ws.GetQueue(qid)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown queue id")
		return
	}
	preview, err := q.CheckUpdates()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, preview)
}

// LoadNewTasks handles POST /api/load-new-tasks: reloads the
// configuration file additively.
func (h *QueueHandler) LoadNewTasks(w http.ResponseWriter, r *http.Request) {
	q, ok := h.resolveQueue(w, r)
	if !ok {
		return
	}
	added, rejected, err := q.Load()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"added": added, "rejected": rejected})
}

type selectedTask struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Note    string            `json:"note,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

type loadSelectedRequest struct {
	QueueID string         `json:"queue_id"`
	Tasks   []selectedTask `json:"tasks"`
}

// LoadSelectedTasks handles POST /api/load-selected-tasks: loads only
// the tasks the caller explicitly picked, bypassing the configuration
// file (grounded on original_source's load_selected_tasks).
func (h *QueueHandler) LoadSelectedTasks(w http.ResponseWriter, r *http.Request) {
	var req loadSelectedRequest
	if err := decodeJSON(r, &req); err != nil || req.QueueID == "" {
		respondError(w, http.StatusBadRequest, "queue_id and tasks are required")
		return
	}
	q, ok := h.ws.GetQueue(req.QueueID)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown queue id")
		return
	}

	entries := make([]config.Entry, 0, len(req.Tasks))
	for _, t := range req.Tasks {
		if t.Name == "" || t.Command == "" {
			continue
		}
		entries = append(entries, config.Entry{
			Name:             t.Name,
			Command:          t.Command,
			Status:           task.StatusPending,
			StatusRecognised: true,
			Note:             t.Note,
			Env:              t.Env,
		})
	}
	added, rejected := q.LoadEntries(entries)
	respondJSON(w, http.StatusOK, map[string]any{"added": added, "rejected": rejected})
}
