package handlers

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/taskflow-dev/taskflow/internal/logtail"
	"github.com/taskflow-dev/taskflow/internal/workspace"
)

// AdminHandler implements the workspace-wide operational endpoints:
// stop-all, the aggregate queue-status view, the server's own log
// tail, and a full manifest reload.
type AdminHandler struct {
	ws          *workspace.Workspace
	mainLogPath string
	shutdownCtx func() (context.Context, context.CancelFunc)
}

// NewAdminHandler builds an AdminHandler. mainLogPath is the server
// process's own log file (distinct from any task's log), written by
// the web subcommand.
func NewAdminHandler(ws *workspace.Workspace, mainLogPath string) *AdminHandler {
	return &AdminHandler{
		ws:          ws,
		mainLogPath: mainLogPath,
		shutdownCtx: func() (context.Context, context.CancelFunc) { return context.WithTimeout(context.Background(), 30*time.Second) },
	}
}

// StopAll handles POST /api/stop-all: stops auto-dispatch, cancels
// every pending task, and force-stops every running task across all
// queues.
func (h *AdminHandler) StopAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.shutdownCtx()
	defer cancel()
	h.ws.Shutdown(ctx)
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

type queueStatusEntry struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	AutoRunning  bool   `json:"auto_running"`
	PendingCount int    `json:"pending_count"`
	RunningCount int    `json:"running_count"`
}

type queueStatusResponse struct {
	Queues   []queueStatusEntry `json:"queues"`
	BusyGPUs map[int]string     `json:"busy_gpus"`
}

// QueueStatus handles GET /api/queue-status: an aggregate view across
// every queue, used for the dashboard's polling fallback when
// /ws/status is unavailable.
func (h *AdminHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	infos := h.ws.ListQueues()
	entries := make([]queueStatusEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, queueStatusEntry{
			ID:           info.ID,
			Name:         info.Name,
			AutoRunning:  info.Status.AutoRunning,
			PendingCount: info.Status.PendingCount,
			RunningCount: info.Status.RunningCount,
		})
	}
	respondJSON(w, http.StatusOK, queueStatusResponse{Queues: entries, BusyGPUs: h.ws.GlobalBusyDevices()})
}

// MainLog handles GET /api/main-log?lines=N: tails the server
// process's own log file, mirroring the task log reader's
// missing-file placeholder behaviour.
func (h *AdminHandler) MainLog(w http.ResponseWriter, r *http.Request) {
	lines := 200
	if v := r.URL.Query().Get("lines"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			lines = n
		}
	}

	if h.mainLogPath == "" {
		respondJSON(w, http.StatusOK, map[string]any{"lines": []string{"(no server log file configured)"}})
		return
	}
	data, err := os.ReadFile(h.mainLogPath)
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"lines": []string{"(log file not yet available)"}})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"lines": logtail.LastNLines(logtail.Sanitize(string(data)), lines)})
}

// Reload handles POST /api/reload: re-runs Load on every registered
// queue, additively appending any new entries from each queue's
// configuration file.
func (h *AdminHandler) Reload(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]any)
	for _, info := range h.ws.ListQueues() {
		q, ok := h.ws.GetQueue(info.ID)
		if !ok {
			continue
		}
		added, rejected, err := q.Load()
		if err != nil {
			results[info.ID] = map[string]any{"error": err.Error()}
			continue
		}
		results[info.ID] = map[string]any{"added": added, "rejected": rejected}
	}
	respondJSON(w, http.StatusOK, results)
}
