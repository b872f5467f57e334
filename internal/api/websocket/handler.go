package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/taskflow-dev/taskflow/internal/logger"
	"github.com/taskflow-dev/taskflow/internal/logtail"
	"github.com/taskflow-dev/taskflow/internal/task"
	"github.com/taskflow-dev/taskflow/internal/workspace"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves both WebSocket endpoints: /ws/logs/{tid} (one
// Tailer per connection) and /ws/status (fed by the shared StatusHub).
type Handler struct {
	ws           *workspace.Workspace
	statusHub    *StatusHub
	pollInterval time.Duration
	appearGrace  time.Duration
}

// NewHandler builds a Handler over ws; pollInterval/appearGrace tune
// every log tailer this handler spawns.
func NewHandler(ws *workspace.Workspace, statusHub *StatusHub, pollInterval, appearGrace time.Duration) *Handler {
	return &Handler{ws: ws, statusHub: statusHub, pollInterval: pollInterval, appearGrace: appearGrace}
}

// ServeStatusWS upgrades the connection and registers it with the
// status hub; the hub pushes every subsequent delta.
func (h *Handler) ServeStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to upgrade status websocket")
		return
	}

	client := NewStatusClient(h.statusHub, conn)
	h.statusHub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	logger.Info().Str("client_id", client.ID).Str("remote_addr", r.RemoteAddr).Msg("status websocket client connected")
}

// ServeLogsWS streams the log of task {tid} per the backlog-then-
// stream-then-end protocol, using one Tailer exclusively owned by
// this connection.
func (h *Handler) ServeLogsWS(w http.ResponseWriter, r *http.Request) {
	tid := chi.URLParam(r, "tid")
	logPath, statusFn, found := h.resolveLogSource(tid)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to upgrade logs websocket")
		return
	}
	defer conn.Close()

	if !found {
		_ = conn.WriteJSON(logtail.Frame{Type: logtail.FrameError, Data: "unknown task id"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	tailer := logtail.New(logPath, h.pollInterval, h.appearGrace)
	for frame := range tailer.Run(ctx, statusFn) {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
	}
}

func (h *Handler) resolveLogSource(tid string) (string, logtail.StatusFunc, bool) {
	if t, q, ok := h.ws.FindTask(tid); ok {
		return t.LogPath, func() (task.Status, bool) {
			st, found := q.TaskStatus(tid)
			if !found {
				return task.StatusCompleted, true
			}
			return st, st.IsTerminal()
		}, true
	}
	if rec, _, ok := h.ws.FindInHistory(tid); ok {
		status := rec.Status
		return rec.LogPath, func() (task.Status, bool) { return status, true }, true
	}
	return "", nil, false
}
