package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/taskflow-dev/taskflow/internal/logger"
	"github.com/taskflow-dev/taskflow/internal/metrics"
	"github.com/taskflow-dev/taskflow/internal/workspace"
)

// StatusHub broadcasts a StatusSnapshot to every connected /ws/status
// client whenever the snapshot differs from the last one sent, at the
// hub's poll interval (at least 1 Hz).
type StatusHub struct {
	ws       *workspace.Workspace
	interval time.Duration

	mu         sync.RWMutex
	clients    map[*StatusClient]bool
	register   chan *StatusClient
	unregister chan *StatusClient
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewStatusHub builds a hub polling ws at interval (defaulting to 1s).
func NewStatusHub(ws *workspace.Workspace, interval time.Duration) *StatusHub {
	if interval <= 0 {
		interval = time.Second
	}
	return &StatusHub{
		ws:         ws,
		interval:   interval,
		clients:    make(map[*StatusClient]bool),
		register:   make(chan *StatusClient),
		unregister: make(chan *StatusClient),
		stopCh:     make(chan struct{}),
	}
}

// Run starts the hub's poll-and-broadcast loop; call once in a goroutine.
func (h *StatusHub) Run() {
	h.wg.Add(1)
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last StatusSnapshot
	haveLast := false

	for {
		select {
		case <-h.stopCh:
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			metrics.SetWebSocketConnections("status", float64(h.ClientCount()))
			if haveLast {
				h.sendTo(c, last)
			}

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			metrics.SetWebSocketConnections("status", float64(h.ClientCount()))

		case <-ticker.C:
			snap := takeSnapshot(h.ws)
			if haveLast && snap.equal(last) {
				continue
			}
			last = snap
			haveLast = true
			h.broadcast(snap)
		}
	}
}

// Stop shuts the hub down, closing every client's send channel.
func (h *StatusHub) Stop() {
	close(h.stopCh)
	h.wg.Wait()
}

// Register enqueues a client for hub registration.
func (h *StatusHub) Register(c *StatusClient) { h.register <- c }

// Unregister enqueues a client for hub removal.
func (h *StatusHub) Unregister(c *StatusClient) { h.unregister <- c }

// ClientCount returns the number of connected /ws/status clients.
func (h *StatusHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *StatusHub) broadcast(snap StatusSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal status snapshot")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
			metrics.RecordWebSocketMessage("status", "delta")
		default:
			go func(c *StatusClient) { h.unregister <- c }(c)
		}
	}
}

func (h *StatusHub) sendTo(c *StatusClient, snap StatusSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *StatusHub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}
