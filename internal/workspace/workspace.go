// Package workspace implements the multi-queue coordinator: global
// device-exclusion accounting and atomic manifest persistence.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskflow-dev/taskflow/internal/notify"
	"github.com/taskflow-dev/taskflow/internal/queue"
	"github.com/taskflow-dev/taskflow/internal/task"
)

type deviceHolder struct {
	queueID   string
	queueName string
	taskID    string
}

// QueueInfo is a queue descriptor enriched with live counters, as
// returned by ListQueues.
type QueueInfo struct {
	QueueDescriptor
	Status queue.Status
}

// Workspace is the top-level container of Queues and the sole owner
// of the cross-queue device ledger.
type Workspace struct {
	dir          string
	manifestPath string
	notifier     *notify.Client
	stopGrace    time.Duration
	historyCap   int
	log          zerolog.Logger

	mu      sync.Mutex
	doc     *manifestDoc
	queues  map[string]*queue.Queue
	devices map[int]deviceHolder
}

// Open loads (or creates) the workspace manifest under dir and
// instantiates a Queue for every entry whose configuration file still
// exists; entries referencing a missing file are logged and dropped.
func Open(dir string, notifier *notify.Client, stopGrace time.Duration, historyCap int, log zerolog.Logger) (*Workspace, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	manifestPath := filepath.Join(dir, ".workspace.json")
	doc, err := loadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	w := &Workspace{
		dir:          dir,
		manifestPath: manifestPath,
		notifier:     notifier,
		stopGrace:    stopGrace,
		historyCap:   historyCap,
		log:          log.With().Str("component", "workspace").Logger(),
		doc:          doc,
		queues:       make(map[string]*queue.Queue),
		devices:      make(map[int]deviceHolder),
	}

	kept := make([]QueueDescriptor, 0, len(doc.Queues))
	dirty := false
	for _, d := range doc.Queues {
		if _, err := os.Stat(d.ConfigPath); err != nil {
			w.log.Warn().Str("config", d.ConfigPath).Msg("configuration file missing, dropping queue from manifest")
			dirty = true
			continue
		}
		q, err := queue.New(d.ID, d.Name, d.ConfigPath, w, notifier, w, stopGrace, historyCap, log)
		if err != nil {
			w.log.Error().Err(err).Str("queue", d.ID).Msg("failed to load queue")
			dirty = true
			continue
		}
		w.queues[d.ID] = q
		kept = append(kept, d)
	}
	w.doc.Queues = kept
	if dirty {
		if err := saveManifest(w.manifestPath, w.doc); err != nil {
			w.log.Error().Err(err).Msg("failed to persist reconciled manifest")
		}
	}
	return w, nil
}

// AddQueue registers a new queue bound to configPath, rejecting a
// duplicate on the resolved absolute path.
func (w *Workspace) AddQueue(name, configPath string) (*QueueDescriptor, error) {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("configuration file does not exist: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, d := range w.doc.Queues {
		if d.ConfigPath == abs {
			return nil, fmt.Errorf("already added as queue %q", d.Name)
		}
	}

	id := "queue_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	q, err := queue.New(id, name, abs, w, w.notifier, w, w.stopGrace, w.historyCap, w.log)
	if err != nil {
		return nil, err
	}

	desc := QueueDescriptor{ID: id, Name: name, ConfigPath: abs, CreatedAt: time.Now().UTC()}
	w.queues[id] = q
	w.doc.Queues = append(w.doc.Queues, desc)
	if err := saveManifest(w.manifestPath, w.doc); err != nil {
		return nil, err
	}
	return &desc, nil
}

// RemoveQueue stops the queue's auto mode, stops any running task
// (forceful after grace), drops it from the manifest, and persists.
// The configuration file itself is never deleted.
func (w *Workspace) RemoveQueue(id string) error {
	w.mu.Lock()
	q, ok := w.queues[id]
	w.mu.Unlock()
	if !ok {
		return task.ErrTaskNotFound
	}

	q.Shutdown(context.Background())

	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.queues, id)
	kept := make([]QueueDescriptor, 0, len(w.doc.Queues))
	for _, d := range w.doc.Queues {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	w.doc.Queues = kept
	return saveManifest(w.manifestPath, w.doc)
}

// ListQueues returns a snapshot of every registered queue with its
// live counters attached.
func (w *Workspace) ListQueues() []QueueInfo {
	w.mu.Lock()
	descs := append([]QueueDescriptor(nil), w.doc.Queues...)
	w.mu.Unlock()

	out := make([]QueueInfo, 0, len(descs))
	for _, d := range descs {
		w.mu.Lock()
		q := w.queues[d.ID]
		w.mu.Unlock()
		info := QueueInfo{QueueDescriptor: d}
		if q != nil {
			info.Status = q.Snapshot()
		}
		out = append(out, info)
	}
	return out
}

// GetQueue returns the live Queue for id, if registered.
func (w *Workspace) GetQueue(id string) (*queue.Queue, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	q, ok := w.queues[id]
	return q, ok
}

// FindTask searches live tasks across all queues.
func (w *Workspace) FindTask(taskID string) (*task.Task, *queue.Queue, bool) {
	w.mu.Lock()
	qs := make([]*queue.Queue, 0, len(w.queues))
	for _, q := range w.queues {
		qs = append(qs, q)
	}
	w.mu.Unlock()

	for _, q := range qs {
		if t, ok := q.GetTask(taskID); ok {
			return t, q, true
		}
	}
	return nil, nil, false
}

// FindInHistory searches every queue's history for taskID.
func (w *Workspace) FindInHistory(taskID string) (*task.HistoryRecord, *queue.Queue, bool) {
	w.mu.Lock()
	qs := make([]*queue.Queue, 0, len(w.queues))
	for _, q := range w.queues {
		qs = append(qs, q)
	}
	w.mu.Unlock()

	for _, q := range qs {
		if rec, ok := q.History().Find(taskID); ok {
			return rec, q, true
		}
	}
	return nil, nil, false
}

// Reserve implements queue.DeviceReserver: under the workspace lock,
// it checks that none of devices is already reserved by a different
// queue's running task, and on success records the reservation as one
// critical section.
func (w *Workspace) Reserve(devices []int, queueID, taskID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var conflicts []int
	holder := ""
	for _, d := range devices {
		if h, ok := w.devices[d]; ok && h.queueID != queueID {
			conflicts = append(conflicts, d)
			holder = h.queueName
		}
	}
	if len(conflicts) > 0 {
		return &queue.DeviceConflictError{Devices: conflicts, Holder: holder}
	}

	name := queueID
	if q, ok := w.queues[queueID]; ok {
		name = q.DisplayName
	}
	for _, d := range devices {
		w.devices[d] = deviceHolder{queueID: queueID, queueName: name, taskID: taskID}
	}
	return nil
}

// Release implements queue.DeviceReserver: unconditionally removes
// reservations held by taskID and wakes every queue's auto-dispatcher
// so one waiting on a just-freed device can proceed.
func (w *Workspace) Release(taskID string) {
	w.mu.Lock()
	var released bool
	for d, h := range w.devices {
		if h.taskID == taskID {
			delete(w.devices, d)
			released = true
		}
	}
	qs := make([]*queue.Queue, 0, len(w.queues))
	for _, q := range w.queues {
		qs = append(qs, q)
	}
	w.mu.Unlock()

	if released {
		for _, q := range qs {
			q.WakeDispatcher()
		}
	}
}

// GlobalBusyDevices returns the union of currently reserved devices
// with the holding queue's display name.
func (w *Workspace) GlobalBusyDevices() map[int]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[int]string, len(w.devices))
	for d, h := range w.devices {
		out[d] = h.queueName
	}
	return out
}

// CheckCrossQueueConflict reports a human-readable conflict
// description if taskID's devices are currently held by a different
// queue, grounded on queue_manager.py's check_cross_queue_conflict.
func (w *Workspace) CheckCrossQueueConflict(queueID, taskID string) string {
	q, ok := w.GetQueue(queueID)
	if !ok {
		return ""
	}
	t, ok := q.GetTask(taskID)
	if !ok || len(t.Devices) == 0 {
		return ""
	}

	busy := w.GlobalBusyDevices()
	var conflictDevices []int
	holders := make(map[string]bool)
	for _, d := range t.Devices {
		if holder, ok := busy[d]; ok && holder != q.DisplayName {
			conflictDevices = append(conflictDevices, d)
			holders[holder] = true
		}
	}
	if len(conflictDevices) == 0 {
		return ""
	}
	names := make([]string, 0, len(holders))
	for n := range holders {
		names = append(names, n)
	}
	return fmt.Sprintf("GPU %v busy, held by %s", conflictDevices, strings.Join(names, ", "))
}

// PushPlusToken implements notify.TokenSource: the workspace-scoped
// setting takes precedence over the MSG_PUSH_TOKEN environment
// variable.
func (w *Workspace) PushPlusToken() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc.PushPlusToken
}

// SetPushPlusToken persists tok as the workspace-scoped push token.
func (w *Workspace) SetPushPlusToken(tok string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.doc.PushPlusToken = tok
	return saveManifest(w.manifestPath, w.doc)
}

// Shutdown turns off auto-dispatch, cancels pending tasks, and stops
// running tasks across every queue in parallel, bounded by ctx.
func (w *Workspace) Shutdown(ctx context.Context) {
	w.mu.Lock()
	qs := make([]*queue.Queue, 0, len(w.queues))
	for _, q := range w.queues {
		qs = append(qs, q)
	}
	w.mu.Unlock()

	var wg sync.WaitGroup
	for _, q := range qs {
		wg.Add(1)
		go func(q *queue.Queue) {
			defer wg.Done()
			q.Shutdown(ctx)
		}(q)
	}
	wg.Wait()
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }
