// Package queue implements the ordered, single-configuration-file task
// list: sequential auto-run, manual single-task starts, additive
// reconciliation against a live config file, and history recording.
package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskflow-dev/taskflow/internal/config"
	"github.com/taskflow-dev/taskflow/internal/notify"
	"github.com/taskflow-dev/taskflow/internal/task"
)

// DeviceReserver is the Workspace's device-ledger contract, as seen by
// a Queue.
type DeviceReserver interface {
	Reserve(devices []int, queueID, taskID string) error
	Release(taskID string)
}

// DeviceConflictError is returned by Reserve when one or more requested
// devices are already held by another queue's running task.
type DeviceConflictError struct {
	Devices []int
	Holder  string
}

func (e *DeviceConflictError) Error() string {
	return fmt.Sprintf("device(s) %v busy, held by queue %q", e.Devices, e.Holder)
}

// UpdatePreview is one entry of a non-mutating CheckUpdates() result.
type UpdatePreview struct {
	Name   string
	Valid  bool
	Reason string
}

// Status is a point-in-time snapshot of queue-level counters, matching
// the triple queue_manager.py's get_all_queues attaches to every
// descriptor.
type Status struct {
	AutoRunning  bool
	PendingCount int
	RunningCount int
}

// Queue owns one configuration file's worth of tasks end to end.
type Queue struct {
	ID          string
	DisplayName string
	ConfigPath  string

	configDir string
	logsDir   string

	mu          sync.Mutex
	tasks       map[string]*task.Task
	order       []string
	names       map[string]bool
	autoRunning bool
	runningID   string

	history    *History
	reserver   DeviceReserver
	notifier   *notify.Client
	tokenSrc   notify.TokenSource
	supervisor *task.Supervisor
	stopGrace  time.Duration
	log        zerolog.Logger

	wake   chan struct{}
	stopCh chan struct{}
}

// New builds a Queue bound to configPath, loading any existing history
// file from <config_dir>/logs/.history.json, and starts its
// auto-dispatch goroutine.
func New(id, displayName, configPath string, reserver DeviceReserver, notifier *notify.Client, tokenSrc notify.TokenSource, stopGrace time.Duration, historyCap int, log zerolog.Logger) (*Queue, error) {
	configDir := filepath.Dir(configPath)
	logsDir := filepath.Join(configDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}

	h := NewHistory(filepath.Join(logsDir, ".history.json"), historyCap)
	if err := h.Load(); err != nil {
		return nil, err
	}

	q := &Queue{
		ID:          id,
		DisplayName: displayName,
		ConfigPath:  configPath,
		configDir:   configDir,
		logsDir:     logsDir,
		tasks:       make(map[string]*task.Task),
		names:       make(map[string]bool),
		history:     h,
		reserver:    reserver,
		notifier:    notifier,
		tokenSrc:    tokenSrc,
		supervisor:  task.NewSupervisor(log),
		stopGrace:   stopGrace,
		log:         log.With().Str("queue", id).Logger(),
		wake:        make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
	go q.autoDispatchLoop()
	return q, nil
}

// Load reads and ingests the configuration file. Parse/validation
// errors abort with no mutation. On success, every entry whose name is
// not already live or in history is appended at the tail — the same
// rule applies whether this is the first load of an empty queue or a
// later reload against one that already has tasks. Returns the names
// added and the names rejected (as duplicates, or because the entry's
// status is "skipped").
func (q *Queue) Load() (added, rejected []string, err error) {
	data, err := os.ReadFile(q.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}
	entries, err := config.Ingest(data)
	if err != nil {
		return nil, nil, err
	}
	added, rejected = q.LoadEntries(entries)
	return added, rejected, nil
}

// LoadEntries applies the additive-append rule directly to a caller-
// supplied entry list, bypassing the configuration file. This backs
// "load selected tasks", where a caller has already narrowed a
// check_updates preview down to the subset the user picked.
//
// An entry never appears in added unless it was actually inserted into
// the live task list: a name already live or in history is rejected as
// a duplicate, and an entry whose status is "skipped" is rejected too
// (mirroring CheckUpdates, which reports "skipped" entries separately
// from newly-loadable ones) rather than silently reported as loaded.
func (q *Queue) LoadEntries(entries []config.Entry) (added, rejected []string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	historyNames := q.history.Names()
	for _, e := range entries {
		if !e.StatusRecognised {
			q.log.Warn().Str("task", e.Name).Str("status", e.StatusRaw).
				Msg("unrecognised status value in configuration, normalizing to pending")
		}
		if e.Status == task.StatusSkipped {
			rejected = append(rejected, e.Name)
			continue
		}
		if q.names[e.Name] || historyNames[e.Name] {
			rejected = append(rejected, e.Name)
			continue
		}
		t := task.New(e.Name, e.Command, e.Note, nil, e.Env)
		q.tasks[t.ID] = t
		q.order = append(q.order, t.ID)
		q.names[e.Name] = true
		added = append(added, e.Name)
	}
	return added, rejected
}

// CheckUpdates previews what Load would do without mutating anything.
func (q *Queue) CheckUpdates() ([]UpdatePreview, error) {
	data, err := os.ReadFile(q.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	entries, err := config.Ingest(data)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	historyNames := q.history.Names()
	seenThisBatch := make(map[string]bool)
	var out []UpdatePreview
	for _, e := range entries {
		if e.Status == task.StatusSkipped {
			out = append(out, UpdatePreview{Name: e.Name, Valid: true, Reason: "skipped"})
			continue
		}
		if q.names[e.Name] || historyNames[e.Name] || seenThisBatch[e.Name] {
			out = append(out, UpdatePreview{Name: e.Name, Valid: false, Reason: "duplicate task name"})
			continue
		}
		seenThisBatch[e.Name] = true
		out = append(out, UpdatePreview{Name: e.Name, Valid: true})
	}
	return out, nil
}

var filenameUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeFilename(name string) string {
	s := filenameUnsafe.ReplaceAllString(name, "_")
	if s == "" {
		return "task"
	}
	return s
}

// StartTask dispatches a pending task: reserves its devices, spawns
// its supervisor, and returns immediately. The terminal transition is
// observed asynchronously.
func (q *Queue) StartTask(id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return task.ErrTaskNotFound
	}
	if t.Status != task.StatusPending {
		q.mu.Unlock()
		return task.ErrNotPending
	}

	if err := q.reserver.Reserve(t.Devices, q.ID, t.ID); err != nil {
		if ce, ok := err.(*DeviceConflictError); ok {
			t.DeviceConflict = ce.Error()
		}
		q.mu.Unlock()
		return err
	}

	now := time.Now().UTC()
	logPath := filepath.Join(q.logsDir, fmt.Sprintf("%s_%s.log", sanitizeFilename(t.Name), now.Format("20060102_150405")))
	t.Status = task.StatusRunning
	t.StartedAt = &now
	t.LogPath = logPath
	q.runningID = t.ID
	q.mu.Unlock()

	handle, done, err := q.supervisor.Start(t.Command, logPath, t.Env)
	if err != nil {
		q.reserver.Release(t.ID)
		q.mu.Lock()
		endNow := time.Now().UTC()
		t.Status = task.StatusFailed
		t.EndedAt = &endNow
		ec := -1
		t.ExitCode = &ec
		t.ErrorMsg = err.Error()
		q.runningID = ""
		q.mu.Unlock()
		q.finalizeTerminal(t)
		return fmt.Errorf("spawn: %w", err)
	}

	t.SetHandle(handle)
	go q.awaitResult(t, done)
	return nil
}

func (q *Queue) awaitResult(t *task.Task, done <-chan task.Result) {
	res := <-done

	q.mu.Lock()
	endNow := time.Now().UTC()
	t.Status = res.Status
	t.EndedAt = &endNow
	ec := res.ExitCode
	t.ExitCode = &ec
	t.ErrorMsg = res.ErrorMsg
	t.ClearHandle()
	q.runningID = ""
	q.mu.Unlock()

	q.reserver.Release(t.ID)
	q.finalizeTerminal(t)
	q.signalWake()
}

// finalizeTerminal records history and fires a notification for a task
// that just reached a terminal status. The notification send happens
// off this goroutine so it never delays the auto-dispatcher.
func (q *Queue) finalizeTerminal(t *task.Task) {
	rec := t.Snapshot()
	if err := q.history.Append(rec); err != nil {
		q.log.Error().Err(err).Str("task", t.Name).Msg("persist history failed")
	}
	if q.notifier != nil {
		go q.notifier.Notify(context.Background(), rec, q.tokenSrc)
	}
}

// StopTask initiates termination of a running task. The status
// transition to "stopped" is observed asynchronously once the child
// has been reaped.
func (q *Queue) StopTask(id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return task.ErrTaskNotFound
	}
	if t.Status != task.StatusRunning {
		q.mu.Unlock()
		return task.ErrNotRunning
	}
	h, _ := t.Handle().(*task.Handle)
	grace := q.stopGrace
	q.mu.Unlock()

	if h == nil {
		return fmt.Errorf("task %s has no active process handle", id)
	}
	return q.supervisor.Stop(h, grace)
}

// Retry clears a terminal (non-canceled) task's timing/exit fields,
// sets it pending, and moves it to the tail of the ordered list.
func (q *Queue) Retry(id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return task.ErrTaskNotFound
	}
	if !t.Status.IsTerminal() || t.Status == task.StatusCanceled {
		q.mu.Unlock()
		return task.ErrNotRetriable
	}
	t.Reset()
	q.removeFromOrderLocked(id)
	q.order = append(q.order, id)
	q.mu.Unlock()

	q.signalWake()
	return nil
}

func (q *Queue) removeFromOrderLocked(id string) {
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

// StartAuto/StopAuto toggle the auto-dispatch flag. StopAuto does not
// interrupt a running task, it only stops further dispatches.
func (q *Queue) StartAuto() {
	q.mu.Lock()
	q.autoRunning = true
	q.mu.Unlock()
	q.signalWake()
}

func (q *Queue) StopAuto() {
	q.mu.Lock()
	q.autoRunning = false
	q.mu.Unlock()
}

// CancelPending transitions every pending task to canceled, used on
// graceful shutdown.
func (q *Queue) CancelPending() {
	q.mu.Lock()
	var canceled []*task.Task
	for _, id := range q.order {
		t := q.tasks[id]
		if t.Status == task.StatusPending {
			t.Status = task.StatusCanceled
			canceled = append(canceled, t)
		}
	}
	q.mu.Unlock()

	for _, t := range canceled {
		if err := q.history.Append(t.Snapshot()); err != nil {
			q.log.Error().Err(err).Str("task", t.Name).Msg("persist history failed")
		}
	}
}

// Shutdown stops auto-dispatch, cancels pending tasks, and stops any
// running task (forceful after grace), then stops the auto-dispatch
// goroutine. A call made after an earlier one has returned leaves the
// already-stopped goroutine as it is; overlapping calls on the same
// queue are not synchronised.
func (q *Queue) Shutdown(ctx context.Context) {
	q.StopAuto()
	q.CancelPending()

	q.mu.Lock()
	runningID := q.runningID
	var h *task.Handle
	if runningID != "" {
		h, _ = q.tasks[runningID].Handle().(*task.Handle)
	}
	grace := q.stopGrace
	q.mu.Unlock()

	if h != nil {
		done := make(chan struct{})
		go func() {
			q.supervisor.Stop(h, grace) //nolint:errcheck // best-effort on shutdown
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	select {
	case <-q.stopCh:
	default:
		close(q.stopCh)
	}
}

func (q *Queue) signalWake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// autoDispatchLoop is the per-queue auto-dispatcher: it wakes on every
// terminal transition, on StartAuto, and on Retry, and dispatches the
// first pending task in order whenever auto mode is on and no task is
// currently running. A device conflict is treated as "wait", not
// "skip" — the next wake (triggered by the conflicting task's eventual
// completion, via the Workspace's release) re-evaluates the same head
// of the queue.
func (q *Queue) autoDispatchLoop() {
	for {
		select {
		case <-q.stopCh:
			return
		case <-q.wake:
		}
		q.tryDispatch()
	}
}

func (q *Queue) tryDispatch() {
	q.mu.Lock()
	if !q.autoRunning || q.runningID != "" {
		q.mu.Unlock()
		return
	}
	var nextID string
	for _, id := range q.order {
		if q.tasks[id].Status == task.StatusPending {
			nextID = id
			break
		}
	}
	q.mu.Unlock()

	if nextID == "" {
		return
	}

	if err := q.StartTask(nextID); err != nil {
		if _, conflict := err.(*DeviceConflictError); conflict {
			return
		}
		// Spawn failure already moved the task to a terminal state;
		// try the next pending task immediately.
		q.signalWake()
	}
}

// Snapshot reports queue-level counters.
func (q *Queue) Snapshot() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s Status
	s.AutoRunning = q.autoRunning
	for _, id := range q.order {
		switch q.tasks[id].Status {
		case task.StatusPending:
			s.PendingCount++
		case task.StatusRunning:
			s.RunningCount++
		}
	}
	return s
}

// GetTask returns the live task with id, if any.
func (q *Queue) GetTask(id string) (*task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	return t, ok
}

// TaskStatus returns the live status of task id under the queue lock,
// safe to poll from a goroutine that does not otherwise hold it (e.g.
// a log-tail subscriber).
func (q *Queue) TaskStatus(id string) (task.Status, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return "", false
	}
	return t.Status, true
}

// Tasks returns a snapshot of all live tasks in queue order.
func (q *Queue) Tasks() []*task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*task.Task, 0, len(q.order))
	for _, id := range q.order {
		cp := *q.tasks[id]
		out = append(out, &cp)
	}
	return out
}

// History returns this queue's bounded history store.
func (q *Queue) History() *History { return q.history }

// BusyDevices returns the devices held by this queue's running task,
// if any.
func (q *Queue) BusyDevices() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.runningID == "" {
		return nil
	}
	return append([]int(nil), q.tasks[q.runningID].Devices...)
}

// WakeDispatcher re-evaluates auto-dispatch, used by the Workspace
// after it releases a device so a queue waiting on that device gets a
// chance to proceed.
func (q *Queue) WakeDispatcher() { q.signalWake() }
