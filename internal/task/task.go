package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task is one external command tracked end-to-end, from pending to a
// terminal status. Id, Name, Command, Note and Devices are fixed at
// creation; everything else mutates as the command runs.
type Task struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Command string `json:"command"`
	Note    string `json:"note,omitempty"`

	// Devices is the ordered, de-duplicated list of device integers this
	// task requires exclusive access to. Parsed once at creation time
	// (see ParseDevices) unless the loader set it explicitly.
	Devices []int `json:"devices,omitempty"`

	// Env holds per-task environment overrides applied only for the
	// duration of this task's execution.
	Env map[string]string `json:"env,omitempty"`

	Status      Status     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	ErrorMsg    string     `json:"error_message,omitempty"`
	LogPath     string     `json:"log_path,omitempty"`
	DeviceConflict string  `json:"devices_conflict,omitempty"`

	// handle is held only while Status == StatusRunning; it is never
	// serialized and is nil otherwise.
	handle any
}

// New builds a pending Task. If devices is nil, it is derived from
// command via ParseDevices.
func New(name, command, note string, devices []int, env map[string]string) *Task {
	if devices == nil {
		devices = ParseDevices(command)
	}
	return &Task{
		ID:      uuid.New().String(),
		Name:    name,
		Command: command,
		Note:    note,
		Devices: devices,
		Env:     env,
		Status:  StatusPending,
	}
}

// Duration reports ended_at - started_at when both timestamps are set.
func (t *Task) Duration() (time.Duration, bool) {
	if t.StartedAt == nil || t.EndedAt == nil {
		return 0, false
	}
	return t.EndedAt.Sub(*t.StartedAt), true
}

// SetHandle/Handle/ClearHandle manage the internal-only process handle.
// They are not part of the JSON-visible contract.
func (t *Task) SetHandle(h any)  { t.handle = h }
func (t *Task) Handle() any      { return t.handle }
func (t *Task) ClearHandle()     { t.handle = nil }

// Snapshot freezes the current state of the task into a History record.
func (t *Task) Snapshot() *HistoryRecord {
	dur, _ := t.Duration()
	rec := &HistoryRecord{
		ID:       t.ID,
		Name:     t.Name,
		Command:  t.Command,
		Status:   t.Status,
		ExitCode: t.ExitCode,
		ErrorMsg: t.ErrorMsg,
		LogPath:  t.LogPath,
		Duration: dur,
	}
	if t.StartedAt != nil {
		rec.StartedAt = *t.StartedAt
	}
	if t.EndedAt != nil {
		rec.EndedAt = *t.EndedAt
	}
	return rec
}

// HistoryRecord is a frozen snapshot of a Task at its terminal transition.
type HistoryRecord struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Command  string        `json:"command"`
	Status   Status        `json:"status"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt  time.Time     `json:"ended_at"`
	Duration time.Duration `json:"duration"`
	ExitCode *int          `json:"exit_code,omitempty"`
	ErrorMsg string        `json:"error_message,omitempty"`
	LogPath  string        `json:"log_path,omitempty"`
}

// ToJSON/FromJSON serialize a Task for persistence/transport. The
// internal handle is never included.
func (t *Task) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

func FromJSON(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &t, nil
}

// Reset clears timing/exit/log fields and returns the task to pending,
// used by Queue.Retry.
func (t *Task) Reset() {
	t.Status = StatusPending
	t.StartedAt = nil
	t.EndedAt = nil
	t.ExitCode = nil
	t.ErrorMsg = ""
	t.LogPath = ""
	t.DeviceConflict = ""
	t.handle = nil
}
