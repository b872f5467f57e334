package websocket

import (
	"sort"

	"github.com/taskflow-dev/taskflow/internal/task"
	"github.com/taskflow-dev/taskflow/internal/workspace"
)

// StatusSnapshot is the delta payload broadcast on /ws/status.
type StatusSnapshot struct {
	Pending      []string `json:"pending"`
	Running      []string `json:"running"`
	HistoryCount int      `json:"history_count"`
	BusyGPUs     []int    `json:"busy_gpus"`
}

// equal reports whether two snapshots carry the same observable content,
// used by the hub to suppress a broadcast when nothing changed.
func (s StatusSnapshot) equal(o StatusSnapshot) bool {
	if s.HistoryCount != o.HistoryCount {
		return false
	}
	if !stringsEqual(s.Pending, o.Pending) || !stringsEqual(s.Running, o.Running) {
		return false
	}
	return intsEqual(s.BusyGPUs, o.BusyGPUs)
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// takeSnapshot assembles the current global status by walking every
// registered queue, grounded in queue_manager.py's get_status aggregate.
func takeSnapshot(ws *workspace.Workspace) StatusSnapshot {
	pending := make([]string, 0)
	running := make([]string, 0)
	historyCount := 0

	for _, info := range ws.ListQueues() {
		q, ok := ws.GetQueue(info.ID)
		if !ok {
			continue
		}
		for _, t := range q.Tasks() {
			switch t.Status {
			case task.StatusPending:
				pending = append(pending, t.ID)
			case task.StatusRunning:
				running = append(running, t.ID)
			}
		}
		historyCount += len(q.History().All())
	}

	busy := ws.GlobalBusyDevices()
	gpus := make([]int, 0, len(busy))
	for d := range busy {
		gpus = append(gpus, d)
	}
	sort.Ints(gpus)

	return StatusSnapshot{Pending: pending, Running: running, HistoryCount: historyCount, BusyGPUs: gpus}
}
