// Package logtail watches a task's growing log file and fans its
// content out to subscribers: once as backlog at join time, then
// incrementally as the file grows, then one terminal frame once the
// task reaches a terminal status and the tail has been fully drained.
package logtail

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/taskflow-dev/taskflow/internal/task"
)

// FrameType identifies the kind of a Frame.
type FrameType string

const (
	FrameLog   FrameType = "log"
	FrameInfo  FrameType = "info"
	FrameError FrameType = "error"
	FrameEnd   FrameType = "end"
)

// Frame is one unit of the live fan-out protocol.
type Frame struct {
	Type   FrameType   `json:"type"`
	Data   string      `json:"data,omitempty"`
	Status task.Status `json:"status,omitempty"`
}

// StatusFunc reports the task's current status; terminal is true once
// no further transition (other than retry) will occur.
type StatusFunc func() (status task.Status, terminal bool)

// Tailer drains one log file for one subscriber, from its own join
// point, closing its output channel once the terminal frame has been
// sent. One Tailer per subscriber connection.
type Tailer struct {
	Path         string
	PollInterval time.Duration
	AppearGrace  time.Duration
}

func New(path string, pollInterval, appearGrace time.Duration) *Tailer {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if appearGrace <= 0 {
		appearGrace = 30 * time.Second
	}
	return &Tailer{Path: path, PollInterval: pollInterval, AppearGrace: appearGrace}
}

// Run streams Frames until ctx is canceled or the terminal frame has
// been emitted, whichever comes first. The returned channel is always
// closed by the producing goroutine.
func (t *Tailer) Run(ctx context.Context, status StatusFunc) <-chan Frame {
	out := make(chan Frame, 16)
	go t.loop(ctx, status, out)
	return out
}

func (t *Tailer) loop(ctx context.Context, status StatusFunc, out chan<- Frame) {
	defer close(out)

	f, ok := t.awaitFile(ctx, out)
	if !ok {
		return
	}
	defer f.Close()

	var pos int64
	ticker := time.NewTicker(t.PollInterval)
	defer ticker.Stop()

	for {
		chunk, err := t.drain(f, &pos)
		if err != nil {
			t.send(ctx, out, Frame{Type: FrameError, Data: err.Error()})
			return
		}
		if len(chunk) > 0 {
			t.send(ctx, out, Frame{Type: FrameLog, Data: string(chunk)})
		}

		st, terminal := status()
		if terminal {
			// One more drain pass in case the child wrote its last
			// bytes between the previous drain and the status flip.
			if chunk, err := t.drain(f, &pos); err == nil && len(chunk) > 0 {
				t.send(ctx, out, Frame{Type: FrameLog, Data: string(chunk)})
			}
			t.send(ctx, out, Frame{Type: FrameEnd, Status: st, Data: st.String()})
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *Tailer) awaitFile(ctx context.Context, out chan<- Frame) (*os.File, bool) {
	deadline := time.Now().Add(t.AppearGrace)
	informed := false
	ticker := time.NewTicker(t.PollInterval)
	defer ticker.Stop()

	for {
		f, err := os.Open(t.Path)
		if err == nil {
			return f, true
		}
		if !informed {
			t.send(ctx, out, Frame{Type: FrameInfo, Data: "waiting for log file to appear"})
			informed = true
		}
		if time.Now().After(deadline) {
			t.send(ctx, out, Frame{Type: FrameError, Data: "log file did not appear in time"})
			return nil, false
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-ticker.C:
		}
	}
}

// drain reads and returns any bytes appended since pos, advancing pos.
func (t *Tailer) drain(f *os.File, pos *int64) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() <= *pos {
		return nil, nil
	}
	n := info.Size() - *pos
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, *pos); err != nil {
		return nil, err
	}
	*pos += n
	return buf, nil
}

func (t *Tailer) send(ctx context.Context, out chan<- Frame, fr Frame) {
	select {
	case out <- fr:
	case <-ctx.Done():
	}
}

// Sanitize collapses carriage-return-driven progress-bar redraws for
// non-live (REST) readers: universal \r-only fragments are discarded
// and the last fragment before each newline is kept.
func Sanitize(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if idx := strings.LastIndex(line, "\r"); idx >= 0 {
			lines[i] = line[idx+1:]
		}
	}
	return strings.Join(lines, "\n")
}

// LastNLines returns at most n trailing lines of content.
func LastNLines(content string, n int) []string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
