package procdiscovery

import (
	"context"
	"fmt"
	"time"

	"github.com/taskflow-dev/taskflow/internal/notify"
	"github.com/taskflow-dev/taskflow/internal/task"
)

const defaultPollInterval = 5 * time.Second

// WaitForExit polls pid at interval (defaultPollInterval if zero) until
// it is no longer alive or ctx is cancelled.
func WaitForExit(ctx context.Context, pid int, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if !IsAlive(pid) {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !IsAlive(pid) {
				return nil
			}
		}
	}
}

// Monitor implements "taskflow monitor <pid>": it blocks until pid
// exits, then sends one completion notification describing the
// watched process via the same NotificationClient tasks use.
func Monitor(ctx context.Context, pid int, name string, notifier *notify.Client, tokenSrc notify.TokenSource, interval time.Duration) error {
	started := time.Now()
	if err := WaitForExit(ctx, pid, interval); err != nil {
		return err
	}
	ended := time.Now()

	if name == "" {
		name = fmt.Sprintf("pid %d", pid)
	}
	rec := &task.HistoryRecord{
		ID:        fmt.Sprintf("monitor-%d", pid),
		Name:      name,
		Command:   fmt.Sprintf("monitor pid %d", pid),
		Status:    task.StatusCompleted,
		StartedAt: started,
		EndedAt:   ended,
		Duration:  ended.Sub(started),
	}
	notifier.Notify(ctx, rec, tokenSrc)
	return nil
}
