package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/taskflow-dev/taskflow/internal/config"
	"github.com/taskflow-dev/taskflow/internal/logger"
	"github.com/taskflow-dev/taskflow/internal/notify"
	"github.com/taskflow-dev/taskflow/internal/queue"
	"github.com/taskflow-dev/taskflow/internal/reporter"
	"github.com/taskflow-dev/taskflow/internal/task"
)

// soloReserver is the DeviceReserver for a queue run outside any
// Workspace: there is no sibling queue to conflict with, so every
// reservation succeeds immediately.
type soloReserver struct{}

func (soloReserver) Reserve(devices []int, queueID, taskID string) error { return nil }
func (soloReserver) Release(taskID string)                               {}

func runForeground(configPath string) error {
	info, err := os.Stat(configPath)
	if err != nil || info.IsDir() {
		return fmt.Errorf("config file not found: %s", configPath)
	}

	opsCfg, err := config.LoadOps()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.Get()
	notifier := notify.NewClient(notify.Config{
		Timeout:        opsCfg.Notify.Timeout,
		RetryBaseDelay: opsCfg.Notify.RetryBaseDelay,
		RetryAttempts:  opsCfg.Notify.RetryAttempts,
		LogTailLines:   opsCfg.Notify.LogTailLines,
	}, *log)

	name := filepath.Base(configPath)
	q, err := queue.New(name, name, configPath, soloReserver{}, notifier, nil, opsCfg.Task.StopGrace, opsCfg.Task.HistoryCap, *log)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}

	added, rejected, err := q.Load()
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	rep := reporter.New(true)
	rep.QueueStarted(name, len(added))
	for _, n := range rejected {
		rep.Notice(fmt.Sprintf("task not loaded: %q", n))
	}

	q.StartAuto()
	defer q.StopAuto()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	reported := map[string]bool{}
	running := map[string]bool{}
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			return handleInterrupt(q)
		case <-ticker.C:
			drainReports(q, rep, running, reported)
			if allDone(q) {
				rep.Summary()
				return nil
			}
		}
	}
}

func drainReports(q *queue.Queue, rep *reporter.Reporter, running, reported map[string]bool) {
	for _, t := range q.Tasks() {
		if t.Status == task.StatusRunning && !running[t.ID] {
			running[t.ID] = true
			rep.TaskStarted(t)
		}
		if t.Status.IsTerminal() && !reported[t.ID] {
			reported[t.ID] = true
			var elapsed time.Duration
			if t.StartedAt != nil && t.EndedAt != nil {
				elapsed = t.EndedAt.Sub(*t.StartedAt)
			}
			rep.TaskFinished(t, elapsed)
		}
	}
}

func allDone(q *queue.Queue) bool {
	st := q.Snapshot()
	if st.PendingCount > 0 || st.RunningCount > 0 {
		return false
	}
	for _, t := range q.Tasks() {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// handleInterrupt implements the 5-second graceful-exit prompt:
// Enter (or timeout) detaches and leaves running tasks alive, "k"
// terminates every child before exiting.
func handleInterrupt(q *queue.Queue) error {
	fmt.Fprint(os.Stderr, "\nInterrupt received. Press Enter to detach (tasks keep running), or \"k\"+Enter to stop all tasks and exit [5s]: ")

	answer := make(chan string, 1)
	go func() {
		var line string
		fmt.Scanln(&line)
		answer <- line
	}()

	select {
	case line := <-answer:
		if line == "k" || line == "K" {
			q.CancelPending()
			for _, t := range q.Tasks() {
				if t.Status == task.StatusRunning {
					_ = q.StopTask(t.ID)
				}
			}
			fmt.Fprintln(os.Stderr, "stopped all tasks.")
			return nil
		}
		fmt.Fprintln(os.Stderr, "detaching, tasks continue in the background.")
		return nil
	case <-time.After(5 * time.Second):
		fmt.Fprintln(os.Stderr, "\ntimed out, detaching.")
		return nil
	}
}
