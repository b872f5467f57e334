// Package reporter renders the colorized foreground run summary used by
// "taskflow <config>" while it drives a single queue to completion.
// Grounded on cklxx-elephant.ai's internal/approval InteractiveApprover,
// whose colorize(text, attrs...)-over-a-flag pattern this reuses.
package reporter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/taskflow-dev/taskflow/internal/task"
)

// Reporter prints task lifecycle events and a final run summary to an
// output stream, colorizing when color is enabled.
type Reporter struct {
	out          io.Writer
	colorEnabled bool

	total     int
	completed int
	failed    int
	started   time.Time
}

// New creates a Reporter writing to stdout. colorEnabled controls
// whether ANSI attributes are applied.
func New(colorEnabled bool) *Reporter {
	return &Reporter{out: os.Stdout, colorEnabled: colorEnabled, started: time.Now()}
}

// QueueStarted announces the queue about to run and how many tasks it holds.
func (r *Reporter) QueueStarted(queueName string, taskCount int) {
	r.total = taskCount
	sep := strings.Repeat("=", 60)
	fmt.Fprintln(r.out, r.colorize(sep, color.FgCyan))
	fmt.Fprintln(r.out, r.colorize(fmt.Sprintf("Queue: %s (%d tasks)", queueName, taskCount), color.FgYellow, color.Bold))
	fmt.Fprintln(r.out, r.colorize(sep, color.FgCyan))
}

// TaskStarted announces a task beginning execution.
func (r *Reporter) TaskStarted(t *task.Task) {
	fmt.Fprintln(r.out, r.colorize(fmt.Sprintf("-> %s  %s", t.ID, t.Command), color.FgCyan))
}

// TaskFinished announces a task's terminal status and tallies it.
func (r *Reporter) TaskFinished(t *task.Task, elapsed time.Duration) {
	switch t.Status {
	case task.StatusCompleted:
		r.completed++
		fmt.Fprintln(r.out, r.colorize(fmt.Sprintf("   done    %s  (%s)", t.ID, elapsed.Round(time.Second)), color.FgGreen))
	case task.StatusFailed:
		r.failed++
		exitCode := -1
		if t.ExitCode != nil {
			exitCode = *t.ExitCode
		}
		fmt.Fprintln(r.out, r.colorize(fmt.Sprintf("   failed  %s  exit=%d (%s)", t.ID, exitCode, elapsed.Round(time.Second)), color.FgRed, color.Bold))
	case task.StatusCanceled, task.StatusStopped:
		fmt.Fprintln(r.out, r.colorize(fmt.Sprintf("   %s %s", t.Status, t.ID), color.FgYellow))
	default:
		fmt.Fprintln(r.out, r.colorize(fmt.Sprintf("   %s      %s", t.Status, t.ID), color.FgWhite))
	}
}

// Summary prints the closing tally once the queue has drained.
func (r *Reporter) Summary() {
	elapsed := time.Since(r.started).Round(time.Second)
	sep := strings.Repeat("=", 60)
	fmt.Fprintln(r.out, r.colorize(sep, color.FgCyan))
	line := fmt.Sprintf("%d/%d completed, %d failed  (%s)", r.completed, r.total, r.failed, elapsed)
	attr := color.FgGreen
	if r.failed > 0 {
		attr = color.FgRed
	}
	fmt.Fprintln(r.out, r.colorize(line, attr, color.Bold))
	fmt.Fprintln(r.out, r.colorize(sep, color.FgCyan))
}

// Notice prints a standalone informational line, used for messages
// like the "task not loaded" lines of a foreground run.
func (r *Reporter) Notice(msg string) {
	fmt.Fprintln(r.out, r.colorize(msg, color.FgYellow))
}

func (r *Reporter) colorize(text string, attrs ...color.Attribute) string {
	if !r.colorEnabled {
		return text
	}
	return color.New(attrs...).Sprint(text)
}
