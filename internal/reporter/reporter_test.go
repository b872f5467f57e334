package reporter

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taskflow-dev/taskflow/internal/task"
)

func TestReporter_TracksCompletedAndFailedTally(t *testing.T) {
	r := New(false)
	var buf bytes.Buffer
	r.out = &buf

	r.QueueStarted("nightly-eval", 2)

	ok := task.New("ok", "echo hi", "", nil, nil)
	ok.Status = task.StatusCompleted
	r.TaskFinished(ok, time.Second)

	code := 1
	bad := task.New("bad", "false", "", nil, nil)
	bad.Status = task.StatusFailed
	bad.ExitCode = &code
	r.TaskFinished(bad, time.Second)

	r.Summary()

	out := buf.String()
	assert.Contains(t, out, "nightly-eval")
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "exit=1")
	assert.Contains(t, out, "1/2 completed, 1 failed")
}

func TestReporter_ColorDisabledProducesPlainText(t *testing.T) {
	r := New(false)
	var buf bytes.Buffer
	r.out = &buf

	r.Notice("waiting for devices")

	assert.Equal(t, "waiting for devices\n", buf.String())
}
