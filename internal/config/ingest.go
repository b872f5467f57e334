// Package config parses the declarative task-list configuration file and
// the operational configuration for the taskflow process itself.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/taskflow-dev/taskflow/internal/task"
)

// Entry is one validated record from the configuration file, with its
// status already normalized: unrecognised values normalize to pending,
// and StatusRaw/StatusRecognised let the caller log a warning without
// rejecting the file.
type Entry struct {
	Name             string
	Command          string
	Status           task.Status
	StatusRaw        string
	StatusRecognised bool
	Note             string
	Env              map[string]string
}

// IngestError reports a structural or validation failure with the
// offending entry's position in the top-level sequence (1-indexed, the
// closest this format has to a line number without hand-rolled YAML
// position tracking).
type IngestError struct {
	Index int // -1 when the failure is not tied to one entry
	Msg   string
}

func (e *IngestError) Error() string {
	if e.Index < 0 {
		return e.Msg
	}
	return fmt.Sprintf("entry %d: %s", e.Index+1, e.Msg)
}

type rawEntry struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Status  string            `yaml:"status"`
	Note    string            `yaml:"note"`
	Env     map[string]string `yaml:"env"`
}

// Ingest parses and validates a configuration file's contents. On any
// structural error it returns a non-nil *IngestError and no entries —
// parse/validate/diff is kept pure so the caller (Queue.Load) never
// applies a partial mutation under a validation failure.
func Ingest(data []byte) ([]Entry, error) {
	var raw []rawEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &IngestError{Index: -1, Msg: fmt.Sprintf("top level must be a sequence: %v", err)}
	}

	entries := make([]Entry, 0, len(raw))
	for i, r := range raw {
		if r.Name == "" {
			return nil, &IngestError{Index: i, Msg: "missing required field \"name\""}
		}
		if r.Command == "" {
			return nil, &IngestError{Index: i, Msg: "missing required field \"command\""}
		}
		status, recognised := task.ParseStatus(r.Status)
		entries = append(entries, Entry{
			Name:             r.Name,
			Command:          r.Command,
			Status:           status,
			StatusRaw:        r.Status,
			StatusRecognised: recognised,
			Note:             r.Note,
			Env:              r.Env,
		})
	}
	return entries, nil
}
