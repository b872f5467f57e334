package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// QueueDescriptor is one persisted entry in the workspace manifest.
type QueueDescriptor struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ConfigPath string    `json:"yaml_path"`
	CreatedAt  time.Time `json:"created_at"`
}

// manifestDoc is the on-disk shape of .workspace.json.
type manifestDoc struct {
	Version       string            `json:"version"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Queues        []QueueDescriptor `json:"queues"`
	PushPlusToken string            `json:"pushplus_token,omitempty"`
}

const manifestVersion = "1.0"

// loadManifest reads path, returning an empty manifest if it does not
// yet exist.
func loadManifest(path string) (*manifestDoc, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &manifestDoc{Version: manifestVersion, Queues: []QueueDescriptor{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var doc manifestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if doc.Queues == nil {
		doc.Queues = []QueueDescriptor{}
	}
	return &doc, nil
}

// saveManifest writes doc to path via write-to-temp-then-rename so
// readers never observe a half-written manifest.
func saveManifest(path string, doc *manifestDoc) error {
	doc.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest temp file: %w", err)
	}
	return os.Rename(tmp, path)
}
