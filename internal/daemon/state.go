package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// stateFile persists the worker PID for crash recovery. If the daemon dies
// while a worker it spawned keeps running, the next daemon start finds the
// record and can reap the orphan before spawning a fresh one.
type stateFile struct {
	path string
	mu   sync.Mutex
}

// WorkerRecord is the persisted state of the supervised worker.
type WorkerRecord struct {
	PID       int    `json:"pid,omitempty"`
	Command   string `json:"command,omitempty"`
	StartedAt int64  `json:"started_at,omitempty"` // Unix timestamp
	External  bool   `json:"external,omitempty"`   // adopted, not spawned by us
}

func newStateFile(dir string) *stateFile {
	return &stateFile{
		path: filepath.Join(dir, "state.json"),
	}
}

func (sf *stateFile) load() (WorkerRecord, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	var rec WorkerRecord
	data, err := os.ReadFile(sf.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rec, nil
		}
		return rec, fmt.Errorf("reading state file: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("parsing state file: %w", err)
	}
	return rec, nil
}

func (sf *stateFile) save(rec WorkerRecord) error {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(sf.path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := sf.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, sf.path)
}

func (sf *stateFile) clear() error {
	return sf.save(WorkerRecord{})
}
