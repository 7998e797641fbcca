// Package settings persists user-editable app settings: which credential
// keys the worker needs, first-run state, and per-suite defaults. The file
// is plain JSON so the desktop frontend can edit it directly; secret values
// themselves live in the keychain, settings only name the keys.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Settings is the on-disk document.
type Settings struct {
	// FirstRunDone is flipped after the onboarding flow has completed once.
	FirstRunDone bool `json:"first_run_done"`

	// Credentials maps worker environment variable names to keychain key
	// names, e.g. {"OPENAI_API_KEY": "openai-api-key"}.
	Credentials map[string]string `json:"credentials,omitempty"`

	// SuiteDefaults holds per-suite launch defaults the UI prefills.
	SuiteDefaults map[string]map[string]any `json:"suite_defaults,omitempty"`
}

// Store reads and writes the settings file with atomic replacement.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// Load reads the settings file. A missing file yields zero-value settings,
// not an error.
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadUnsafe()
}

func (s *Store) loadUnsafe() (Settings, error) {
	var out Settings
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return out, nil
		}
		return out, fmt.Errorf("reading settings: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("parsing settings: %w", err)
	}
	return out, nil
}

// Save writes the settings atomically (temp file then rename) so a crash
// mid-write never leaves a truncated file behind.
func (s *Store) Save(set Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveUnsafe(set)
}

func (s *Store) saveUnsafe(set Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

// Update applies fn to the current settings under the store lock and saves
// the result.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.loadUnsafe()
	if err != nil {
		return err
	}
	fn(&set)
	return s.saveUnsafe(set)
}

// SetCredentialKey records that the worker env var should be filled from the
// named keychain entry.
func (s *Store) SetCredentialKey(envVar, keychainKey string) error {
	return s.Update(func(set *Settings) {
		if set.Credentials == nil {
			set.Credentials = make(map[string]string)
		}
		set.Credentials[envVar] = keychainKey
	})
}

// RemoveCredentialKey forgets a credential mapping.
func (s *Store) RemoveCredentialKey(envVar string) error {
	return s.Update(func(set *Settings) {
		delete(set.Credentials, envVar)
	})
}
