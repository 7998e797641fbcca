package keychain

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps credentials in a map. It backs tests and platforms
// without a system keychain; values are lost when the process exits.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]string)}
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	s.creds[key] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(key string) (string, error) {
	s.mu.RLock()
	val, ok := s.creds[key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return val, nil
}

func (s *MemoryStore) List() ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.creds))
	for k := range s.creds {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.creds, key)
	s.mu.Unlock()
	return nil
}

// GetMultiple returns the subset of keys that exist. Missing keys are
// omitted rather than failing the whole lookup, matching SystemStore.
func (s *MemoryStore) GetMultiple(keys []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := s.creds[key]; ok {
			found[key] = val
		}
	}
	return found, nil
}
