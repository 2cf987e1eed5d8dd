package localstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

const legacyAdminFlagKey = "blog_admin"

// Store is a file-backed key/value store standing in for the browser's
// persisted local state: device fingerprint, visit counter, preferences.
type Store struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

// Open loads the store from path, creating an empty one when the file does
// not exist. The superseded shared-secret admin flag is removed on open.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("localstate: path is required")
	}

	store := &Store{path: path, data: make(map[string]string)}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("localstate: read %s: %w", path, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &store.data); err != nil {
			return nil, fmt.Errorf("localstate: parse %s: %w", path, err)
		}
	}

	if _, found := store.data[legacyAdminFlagKey]; found {
		delete(store.data, legacyAdminFlagKey)
		if err := store.flushLocked(); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// Get returns the stored value for key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[key]
	return value, ok
}

// Set stores the value and persists the file.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s.flushLocked()
}

// Delete removes the key and persists the file.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("localstate: encode state: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("localstate: write %s: %w", s.path, err)
	}
	return nil
}
