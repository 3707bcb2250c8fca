// Package store provides an expiring key-value store with two scopes:
// a tab scope that lives only as long as the process, and a profile scope
// persisted to disk across restarts.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// entry is the stored record: a value plus its expiry as unix milliseconds.
type entry struct {
	Value  string `json:"value"`
	Expiry int64  `json:"expiry"`
}

// Store is an expiring key-value store. Eviction is lazy: expired entries
// are removed when read, there is no background sweep.
type Store struct {
	mu      sync.Mutex
	entries map[string]json.RawMessage
	path    string // empty for the tab scope

	now func() time.Time
}

// NewTabStore creates an in-memory store that dies with the process.
func NewTabStore() *Store {
	return &Store{
		entries: make(map[string]json.RawMessage),
		now:     time.Now,
	}
}

// NewProfileStore creates a store backed by a JSON file, loading any
// existing contents. A corrupt file is treated as empty.
func NewProfileStore(path string) (*Store, error) {
	s := &Store{
		entries: make(map[string]json.RawMessage),
		path:    path,
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		s.entries = make(map[string]json.RawMessage)
	}
	return s, nil
}

// Set stores a value that expires after ttl. Existing values are overwritten.
func (s *Store) Set(key, value string, ttl time.Duration) error {
	raw, err := json.Marshal(entry{
		Value:  value,
		Expiry: s.now().Add(ttl).UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode store entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = raw
	return s.persistLocked()
}

// Get returns the value for key. An expired or malformed entry is deleted
// and reported as absent.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.entries[key]
	if !ok {
		return "", false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Value == "" || e.Expiry == 0 {
		delete(s.entries, key)
		_ = s.persistLocked()
		return "", false
	}

	if s.now().UnixMilli() > e.Expiry {
		delete(s.entries, key)
		_ = s.persistLocked()
		return "", false
	}
	return e.Value, true
}

// Delete removes a key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	_ = s.persistLocked()
}

// Clear removes all entries. For the profile scope the backing file is
// removed as well.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]json.RawMessage)
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove store file: %w", err)
	}
	return nil
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	data, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return nil
}
