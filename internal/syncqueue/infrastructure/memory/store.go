// Package memory provides an in-memory queue for tests and embedding.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	readings "fieldlog/internal/readings/domain"
	"fieldlog/internal/syncqueue"
)

// Store is a map-backed queue with the same per-key semantics as the
// durable adapter. Not durable; test and embedding use only.
type Store struct {
	mu      sync.RWMutex
	entries map[readings.EntryKey]readings.PendingEntry
}

// NewStore constructs an empty in-memory queue.
func NewStore() *Store {
	return &Store{entries: make(map[readings.EntryKey]readings.PendingEntry)}
}

// Put inserts or overwrites the entry at its key.
func (s *Store) Put(_ context.Context, entry readings.PendingEntry) error {
	if err := entry.Reading.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key()] = entry
	return nil
}

// Get returns the entry at key, or ErrNotFound.
func (s *Store) Get(_ context.Context, key readings.EntryKey) (*readings.PendingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, syncqueue.ErrNotFound
	}
	return &entry, nil
}

// List returns all entries ordered by key.
func (s *Store) List(_ context.Context) ([]readings.PendingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]readings.PendingEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key() < entries[j].Key()
	})
	return entries, nil
}

// Delete removes the entry at key.
func (s *Store) Delete(_ context.Context, key readings.EntryKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// DeleteIfUnchanged removes the entry at key only while its QueuedAt still
// matches queuedAt.
func (s *Store) DeleteIfUnchanged(_ context.Context, key readings.EntryKey, queuedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[key]; ok && entry.QueuedAt.Equal(queuedAt) {
		delete(s.entries, key)
	}
	return nil
}

// Clear removes every entry.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[readings.EntryKey]readings.PendingEntry)
	return nil
}

// HasPending reports whether any entry is queued.
func (s *Store) HasPending(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries) > 0, nil
}
