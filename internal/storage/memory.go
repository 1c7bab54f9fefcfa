package storage

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. It models tab/session-scoped browser
// storage: contents vanish with the process.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// now is swapped out by tests.
	now func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Unavailable is a Store that always fails with ErrUnavailable. It
// stands in for blocked browser storage in tests and lets hosts opt out
// of persistence entirely.
type Unavailable struct{}

func (Unavailable) Get(context.Context, string) (string, error) { return "", ErrUnavailable }

func (Unavailable) Set(context.Context, string, string, time.Duration) error {
	return ErrUnavailable
}

func (Unavailable) Delete(context.Context, string) error { return ErrUnavailable }
