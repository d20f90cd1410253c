package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iln-nexus/iln/pkg/core"
)

// InMemoryStore is a process-local Memory
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

type entry struct {
	value    interface{}
	deadline time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// NewInMemoryStore returns an empty store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]entry), now: time.Now}
}

func (m *InMemoryStore) Get(_ context.Context, key string) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if ok && e.expired(m.now()) {
		delete(m.entries, key)
		ok = false
	}
	if !ok {
		return nil, fmt.Errorf("key %s: %w", key, core.ErrNotFound)
	}
	return e.value, nil
}

func (m *InMemoryStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.deadline = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *InMemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len counts unexpired entries and drops the rest
func (m *InMemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
		}
	}
	return len(m.entries)
}
