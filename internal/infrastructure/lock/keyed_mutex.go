package lock

import (
	"context"
	"errors"
	"strings"
	"sync"

	"foodtrace/internal/errs"
	"foodtrace/internal/ports"
)

// KeyedMutex serializes callers per key inside one process. Entries are
// dropped once no caller holds or waits for the key.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	slot chan struct{}
	refs int
}

var _ ports.Locker = (*KeyedMutex)(nil)

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("lock key is required")
	}

	entry := m.acquireEntry(key)
	select {
	case entry.slot <- struct{}{}:
	case <-ctx.Done():
		m.releaseEntry(key)
		return nil, errs.Wrapf(ctx.Err(), "wait for lock %q", key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.slot
			m.releaseEntry(key)
		})
	}, nil
}

func (m *KeyedMutex) acquireEntry(key string) *keyedEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		entry = &keyedEntry{slot: make(chan struct{}, 1)}
		m.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (m *KeyedMutex) releaseEntry(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.entries, key)
	}
}

func (m *KeyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
