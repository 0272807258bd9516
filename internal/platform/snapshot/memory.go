package snapshot

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is an in-process Store used by tests and as the reference
// implementation of the versioning contract.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Load(_ context.Context, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	doc := make(json.RawMessage, len(e.Doc))
	copy(doc, e.Doc)
	return Entry{Doc: doc, Version: e.Version}, nil
}

func (m *Memory) Save(_ context.Context, key string, doc json.RawMessage, expected uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entries[key]
	switch {
	case !ok && expected != 0:
		return 0, ErrConflict
	case ok && expected != cur.Version:
		return 0, ErrConflict
	}
	stored := make(json.RawMessage, len(doc))
	copy(stored, doc)
	next := expected + 1
	m.entries[key] = Entry{Doc: stored, Version: next}
	return next, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Close() error { return nil }
