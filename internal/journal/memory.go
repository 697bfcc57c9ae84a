package journal

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Journal.
type Memory struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemory returns a Memory journal holding only the genesis entry.
func NewMemory() *Memory {
	return &Memory{entries: []*Entry{genesis()}}
}

// Append implements Journal.
func (m *Memory) Append(_ context.Context, recordID, action, actor string, payload any) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := newEntry(m.entries[len(m.entries)-1], recordID, action, actor, payload)
	if err != nil {
		return nil, err
	}
	m.entries = append(m.entries, e)
	return e, nil
}

// Get implements Journal.
func (m *Memory) Get(_ context.Context, index int) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.entries) {
		return nil, fmt.Errorf("%w: index %d", ErrNoEntry, index)
	}
	cp := *m.entries[index]
	return &cp, nil
}

// Range implements Journal.
func (m *Memory) Range(_ context.Context, from, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if from < 0 {
		from = 0
	}
	out := []*Entry{}
	for i := from; i < len(m.entries) && len(out) < limit; i++ {
		cp := *m.entries[i]
		out = append(out, &cp)
	}
	return out, nil
}

// Len implements Journal.
func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Verify implements Journal.
func (m *Memory) Verify(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var prev *Entry
	for _, curr := range m.entries {
		if err := checkLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

// Root implements Journal.
func (m *Memory) Root(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[len(m.entries)-1].Hash, nil
}
