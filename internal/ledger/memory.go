package ledger

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryLedger is an in-memory, thread-safe Ledger implementation.
// It is primarily useful for testing and for single-process deployments
// that do not require durable persistence across restarts.
//
// The mutex only protects the map itself; it does not make a caller's
// Get-then-Set cycle atomic.
type MemoryLedger struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory creates an empty MemoryLedger.
func NewMemory() *MemoryLedger {
	return &MemoryLedger{values: make(map[string][]byte)}
}

// Get implements Ledger.
func (l *MemoryLedger) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get", key, err)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.values[key]
	if !ok {
		return nil, ErrEmpty
	}
	return bytes.Clone(v), nil
}

// Set implements Ledger.
func (l *MemoryLedger) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return unavailable("set", key, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if value == nil {
		value = []byte{}
	}
	l.values[key] = bytes.Clone(value)
	return nil
}

// CompareAndSet implements ConditionalSetter.
func (l *MemoryLedger) CompareAndSet(ctx context.Context, key string, prev, next []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable("cas", key, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.values[key]
	switch {
	case prev == nil && ok:
		return false, nil
	case prev != nil && (!ok || !bytes.Equal(cur, prev)):
		return false, nil
	}
	l.values[key] = bytes.Clone(next)
	return true, nil
}

// Keys implements KeyScanner. Keys are returned in lexical order.
func (l *MemoryLedger) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("keys", prefix, err)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var keys []string
	for k := range l.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping implements Pinger.
func (l *MemoryLedger) Ping(ctx context.Context) error {
	return unavailable("ping", "", ctx.Err())
}

// Len returns the number of keys held.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.values)
}
