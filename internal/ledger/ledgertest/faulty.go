// Package ledgertest provides ledger doubles for tests.
package ledgertest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jmerrifield20/careerledger/internal/ledger"
)

// ErrInjected is the cause carried by every injected failure.
var ErrInjected = errors.New("injected fault")

// Faulty wraps a MemoryLedger and fails selected calls on demand. Failures
// are reported wrapped in ledger.ErrUnavailable, exactly as a real adapter
// would report a dropped connection.
type Faulty struct {
	*ledger.MemoryLedger

	mu       sync.Mutex
	failGet  map[string]bool
	failSet  map[string]bool
	setCalls map[string]int
	// BeforeSet, when non-nil, runs before every Set reaches the map.
	BeforeSet func(key string)
}

// NewFaulty returns a Faulty over an empty MemoryLedger.
func NewFaulty() *Faulty {
	return &Faulty{
		MemoryLedger: ledger.NewMemory(),
		failGet:      make(map[string]bool),
		failSet:      make(map[string]bool),
		setCalls:     make(map[string]int),
	}
}

// FailGet makes every Get of key fail until Reset.
func (f *Faulty) FailGet(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet[key] = true
}

// FailSet makes every Set of key fail until Reset.
func (f *Faulty) FailSet(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSet[key] = true
}

// FailSetsWithPrefix makes every Set of a key starting with prefix fail.
func (f *Faulty) FailSetsWithPrefix(prefix string) {
	f.FailSet(prefix + "*")
}

// Reset clears all injected failures.
func (f *Faulty) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.failGet)
	clear(f.failSet)
}

// SetCalls returns how many times Set was called for key, failed calls included.
func (f *Faulty) SetCalls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setCalls[key]
}

func matches(rules map[string]bool, key string) bool {
	if rules[key] {
		return true
	}
	for rule := range rules {
		if p, ok := strings.CutSuffix(rule, "*"); ok && strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// Get implements ledger.Ledger.
func (f *Faulty) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	fail := matches(f.failGet, key)
	f.mu.Unlock()
	if fail {
		return nil, &ledger.OpError{Op: "get", Key: key, Err: ErrInjected}
	}
	return f.MemoryLedger.Get(ctx, key)
}

// Set implements ledger.Ledger.
func (f *Faulty) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.setCalls[key]++
	fail := matches(f.failSet, key)
	hook := f.BeforeSet
	f.mu.Unlock()
	if fail {
		return &ledger.OpError{Op: "set", Key: key, Err: ErrInjected}
	}
	if hook != nil {
		hook(key)
	}
	return f.MemoryLedger.Set(ctx, key, value)
}

// Plain hides the optional capabilities of a ledger so callers see only
// Get and Set.
type Plain struct {
	L ledger.Ledger
}

// Get implements ledger.Ledger.
func (p Plain) Get(ctx context.Context, key string) ([]byte, error) { return p.L.Get(ctx, key) }

// Set implements ledger.Ledger.
func (p Plain) Set(ctx context.Context, key string, value []byte) error {
	return p.L.Set(ctx, key, value)
}
