package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jmerrifield20/careerledger/internal/codec"
	"github.com/jmerrifield20/careerledger/internal/ledger"
	"go.uber.org/zap"
)

// ErrContention is returned in optimistic mode when a conditional write keeps
// losing to concurrent writers.
var ErrContention = errors.New("ledger key contended: conditional write retries exhausted")

// Option configures an IndexManager or RecordStore.
type Option func(*options)

type options struct {
	maxAttempts int
}

// WithOptimisticWrites switches read-modify-write cycles to compare-and-set
// when the ledger implements ledger.ConditionalSetter. Each cycle is retried
// up to maxAttempts times before ErrContention is returned. Ledgers without
// conditional writes keep the unconditional last-writer-wins behaviour.
func WithOptimisticWrites(maxAttempts int) Option {
	return func(o *options) {
		if maxAttempts > 0 {
			o.maxAttempts = maxAttempts
		}
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// IndexManager owns the single ledger key listing every record id in
// insertion order.
type IndexManager struct {
	ledger      ledger.Ledger
	cas         ledger.ConditionalSetter // nil = last-writer-wins
	maxAttempts int
	logger      *zap.Logger
}

// NewIndexManager creates an IndexManager over l.
func NewIndexManager(l ledger.Ledger, logger *zap.Logger, opts ...Option) *IndexManager {
	o := buildOptions(opts)
	m := &IndexManager{ledger: l, logger: logger}
	if o.maxAttempts > 0 {
		if cas, ok := ledger.AsConditionalSetter(l); ok {
			m.cas = cas
			m.maxAttempts = o.maxAttempts
		}
	}
	return m
}

// Optimistic reports whether Append uses conditional writes.
func (m *IndexManager) Optimistic() bool { return m.cas != nil }

// List returns the ids in the index. A missing or corrupt index yields an
// empty list; only a ledger failure is returned as an error.
func (m *IndexManager) List(ctx context.Context) ([]string, error) {
	ids, _, err := m.read(ctx)
	return ids, err
}

// read returns the decoded index and the raw blob it came from. raw is nil
// when the key was never written.
func (m *IndexManager) read(ctx context.Context) (ids []string, raw []byte, err error) {
	raw, err = m.ledger.Get(ctx, IndexKey)
	if errors.Is(err, ledger.ErrEmpty) {
		return []string{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read index: %w", err)
	}
	ids, err = codec.Decode[[]string](raw)
	if err != nil {
		m.logger.Warn("record index is corrupt, treating as empty", zap.Error(err))
		return []string{}, raw, nil
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, raw, nil
}

// Append adds id to the index unless it is already present. The cycle is not
// atomic: without optimistic writes a concurrent Append can overwrite this one.
func (m *IndexManager) Append(ctx context.Context, id string) error {
	if m.cas != nil {
		return m.appendConditional(ctx, id)
	}

	ids, _, err := m.read(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(ids, id) {
		return nil
	}
	b, err := codec.Encode(append(ids, id))
	if err != nil {
		return err
	}
	if err := m.ledger.Set(ctx, IndexKey, b); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

func (m *IndexManager) appendConditional(ctx context.Context, id string) error {
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		ids, raw, err := m.read(ctx)
		if err != nil {
			return err
		}
		if slices.Contains(ids, id) {
			return nil
		}
		b, err := codec.Encode(append(ids, id))
		if err != nil {
			return err
		}
		ok, err := m.cas.CompareAndSet(ctx, IndexKey, raw, b)
		if err != nil {
			return fmt.Errorf("write index: %w", err)
		}
		if ok {
			return nil
		}
		m.logger.Debug("index append lost a race, retrying",
			zap.String("id", id), zap.Int("attempt", attempt))
	}
	return fmt.Errorf("append %s: %w", id, ErrContention)
}
