package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmerrifield20/careerledger/internal/codec"
	"github.com/jmerrifield20/careerledger/internal/ledger"
	"github.com/jmerrifield20/careerledger/internal/registry/model"
	"go.uber.org/zap"
)

// RecordStore reads and writes one portfolio record per ledger key.
type RecordStore struct {
	ledger      ledger.Ledger
	cas         ledger.ConditionalSetter // nil = last-writer-wins
	maxAttempts int
	logger      *zap.Logger
}

// NewRecordStore creates a RecordStore over l.
func NewRecordStore(l ledger.Ledger, logger *zap.Logger, opts ...Option) *RecordStore {
	o := buildOptions(opts)
	s := &RecordStore{ledger: l, logger: logger}
	if o.maxAttempts > 0 {
		if cas, ok := ledger.AsConditionalSetter(l); ok {
			s.cas = cas
			s.maxAttempts = o.maxAttempts
		}
	}
	return s
}

// Create writes rec at portfolio_<rec.ID>.
func (s *RecordStore) Create(ctx context.Context, rec *model.Record) error {
	if rec.ID == "" {
		return &model.ErrValidation{Msg: "record id is required"}
	}
	b, err := codec.Encode(rec)
	if err != nil {
		return err
	}
	if err := s.ledger.Set(ctx, RecordKey(rec.ID), b); err != nil {
		return fmt.Errorf("write record %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record stored under id. A missing or undecodable blob is
// reported as model.ErrNotFound; a ledger failure is returned as is.
func (s *RecordStore) Get(ctx context.Context, id string) (*model.Record, error) {
	rec, _, err := s.read(ctx, id)
	return rec, err
}

// Exists reports whether a readable record is stored under id.
func (s *RecordStore) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, model.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *RecordStore) read(ctx context.Context, id string) (*model.Record, []byte, error) {
	raw, err := s.ledger.Get(ctx, RecordKey(id))
	if errors.Is(err, ledger.ErrEmpty) {
		return nil, nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read record %s: %w", id, err)
	}

	rec, err := codec.Decode[*model.Record](raw)
	if err == nil && rec == nil {
		err = &codec.DecodeError{Type: "*model.Record", Err: errors.New("null blob")}
	}
	if err != nil {
		s.logger.Warn("record blob is corrupt, treating as absent",
			zap.String("id", id), zap.Error(err))
		return nil, nil, fmt.Errorf("%w: %s: %w", model.ErrNotFound, id, err)
	}

	// Blobs written by older clients may lack id, status or skills.
	if rec.Skills == nil {
		rec.Skills = []string{}
	}
	if rec.ID == "" {
		rec.ID = id
	}
	if rec.Status == "" {
		rec.Status = model.StatusPending
	}
	return rec, raw, nil
}

// SetStatus replaces the status of the record under id and leaves every other
// field as stored. Two concurrent calls race: the later write wins unless
// optimistic writes are enabled.
func (s *RecordStore) SetStatus(ctx context.Context, id string, status model.Status) (*model.Record, error) {
	if !status.Valid() {
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("unknown status %q", status)}
	}
	return s.Update(ctx, id, func(rec *model.Record) error {
		rec.Status = status
		return nil
	})
}

// Update runs a read-modify-write cycle on the record under id. mutate sees
// the freshly read record and may reject it by returning an error, which is
// passed through unchanged. In optimistic mode mutate is re-run against the
// current record after every lost race.
func (s *RecordStore) Update(ctx context.Context, id string, mutate func(*model.Record) error) (*model.Record, error) {
	attempts := 1
	if s.cas != nil {
		attempts = s.maxAttempts
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		rec, raw, err := s.read(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(rec); err != nil {
			return nil, err
		}
		// The key names the record; mutate cannot move it.
		rec.ID = id
		b, err := codec.Encode(rec)
		if err != nil {
			return nil, err
		}

		if s.cas == nil {
			if err := s.ledger.Set(ctx, RecordKey(id), b); err != nil {
				return nil, fmt.Errorf("write record %s: %w", id, err)
			}
			return rec, nil
		}

		ok, err := s.cas.CompareAndSet(ctx, RecordKey(id), raw, b)
		if err != nil {
			return nil, fmt.Errorf("write record %s: %w", id, err)
		}
		if ok {
			return rec, nil
		}
		s.logger.Debug("record update lost a race, retrying",
			zap.String("id", id), zap.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("update record %s: %w", id, ErrContention)
}
