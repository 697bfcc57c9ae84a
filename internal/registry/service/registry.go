package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jmerrifield20/careerledger/internal/codec"
	"github.com/jmerrifield20/careerledger/internal/journal"
	"github.com/jmerrifield20/careerledger/internal/ledger"
	"github.com/jmerrifield20/careerledger/internal/registry/model"
	"github.com/jmerrifield20/careerledger/internal/registry/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrScanUnsupported is returned by FindOrphans when the ledger cannot
// enumerate its keys.
var ErrScanUnsupported = errors.New("ledger cannot enumerate keys")

// OrphanError reports a publish whose record was written but whose id never
// reached the index. The record is unreachable through LoadAll until the id
// is reindexed.
type OrphanError struct {
	ID  string
	Err error
}

func (e *OrphanError) Error() string {
	return fmt.Sprintf("record %s written but not indexed: %v", e.ID, e.Err)
}

func (e *OrphanError) Unwrap() error { return e.Err }

// indexStore is the index persistence used by Registry.
// *repository.IndexManager satisfies this interface.
type indexStore interface {
	List(ctx context.Context) ([]string, error)
	Append(ctx context.Context, id string) error
}

// recordStore is the record persistence used by Registry and Review.
// *repository.RecordStore satisfies this interface.
type recordStore interface {
	Create(ctx context.Context, rec *model.Record) error
	Get(ctx context.Context, id string) (*model.Record, error)
	Exists(ctx context.Context, id string) (bool, error)
	Update(ctx context.Context, id string, mutate func(*model.Record) error) (*model.Record, error)
}

// DefaultFetchConcurrency bounds the parallel record reads in LoadAll.
const DefaultFetchConcurrency = 8

// Registry publishes portfolio records and reads them back through the
// record index.
type Registry struct {
	ledger     ledger.Ledger
	index      indexStore
	records    recordStore
	enc        codec.Encrypter
	journal    journal.Journal // nil = no audit entries
	fetchLimit int
	now        func() time.Time
	logger     *zap.Logger
}

// NewRegistry creates a Registry. l is consulted directly only for the
// optional Pinger and KeyScanner capabilities.
func NewRegistry(l ledger.Ledger, index indexStore, records recordStore, enc codec.Encrypter, logger *zap.Logger) *Registry {
	if enc == nil {
		enc = codec.PlaceholderFHE{}
	}
	return &Registry{
		ledger:     l,
		index:      index,
		records:    records,
		enc:        enc,
		fetchLimit: DefaultFetchConcurrency,
		now:        time.Now,
		logger:     logger,
	}
}

// SetJournal enables audit entries for publishes and reindexing.
func (r *Registry) SetJournal(j journal.Journal) { r.journal = j }

// SetFetchConcurrency bounds how many records LoadAll reads at once.
func (r *Registry) SetFetchConcurrency(n int) {
	if n > 0 {
		r.fetchLimit = n
	}
}

// SetClock replaces the time source used for ids and createdAt.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

// appendJournal records an audit entry. Journal failures are logged only.
func (r *Registry) appendJournal(ctx context.Context, id, action, actor string, payload any) {
	if r.journal == nil {
		return
	}
	if _, err := r.journal.Append(ctx, id, action, actor, payload); err != nil {
		r.logger.Error("journal append failed (non-fatal)",
			zap.String("action", action),
			zap.String("id", id),
			zap.Error(err),
		)
	}
}

// Publish stores a new pending record owned by owner and adds it to the
// index. The two writes are not atomic: if the index write fails after the
// record write succeeded, Publish returns an *OrphanError carrying the id.
// Nothing is retried.
func (r *Registry) Publish(ctx context.Context, draft model.Draft, owner string) (*model.Record, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, &model.ErrValidation{Msg: "owner account is required"}
	}
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	now := r.now()
	id, err := generateRecordID(now)
	if err != nil {
		return nil, fmt.Errorf("generate record id: %w", err)
	}
	payload, err := codec.SealJSON(r.enc, draft)
	if err != nil {
		return nil, fmt.Errorf("seal payload: %w", err)
	}

	rec := &model.Record{
		ID:              id,
		Title:           draft.Title,
		Description:     draft.Description,
		Skills:          draft.Skills,
		ExperienceLevel: draft.ExperienceLevel,
		Payload:         payload,
		CreatedAt:       now.Unix(),
		Owner:           owner,
		Status:          model.StatusPending,
	}
	if err := r.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	if err := r.index.Append(ctx, id); err != nil {
		r.logger.Error("record orphaned: index append failed",
			zap.String("id", id), zap.Error(err))
		return nil, &OrphanError{ID: id, Err: err}
	}

	r.appendJournal(ctx, id, journal.ActionPublish, owner, rec)
	r.logger.Info("portfolio published", zap.String("id", id), zap.String("owner", owner))
	return rec, nil
}

// LoadAll returns every indexed record, newest first. Index entries whose
// record is missing or unreadable are logged and skipped; a ledger failure
// fails the whole call.
func (r *Registry) LoadAll(ctx context.Context) ([]*model.Record, error) {
	ids, err := r.index.List(ctx)
	if err != nil {
		return nil, err
	}

	recs := make([]*model.Record, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fetchLimit)
	for i, id := range ids {
		g.Go(func() error {
			rec, err := r.records.Get(gctx, id)
			if errors.Is(err, model.ErrNotFound) {
				r.logger.Warn("dangling index entry skipped", zap.String("id", id), zap.Error(err))
				return nil
			}
			if err != nil {
				return err
			}
			recs[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := slices.DeleteFunc(recs, func(rec *model.Record) bool { return rec == nil })
	sortNewestFirst(out)
	return out, nil
}

// sortNewestFirst orders by createdAt descending, then id descending so
// records created in the same second keep a stable order.
func sortNewestFirst(recs []*model.Record) {
	slices.SortStableFunc(recs, func(a, b *model.Record) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

// Get returns a single record by id, indexed or not.
func (r *Registry) Get(ctx context.Context, id string) (*model.Record, error) {
	return r.records.Get(ctx, id)
}

// Search returns the indexed records whose title, description or skills
// contain q, ignoring case. An empty q returns everything.
func (r *Registry) Search(ctx context.Context, q string) ([]*model.Record, error) {
	recs, err := r.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(recs, func(rec *model.Record) bool { return !rec.Matches(q) }), nil
}

// Stats counts the indexed records by status.
func (r *Registry) Stats(ctx context.Context) (model.Stats, error) {
	recs, err := r.LoadAll(ctx)
	if err != nil {
		return model.Stats{}, err
	}
	var s model.Stats
	for _, rec := range recs {
		s.Add(rec)
	}
	return s, nil
}

// Available reports whether the ledger answers. Ledgers without a Ping are
// probed with a read of the index key.
func (r *Registry) Available(ctx context.Context) error {
	if p, ok := ledger.AsPinger(r.ledger); ok {
		return p.Ping(ctx)
	}
	_, err := r.ledger.Get(ctx, repository.IndexKey)
	if errors.Is(err, ledger.ErrEmpty) {
		return nil
	}
	return err
}

// FindOrphans returns the ids of records stored in the ledger but missing
// from the index, in ascending order.
func (r *Registry) FindOrphans(ctx context.Context) ([]string, error) {
	scanner, ok := ledger.AsKeyScanner(r.ledger)
	if !ok {
		return nil, ErrScanUnsupported
	}
	keys, err := scanner.Keys(ctx, repository.RecordKeyPrefix)
	if err != nil {
		return nil, err
	}
	ids, err := r.index.List(ctx)
	if err != nil {
		return nil, err
	}
	indexed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		indexed[id] = struct{}{}
	}

	orphans := []string{}
	for _, key := range keys {
		id, ok := repository.IDFromKey(key)
		if !ok {
			continue
		}
		if _, ok := indexed[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	slices.Sort(orphans)
	return orphans, nil
}

// Reindex appends ids to the index. With no ids it repairs every orphan
// FindOrphans reports. Ids without a readable record are skipped. It returns
// the ids it appended and stops at the first ledger failure.
func (r *Registry) Reindex(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		found, err := r.FindOrphans(ctx)
		if err != nil {
			return nil, err
		}
		ids = found
	}

	repaired := []string{}
	for _, id := range ids {
		ok, err := r.records.Exists(ctx, id)
		if err != nil {
			return repaired, err
		}
		if !ok {
			r.logger.Warn("reindex skipped: no readable record", zap.String("id", id))
			continue
		}
		if err := r.index.Append(ctx, id); err != nil {
			return repaired, err
		}
		repaired = append(repaired, id)
		r.appendJournal(ctx, id, journal.ActionReindex, journal.SystemActor, nil)
	}
	if len(repaired) > 0 {
		r.logger.Info("orphans reindexed", zap.Strings("ids", repaired))
	}
	return repaired, nil
}
