package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey serialises Append across every registry instance sharing
// the database.
const advisoryLockKey = int64(2_024_061_117)

const entryColumns = `idx, id, ts, record_id, action, actor, data_hash, prev_hash, hash`

// Postgres persists the journal in the audit_journal table.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a Postgres journal over pool. Call EnsureGenesis once
// before the first Append.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger}
}

// EnsureGenesis inserts the genesis entry unless the table already has one.
func (p *Postgres) EnsureGenesis(ctx context.Context) error {
	g := genesis()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO audit_journal (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (idx) DO NOTHING`,
		g.Index, g.ID, g.Timestamp, g.RecordID, g.Action, g.Actor, g.DataHash, g.PrevHash, g.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert genesis: %w", err)
	}
	return nil
}

// Append implements Journal. The tail read and the insert run in one
// transaction holding a transaction-scoped advisory lock.
func (p *Postgres) Append(ctx context.Context, recordID, action, actor string, payload any) (*Entry, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	prev, err := scanEntry(tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM audit_journal ORDER BY idx DESC LIMIT 1`))
	if err != nil {
		return nil, fmt.Errorf("read journal tail: %w", err)
	}

	e, err := newEntry(prev, recordID, action, actor, payload)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_journal (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.Index, e.ID, e.Timestamp, e.RecordID, e.Action, e.Actor, e.DataHash, e.PrevHash, e.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert journal entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit journal tx: %w", err)
	}

	p.logger.Debug("journal entry appended",
		zap.Int("idx", e.Index),
		zap.String("action", e.Action),
		zap.String("record_id", e.RecordID),
	)
	return e, nil
}

// Get implements Journal.
func (p *Postgres) Get(ctx context.Context, index int) (*Entry, error) {
	e, err := scanEntry(p.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM audit_journal WHERE idx = $1`, index))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: index %d", ErrNoEntry, index)
	}
	if err != nil {
		return nil, fmt.Errorf("get journal entry %d: %w", index, err)
	}
	return e, nil
}

// Range implements Journal.
func (p *Postgres) Range(ctx context.Context, from, limit int) ([]*Entry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM audit_journal
		 WHERE idx >= $1 ORDER BY idx ASC LIMIT $2`, max(from, 0), limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Entry, error) {
		return scanEntry(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan journal rows: %w", err)
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return entries, nil
}

// Len implements Journal.
func (p *Postgres) Len(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_journal").Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal entries: %w", err)
	}
	return n, nil
}

// Verify implements Journal. It streams the whole table, so it is O(n).
func (p *Postgres) Verify(ctx context.Context) error {
	rows, err := p.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM audit_journal ORDER BY idx ASC`)
	if err != nil {
		return fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var prev *Entry
	for rows.Next() {
		curr, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan journal row: %w", err)
		}
		if err := checkLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return rows.Err()
}

// Root implements Journal.
func (p *Postgres) Root(ctx context.Context) (string, error) {
	var hash string
	if err := p.pool.QueryRow(ctx,
		"SELECT hash FROM audit_journal ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get journal root: %w", err)
	}
	return hash, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	e := &Entry{}
	if err := row.Scan(
		&e.Index, &e.ID, &e.Timestamp, &e.RecordID,
		&e.Action, &e.Actor, &e.DataHash, &e.PrevHash, &e.Hash,
	); err != nil {
		return nil, err
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}
