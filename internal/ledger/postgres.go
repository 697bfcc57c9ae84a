package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresLedger persists ledger keys in the ledger_kv table
// (see migrations/001_ledger_kv.up.sql).
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLedger creates a PostgresLedger backed by the given connection pool.
func NewPostgresLedger(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLedger {
	return &PostgresLedger{pool: pool, logger: logger}
}

// Get implements Ledger.
func (l *PostgresLedger) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := l.pool.QueryRow(ctx, `SELECT value FROM ledger_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, unavailable("get", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// Set implements Ledger.
func (l *PostgresLedger) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := l.pool.Exec(ctx, `
		INSERT INTO ledger_kv (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value,
	)
	if err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

// CompareAndSet implements ConditionalSetter. The comparison and write happen
// in one statement, so no explicit transaction is needed.
func (l *PostgresLedger) CompareAndSet(ctx context.Context, key string, prev, next []byte) (bool, error) {
	if next == nil {
		next = []byte{}
	}
	var (
		tag pgconn.CommandTag
		err error
	)
	if prev == nil {
		tag, err = l.pool.Exec(ctx, `
			INSERT INTO ledger_kv (key, value, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO NOTHING`,
			key, next,
		)
	} else {
		tag, err = l.pool.Exec(ctx, `
			UPDATE ledger_kv SET value = $3, updated_at = NOW()
			WHERE key = $1 AND value = $2`,
			key, prev, next,
		)
	}
	if err != nil {
		return false, unavailable("cas", key, err)
	}
	swapped := tag.RowsAffected() == 1
	if !swapped {
		l.logger.Debug("postgres cas lost race", zap.String("key", key))
	}
	return swapped, nil
}

// Keys implements KeyScanner.
func (l *PostgresLedger) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT key FROM ledger_kv WHERE starts_with(key, $1) ORDER BY key ASC`, prefix)
	if err != nil {
		return nil, unavailable("keys", prefix, err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, unavailable("keys", prefix, err)
	}
	return keys, nil
}

// Ping implements Pinger.
func (l *PostgresLedger) Ping(ctx context.Context) error {
	return unavailable("ping", "", l.pool.Ping(ctx))
}
