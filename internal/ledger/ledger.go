// Package ledger is the boundary to the external key/value ledger that holds
// portfolio records and the record index.
//
// The ledger is a flat store of opaque blobs. It offers unconditional Get and
// Set on a single key and nothing else: no transactions spanning keys, no
// atomic append, no version tokens. Every caller-side update is therefore a
// read-modify-write cycle that may lose a concurrent writer's change.
//
// Adapters:
//   - MemoryLedger: in-process map, for tests and single-process development.
//   - RedisLedger: go-redis GET/SET.
//   - PostgresLedger: a single key/value table behind a pgx pool.
//   - StubLedger: Hyperledger Fabric world state via the chaincode shim.
package ledger

import (
	"context"
	"errors"
)

// ErrEmpty is returned by Get when the key has never been written.
// A key written with a zero-length value is present and returns an empty
// slice with a nil error instead.
var ErrEmpty = errors.New("ledger: key not set")

// ErrUnavailable wraps every transport or back-end failure so callers can
// tell "the ledger could not be reached" apart from "the key is missing".
var ErrUnavailable = errors.New("ledger unavailable")

// Ledger is the read/write port over the external key/value store.
type Ledger interface {
	// Get returns the value stored at key, ErrEmpty when the key was never
	// written, or an error wrapping ErrUnavailable.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set unconditionally overwrites the value at key.
	Set(ctx context.Context, key string, value []byte) error
}

// Pinger is implemented by ledgers that can report their own availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KeyScanner is implemented by ledgers that can enumerate their keys.
// The registry uses it to find records that never made it into the index.
type KeyScanner interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// ConditionalSetter is implemented by ledgers that support a conditional
// write. CompareAndSet stores next only if the current value equals prev;
// a nil prev means "only if the key is not set". It reports whether the
// write happened.
type ConditionalSetter interface {
	CompareAndSet(ctx context.Context, key string, prev, next []byte) (bool, error)
}

// unavailable wraps err with ErrUnavailable unless it already carries it.
func unavailable(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return &OpError{Op: op, Key: key, Err: err}
}

// OpError describes a failed ledger call. It matches ErrUnavailable under
// errors.Is and unwraps to the underlying driver error.
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	if e.Key == "" {
		return "ledger " + e.Op + ": " + e.Err.Error()
	}
	return "ledger " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }
