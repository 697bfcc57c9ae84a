// Package journal is a hash-chained, append-only audit log of registry
// events: publishes, approvals and rejections.
//
// The chain begins with a genesis entry whose Hash equals GenesisHash
// (64 hex zeros). Every later entry carries the hash of its predecessor, so
// editing any entry breaks Verify from that point on.
//
// Implementations:
//   - Memory: in-process, for tests and development.
//   - Postgres: durable, appends serialised with an advisory lock.
package journal

import (
	"context"
	"errors"
)

// Event actions recorded by the registry.
const (
	ActionGenesis = "genesis"
	ActionPublish = "publish"
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionReindex = "reindex"
)

// SystemActor is the actor recorded for events not caused by an account.
const SystemActor = "careerledger"

// ErrNoEntry is returned by Get for an index outside the chain.
var ErrNoEntry = errors.New("journal entry not found")

// Journal is the append-only audit log.
type Journal interface {
	// Append adds an entry chained to the current tip. payload is JSON-encoded
	// and only its SHA-256 is kept.
	Append(ctx context.Context, recordID, action, actor string, payload any) (*Entry, error)

	// Get returns the entry at the zero-based index.
	Get(ctx context.Context, index int) (*Entry, error)

	// Range returns up to limit entries starting at index from, oldest first.
	Range(ctx context.Context, from, limit int) ([]*Entry, error)

	// Len returns the number of entries, genesis included.
	Len(ctx context.Context) (int, error)

	// Verify walks the chain and returns nil when every link is intact.
	Verify(ctx context.Context) error

	// Root returns the hash of the newest entry.
	Root(ctx context.Context) (string, error)
}
