package repository

import "strings"

// Ledger key namespace. The index and every record share the portfolio_
// prefix, so IDFromKey must exclude IndexKey explicitly.
const (
	IndexKey        = "portfolio_keys"
	RecordKeyPrefix = "portfolio_"
)

// RecordKey returns the ledger key holding the record with the given id.
func RecordKey(id string) string { return RecordKeyPrefix + id }

// IDFromKey reverses RecordKey. It reports false for the index key and for
// keys outside the record namespace.
func IDFromKey(key string) (string, bool) {
	if key == IndexKey {
		return "", false
	}
	id, ok := strings.CutPrefix(key, RecordKeyPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
