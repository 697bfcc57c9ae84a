package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the fixed hash of entry 0 and the anchor of the chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one audit record.
type Entry struct {
	Index     int       `json:"index"`
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	RecordID  string    `json:"record_id,omitempty"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	DataHash  string    `json:"data_hash"` // SHA-256 of the JSON payload
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// now is truncated to the microsecond resolution of a postgres timestamptz so
// hashes survive a round trip through the database.
func now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

func genesis() *Entry {
	return &Entry{
		Index:     0,
		ID:        uuid.Nil,
		Timestamp: now(),
		Action:    ActionGenesis,
		Actor:     SystemActor,
		DataHash:  GenesisHash,
		PrevHash:  GenesisHash,
		Hash:      GenesisHash,
	}
}

// newEntry builds the entry that follows prev and seals it.
func newEntry(prev *Entry, recordID, action, actor string, payload any) (*Entry, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	sum := sha256.Sum256(b)
	e := &Entry{
		Index:     prev.Index + 1,
		ID:        uuid.New(),
		Timestamp: now(),
		RecordID:  recordID,
		Action:    action,
		Actor:     actor,
		DataHash:  hex.EncodeToString(sum[:]),
		PrevHash:  prev.Hash,
	}
	e.Hash = hashEntry(e)
	return e, nil
}

// hashEntry is deterministic over every field except Hash. Never call it on
// the genesis entry.
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s|%s",
		e.Index, e.ID, e.Timestamp.Format(time.RFC3339Nano),
		e.RecordID, e.Action, e.Actor, e.DataHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// checkLink validates curr against its predecessor. prev is nil for entry 0.
func checkLink(prev, curr *Entry) error {
	if prev == nil {
		if curr.Hash != GenesisHash {
			return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
		}
		return nil
	}
	if curr.Index != prev.Index+1 {
		return fmt.Errorf("gap in chain after index %d", prev.Index)
	}
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("hash chain broken at index %d", curr.Index)
	}
	if curr.Hash != hashEntry(curr) {
		return fmt.Errorf("entry %d has invalid hash", curr.Index)
	}
	return nil
}
