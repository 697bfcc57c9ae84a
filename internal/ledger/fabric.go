package ledger

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/hyperledger/fabric-chaincode-go/shim"
)

// StubLedger adapts the world state of a Fabric chaincode invocation.
//
// A stub is scoped to one transaction proposal, so a StubLedger must not
// outlive the invocation that created it. Writes are only visible to other
// clients once the transaction is endorsed and committed, which is exactly
// the last-writer-wins visibility the registry already assumes.
//
// Fabric treats an empty value as a delete, so a zero-length Set cannot be
// read back as "present but empty" on this back end.
type StubLedger struct {
	stub shim.ChaincodeStubInterface
}

// NewStubLedger wraps the chaincode stub of the current invocation.
func NewStubLedger(stub shim.ChaincodeStubInterface) *StubLedger {
	return &StubLedger{stub: stub}
}

// Get implements Ledger. GetState returns a nil slice for a missing key.
func (l *StubLedger) Get(_ context.Context, key string) ([]byte, error) {
	v, err := l.stub.GetState(key)
	if err != nil {
		return nil, unavailable("get", key, err)
	}
	if v == nil {
		return nil, ErrEmpty
	}
	return v, nil
}

// Set implements Ledger.
func (l *StubLedger) Set(_ context.Context, key string, value []byte) error {
	if err := l.stub.PutState(key, value); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

// Keys implements KeyScanner with a range query over [prefix, prefix+max rune).
func (l *StubLedger) Keys(_ context.Context, prefix string) ([]string, error) {
	iter, err := l.stub.GetStateByRange(prefix, prefix+string(utf8.MaxRune))
	if err != nil {
		return nil, unavailable("keys", prefix, err)
	}
	defer iter.Close()

	var keys []string
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return nil, unavailable("keys", prefix, fmt.Errorf("iterate: %w", err))
		}
		keys = append(keys, kv.Key)
	}
	sort.Strings(keys)
	return keys, nil
}
