package ledger_test

import (
	"errors"
	"testing"

	"github.com/hyperledger/fabric-chaincode-go/shimtest"

	"github.com/jmerrifield20/careerledger/internal/ledger"
)

func newMockStubLedger(t *testing.T) (*shimtest.MockStub, *ledger.StubLedger) {
	t.Helper()
	stub := shimtest.NewMockStub("careerledger", nil)
	stub.MockTransactionStart("tx1")
	t.Cleanup(func() { stub.MockTransactionEnd("tx1") })
	return stub, ledger.NewStubLedger(stub)
}

func TestStubLedger_missingKeyIsEmpty(t *testing.T) {
	_, l := newMockStubLedger(t)
	if _, err := l.Get(ctx, "portfolio_keys"); !errors.Is(err, ledger.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestStubLedger_roundTrip(t *testing.T) {
	_, l := newMockStubLedger(t)
	if err := l.Set(ctx, "portfolio_1", []byte(`["1"]`)); err != nil {
		t.Fatal(err)
	}
	v, err := l.Get(ctx, "portfolio_1")
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != `["1"]` {
		t.Errorf("got %q", v)
	}
}

func TestStubLedger_keys(t *testing.T) {
	_, l := newMockStubLedger(t)
	for _, k := range []string{"portfolio_b", "portfolio_a", "zzz"} {
		if err := l.Set(ctx, k, []byte("1")); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := l.Keys(ctx, "portfolio_")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "portfolio_a" || keys[1] != "portfolio_b" {
		t.Errorf("keys = %v", keys)
	}
}
