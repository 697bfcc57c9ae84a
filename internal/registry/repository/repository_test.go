package repository_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"testing"

	"github.com/jmerrifield20/careerledger/internal/ledger"
	"github.com/jmerrifield20/careerledger/internal/ledger/ledgertest"
	"github.com/jmerrifield20/careerledger/internal/registry/model"
	"github.com/jmerrifield20/careerledger/internal/registry/repository"
	"go.uber.org/zap"
)

var ctx = context.Background()

func TestIndexList_emptyLedger(t *testing.T) {
	idx := repository.NewIndexManager(ledger.NewMemory(), zap.NewNop())
	ids, err := idx.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ids == nil || len(ids) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", ids)
	}
}

func TestIndexList_corruptIndexIsEmpty(t *testing.T) {
	for _, blob := range []string{"", "{", `{"a":1}`, "null", "FHE-xyz"} {
		l := ledger.NewMemory()
		_ = l.Set(ctx, repository.IndexKey, []byte(blob))
		ids, err := repository.NewIndexManager(l, zap.NewNop()).List(ctx)
		if err != nil {
			t.Fatalf("blob %q: unexpected error %v", blob, err)
		}
		if len(ids) != 0 {
			t.Errorf("blob %q: expected empty list, got %v", blob, ids)
		}
	}
}

func TestIndexList_ledgerFailurePropagates(t *testing.T) {
	l := ledgertest.NewFaulty()
	l.FailGet(repository.IndexKey)
	_, err := repository.NewIndexManager(l, zap.NewNop()).List(ctx)
	if !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestIndexAppend_preservesOrder(t *testing.T) {
	idx := repository.NewIndexManager(ledger.NewMemory(), zap.NewNop())
	for _, id := range []string{"c", "a", "b"} {
		if err := idx.Append(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	ids, _ := idx.List(ctx)
	if !reflect.DeepEqual(ids, []string{"c", "a", "b"}) {
		t.Errorf("got %v, want insertion order", ids)
	}
}

func TestIndexAppend_idempotent(t *testing.T) {
	l := ledgertest.NewFaulty()
	idx := repository.NewIndexManager(l, zap.NewNop())
	for range 2 {
		if err := idx.Append(ctx, "id1"); err != nil {
			t.Fatal(err)
		}
	}
	ids, _ := idx.List(ctx)
	if !reflect.DeepEqual(ids, []string{"id1"}) {
		t.Errorf("got %v, want [id1]", ids)
	}
	if n := l.SetCalls(repository.IndexKey); n != 1 {
		t.Errorf("expected the duplicate append to skip the write, got %d writes", n)
	}
}

func TestIndexAppend_overCorruptIndexStartsFresh(t *testing.T) {
	l := ledger.NewMemory()
	_ = l.Set(ctx, repository.IndexKey, []byte("garbage"))
	idx := repository.NewIndexManager(l, zap.NewNop())
	if err := idx.Append(ctx, "id1"); err != nil {
		t.Fatal(err)
	}
	ids, _ := idx.List(ctx)
	if !reflect.DeepEqual(ids, []string{"id1"}) {
		t.Errorf("got %v", ids)
	}
}

func TestIndexAppend_writeFailure(t *testing.T) {
	l := ledgertest.NewFaulty()
	l.FailSet(repository.IndexKey)
	err := repository.NewIndexManager(l, zap.NewNop()).Append(ctx, "id1")
	if !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

// Two appends that both read the empty index before either writes: the later
// write replaces the earlier one and one id is lost.
func TestIndexAppend_concurrentLastWriterWins(t *testing.T) {
	l := ledgertest.NewFaulty()
	var arrived sync.WaitGroup
	arrived.Add(2)
	l.BeforeSet = func(key string) {
		if key == repository.IndexKey {
			arrived.Done()
			arrived.Wait()
		}
	}
	idx := repository.NewIndexManager(l, zap.NewNop())

	var wg sync.WaitGroup
	for _, id := range []string{"id1", "id2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := idx.Append(ctx, id); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	ids, _ := idx.List(ctx)
	if len(ids) != 1 {
		t.Fatalf("expected exactly one surviving id, got %v", ids)
	}
	if ids[0] != "id1" && ids[0] != "id2" {
		t.Errorf("unexpected survivor %q", ids[0])
	}
}

func TestIndexAppend_optimisticKeepsEveryID(t *testing.T) {
	idx := repository.NewIndexManager(ledger.NewMemory(), zap.NewNop(), repository.WithOptimisticWrites(1000))
	if !idx.Optimistic() {
		t.Fatal("expected optimistic mode over a MemoryLedger")
	}

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := idx.Append(ctx, fmt.Sprintf("id%02d", i)); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	ids, _ := idx.List(ctx)
	if len(ids) != 20 {
		t.Fatalf("expected 20 ids, got %d: %v", len(ids), ids)
	}
	slices.Sort(ids)
	if len(slices.Compact(ids)) != 20 {
		t.Errorf("duplicate ids in index")
	}
}

func TestIndexAppend_optimisticFallsBackWithoutCAS(t *testing.T) {
	idx := repository.NewIndexManager(ledgertest.Plain{L: ledger.NewMemory()}, zap.NewNop(), repository.WithOptimisticWrites(3))
	if idx.Optimistic() {
		t.Fatal("a ledger without CompareAndSet cannot run optimistic writes")
	}
	if err := idx.Append(ctx, "id1"); err != nil {
		t.Fatal(err)
	}
}

// contended reports a lost race on every conditional write.
type contended struct{ *ledger.MemoryLedger }

func (contended) CompareAndSet(context.Context, string, []byte, []byte) (bool, error) {
	return false, nil
}

func TestIndexAppend_optimisticContention(t *testing.T) {
	idx := repository.NewIndexManager(contended{ledger.NewMemory()}, zap.NewNop(), repository.WithOptimisticWrites(3))
	err := idx.Append(ctx, "id1")
	if !errors.Is(err, repository.ErrContention) {
		t.Fatalf("expected ErrContention, got %v", err)
	}
}

func sampleRecord(id string) *model.Record {
	return &model.Record{
		ID:              id,
		Title:           "X",
		Description:     "Backend work",
		Skills:          []string{"Go"},
		ExperienceLevel: model.LevelExpert,
		Payload:         "FHE-e30=",
		CreatedAt:       1700000000,
		Owner:           "0xAA",
		Status:          model.StatusPending,
	}
}

func TestRecordCreateGet(t *testing.T) {
	store := repository.NewRecordStore(ledger.NewMemory(), zap.NewNop())
	in := sampleRecord("1-abc")
	if err := store.Create(ctx, in); err != nil {
		t.Fatal(err)
	}
	out, err := store.Get(ctx, "1-abc")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestRecordGet_notFound(t *testing.T) {
	l := ledger.NewMemory()
	_ = l.Set(ctx, repository.RecordKey("bad"), []byte("{not json"))
	_ = l.Set(ctx, repository.RecordKey("null"), []byte("null"))
	store := repository.NewRecordStore(l, zap.NewNop())

	for _, id := range []string{"missing", "bad", "null"} {
		_, err := store.Get(ctx, id)
		if !errors.Is(err, model.ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", id, err)
		}
		if ok, err := store.Exists(ctx, id); ok || err != nil {
			t.Errorf("%s: Exists = %v, %v", id, ok, err)
		}
	}
}

func TestRecordGet_legacyBlobDefaults(t *testing.T) {
	l := ledger.NewMemory()
	blob := `{"title":"X","description":"","skills":["Go"],"experienceLevel":"Beginner","data":"FHE-e30=","timestamp":1700000000,"owner":"0xAA"}`
	_ = l.Set(ctx, repository.RecordKey("1700000000000-abcdefg"), []byte(blob))

	rec, err := repository.NewRecordStore(l, zap.NewNop()).Get(ctx, "1700000000000-abcdefg")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != "1700000000000-abcdefg" {
		t.Errorf("id = %q, want key suffix", rec.ID)
	}
	if rec.Status != model.StatusPending {
		t.Errorf("status = %q, want pending", rec.Status)
	}
}

func TestRecordGet_ledgerFailurePropagates(t *testing.T) {
	l := ledgertest.NewFaulty()
	l.FailGet(repository.RecordKey("x"))
	_, err := repository.NewRecordStore(l, zap.NewNop()).Get(ctx, "x")
	if !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if errors.Is(err, model.ErrNotFound) {
		t.Error("a ledger failure must not look like a missing record")
	}
}

func TestRecordSetStatus_preservesOtherFields(t *testing.T) {
	store := repository.NewRecordStore(ledger.NewMemory(), zap.NewNop())
	in := sampleRecord("1-abc")
	_ = store.Create(ctx, in)

	got, err := store.SetStatus(ctx, "1-abc", model.StatusVerified)
	if err != nil {
		t.Fatal(err)
	}
	want := in.Clone()
	want.Status = model.StatusVerified
	if !reflect.DeepEqual(got, want) {
		t.Errorf("returned %+v, want %+v", got, want)
	}
	stored, _ := store.Get(ctx, "1-abc")
	if !reflect.DeepEqual(stored, want) {
		t.Errorf("stored %+v, want %+v", stored, want)
	}
}

func TestRecordSetStatus_errors(t *testing.T) {
	store := repository.NewRecordStore(ledger.NewMemory(), zap.NewNop())
	if _, err := store.SetStatus(ctx, "missing", model.StatusVerified); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	_ = store.Create(ctx, sampleRecord("1-abc"))
	var ve *model.ErrValidation
	if _, err := store.SetStatus(ctx, "1-abc", "archived"); !errors.As(err, &ve) {
		t.Errorf("expected *ErrValidation, got %v", err)
	}
}

func TestRecordUpdate_mutateErrorSkipsWrite(t *testing.T) {
	l := ledgertest.NewFaulty()
	store := repository.NewRecordStore(l, zap.NewNop())
	_ = store.Create(ctx, sampleRecord("1-abc"))
	before := l.SetCalls(repository.RecordKey("1-abc"))

	stop := errors.New("stop")
	_, err := store.Update(ctx, "1-abc", func(*model.Record) error { return stop })
	if !errors.Is(err, stop) {
		t.Fatalf("expected mutate error, got %v", err)
	}
	if l.SetCalls(repository.RecordKey("1-abc")) != before {
		t.Error("record written despite mutate error")
	}
}

func TestRecordUpdate_optimisticRerunsMutate(t *testing.T) {
	l := ledger.NewMemory()
	store := repository.NewRecordStore(l, zap.NewNop(), repository.WithOptimisticWrites(5))
	_ = store.Create(ctx, sampleRecord("1-abc"))

	calls := 0
	rec, err := store.Update(ctx, "1-abc", func(r *model.Record) error {
		calls++
		if calls == 1 {
			// A competing writer slips in between our read and our write.
			other := sampleRecord("1-abc")
			other.Description = "edited elsewhere"
			_ = repository.NewRecordStore(l, zap.NewNop()).Create(ctx, other)
		}
		r.Status = model.StatusRejected
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("mutate ran %d times, want 2", calls)
	}
	if rec.Description != "edited elsewhere" || rec.Status != model.StatusRejected {
		t.Errorf("retry did not build on the competing write: %+v", rec)
	}
}

func TestIDFromKey(t *testing.T) {
	tests := []struct {
		key string
		id  string
		ok  bool
	}{
		{"portfolio_1-abc", "1-abc", true},
		{"portfolio_keys", "", false},
		{"portfolio_", "", false},
		{"other_1", "", false},
	}
	for _, tt := range tests {
		id, ok := repository.IDFromKey(tt.key)
		if id != tt.id || ok != tt.ok {
			t.Errorf("IDFromKey(%q) = %q, %v; want %q, %v", tt.key, id, ok, tt.id, tt.ok)
		}
	}
}
