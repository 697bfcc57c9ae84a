package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubProber struct {
	fail        bool
	calls       int
	sawDeadline bool
}

func (s *stubProber) Available(ctx context.Context) error {
	s.calls++
	_, s.sawDeadline = ctx.Deadline()
	if s.fail {
		return errors.New("connection refused")
	}
	return nil
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestCheck_unknownUntilFirstProbe(t *testing.T) {
	checker := New(&stubProber{}, Config{}, zap.NewNop())
	if checker.Status() != StatusUnknown {
		t.Errorf("expected unknown, got %q", checker.Status())
	}
	if got := checker.Check(context.Background()); got != StatusHealthy {
		t.Errorf("expected healthy, got %q", got)
	}
	if checker.LastSeen().IsZero() {
		t.Error("LastSeen not recorded")
	}
}

func TestCheck_probeHasTimeout(t *testing.T) {
	p := &stubProber{}
	New(p, Config{ProbeTimeout: time.Second}, zap.NewNop()).Check(context.Background())
	if !p.sawDeadline {
		t.Error("probe ran without a deadline")
	}
}

func TestCheck_degradesAfterThreshold(t *testing.T) {
	p := &stubProber{}
	checker := New(p, Config{FailThreshold: 3}, zap.NewNop())
	var changes []Status
	checker.SetStatusChange(func(_, to Status) { changes = append(changes, to) })

	checker.Check(context.Background())
	p.fail = true
	for i := 0; i < 2; i++ {
		if got := checker.Check(context.Background()); got != StatusHealthy {
			t.Fatalf("probe %d: degraded before threshold", i+1)
		}
	}
	if got := checker.Check(context.Background()); got != StatusDegraded {
		t.Fatalf("expected degraded at threshold, got %q", got)
	}
	checker.Check(context.Background())

	want := []Status{StatusHealthy, StatusDegraded}
	if len(changes) != len(want) || changes[0] != want[0] || changes[1] != want[1] {
		t.Errorf("changes = %v, want %v", changes, want)
	}
}

func TestCheck_recoversOnSuccess(t *testing.T) {
	p := &stubProber{fail: true}
	checker := New(p, Config{FailThreshold: 2}, zap.NewNop())
	var successes, failures int
	checker.SetMetricsRecord(func(ok bool) {
		if ok {
			successes++
		} else {
			failures++
		}
	})

	checker.Check(context.Background())
	checker.Check(context.Background())
	if checker.Status() != StatusDegraded {
		t.Fatalf("expected degraded, got %q", checker.Status())
	}
	p.fail = false
	if got := checker.Check(context.Background()); got != StatusHealthy {
		t.Errorf("expected healthy after recovery, got %q", got)
	}
	if successes != 1 || failures != 2 {
		t.Errorf("metrics: %d successes, %d failures", successes, failures)
	}
}

func TestStart_probesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan Status, 4)
	checker := New(&stubProber{}, Config{CheckInterval: time.Hour}, zap.NewNop())
	checker.SetStatusChange(func(_, to Status) { changes <- to })

	done := make(chan struct{})
	go func() {
		checker.Start(ctx)
		close(done)
	}()

	select {
	case s := <-changes:
		if s != StatusHealthy {
			t.Fatalf("expected first probe to report healthy, got %q", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not probe immediately")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
