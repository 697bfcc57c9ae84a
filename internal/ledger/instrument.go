package ledger

import (
	"context"
	"errors"
	"time"
)

// ObserveFunc receives the outcome of every ledger call made through an
// Instrumented ledger. result is "ok", "empty" or "error".
type ObserveFunc func(op, result string, elapsed time.Duration)

// Instrumented decorates a Ledger and reports each Get and Set to an
// ObserveFunc. Optional capabilities of the wrapped ledger stay reachable
// through the As* helpers.
type Instrumented struct {
	next    Ledger
	observe ObserveFunc
}

// Instrument wraps l. A nil observe returns l unchanged.
func Instrument(l Ledger, observe ObserveFunc) Ledger {
	if observe == nil {
		return l
	}
	return &Instrumented{next: l, observe: observe}
}

// Unwrap returns the decorated ledger.
func (i *Instrumented) Unwrap() Ledger { return i.next }

func (i *Instrumented) record(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case errors.Is(err, ErrEmpty):
		result = "empty"
	case err != nil:
		result = "error"
	}
	i.observe(op, result, time.Since(start))
}

// Get implements Ledger.
func (i *Instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := i.next.Get(ctx, key)
	i.record("get", start, err)
	return v, err
}

// Set implements Ledger.
func (i *Instrumented) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := i.next.Set(ctx, key, value)
	i.record("set", start, err)
	return err
}

// Supports reports which optional capabilities the wrapped ledger has.
func Supports(l Ledger) (pinger, scanner, conditional bool) {
	if i, ok := l.(*Instrumented); ok {
		l = i.next
	}
	_, pinger = l.(Pinger)
	_, scanner = l.(KeyScanner)
	_, conditional = l.(ConditionalSetter)
	return
}

// AsPinger returns the Pinger behind l, looking through Instrumented.
func AsPinger(l Ledger) (Pinger, bool) {
	if i, ok := l.(*Instrumented); ok {
		l = i.next
	}
	p, ok := l.(Pinger)
	return p, ok
}

// AsKeyScanner returns the KeyScanner behind l, looking through Instrumented.
func AsKeyScanner(l Ledger) (KeyScanner, bool) {
	if i, ok := l.(*Instrumented); ok {
		l = i.next
	}
	s, ok := l.(KeyScanner)
	return s, ok
}

// AsConditionalSetter returns the ConditionalSetter behind l, looking through
// Instrumented. CAS calls made through the returned value are not observed.
func AsConditionalSetter(l Ledger) (ConditionalSetter, bool) {
	if i, ok := l.(*Instrumented); ok {
		l = i.next
	}
	c, ok := l.(ConditionalSetter)
	return c, ok
}
