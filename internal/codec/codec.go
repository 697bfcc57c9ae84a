// Package codec turns registry values into the opaque blobs stored at ledger
// keys and back.
//
// Blobs are JSON. Decoding never panics: malformed input yields a
// *DecodeError, which the registry treats as "absent" so one corrupt blob
// cannot take down a bulk read.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode matches every *DecodeError under errors.Is.
var ErrDecode = errors.New("codec: malformed blob")

// DecodeError reports a blob that is present but not a valid encoding of the
// requested type.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// Encode serializes v to its canonical JSON form.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return b, nil
}

// Decode parses b into a T. Field order in b does not matter; unknown fields
// are ignored. Any failure, including a recovered panic from a custom
// unmarshaler, is returned as a *DecodeError.
func Decode[T any](b []byte) (v T, err error) {
	typ := fmt.Sprintf("%T", v)
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v = zero
			err = &DecodeError{Type: typ, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if len(bytes.TrimSpace(b)) == 0 {
		return v, &DecodeError{Type: typ, Err: errors.New("empty blob")}
	}
	if err := json.Unmarshal(b, &v); err != nil {
		var zero T
		return zero, &DecodeError{Type: typ, Err: err}
	}
	return v, nil
}
