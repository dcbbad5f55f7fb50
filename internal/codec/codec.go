// Package codec converts typed values to and from the text stored by backends.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrEncoding marks values that cannot be serialised.
	ErrEncoding = errors.New("value is not serialisable")
	// ErrDecoding marks stored text that cannot be parsed.
	ErrDecoding = errors.New("stored value is malformed")
)

// EncodingError wraps a serialisation failure.
type EncodingError struct {
	Type string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Type, e.Err)
}

func (e *EncodingError) Unwrap() []error {
	return []error{ErrEncoding, e.Err}
}

// DecodingError wraps a parse failure.
type DecodingError struct {
	Type string
	Err  error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Type, e.Err)
}

func (e *DecodingError) Unwrap() []error {
	return []error{ErrDecoding, e.Err}
}

// Encode serialises v as JSON text.
func Encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", &EncodingError{Type: fmt.Sprintf("%T", v), Err: err}
	}
	return string(raw), nil
}

// Decode parses text into a T.
func Decode[T any](text string) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		var zero T
		return zero, &DecodingError{Type: fmt.Sprintf("%T", out), Err: err}
	}
	return out, nil
}

// DecodeOr parses text, returning fallback when the text is malformed.
func DecodeOr[T any](text string, fallback T) T {
	out, err := Decode[T](text)
	if err != nil {
		return fallback
	}
	return out
}
