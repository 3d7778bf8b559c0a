package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed marks model output that is still not valid JSON after Sanitize.
var ErrMalformed = errors.New("jsonutil: malformed model output")

// MarshalNoEscape encodes v into JSON without escaping <, >, & into <, etc.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Remove trailing newline from json.Encoder.Encode
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalSanitized repairs near-JSON model text with Sanitize and decodes it
// into v. Decode failures wrap ErrMalformed.
func UnmarshalSanitized(raw string, v any) error {
	clean := Sanitize(raw)
	if clean == "" {
		return fmt.Errorf("%w: empty response", ErrMalformed)
	}
	if err := json.Unmarshal([]byte(clean), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// ParseObject sanitizes raw and decodes it as a JSON object.
func ParseObject(raw string) (map[string]any, error) {
	var out map[string]any
	if err := UnmarshalSanitized(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}
	return out, nil
}

// Clone deep-copies a decoded JSON value through a marshal round trip.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
