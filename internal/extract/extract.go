// Package extract recovers a structured JSON object from the raw text a
// generation backend returns. Models wrap JSON in markdown fences, preamble
// prose, or trailing commentary; extraction is tolerant of all three but
// has an explicit failure result, never a silent guess.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoObject is returned when no JSON object can be located in the text.
var ErrNoObject = errors.New("extract: no JSON object found in output")

// Object locates and parses the outermost {...} in raw text.
//
// Strategy: strip markdown code fences first, then scan for the first '{'
// and the last '}'. The slice between them must parse as a JSON object.
func Object(raw string) (json.RawMessage, error) {
	s := StripFences([]byte(raw))
	if len(s) == 0 {
		return nil, ErrNoObject
	}

	start := bytes.IndexByte(s, '{')
	end := bytes.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end <= start {
		return nil, ErrNoObject
	}
	blob := s[start : end+1]

	if !json.Valid(blob) {
		return nil, fmt.Errorf("extract: located object is not valid JSON")
	}
	// Reject top-level arrays/scalars that happen to contain braces.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(blob, &probe); err != nil {
		return nil, fmt.Errorf("extract: not a JSON object: %w", err)
	}

	out := make(json.RawMessage, len(blob))
	copy(out, blob)
	return out, nil
}

// Into extracts the outermost JSON object from raw text and unmarshals it
// into T.
func Into[T any](raw string) (*T, error) {
	blob, err := Object(raw)
	if err != nil {
		return nil, err
	}
	var result T
	if err := json.Unmarshal(blob, &result); err != nil {
		return nil, fmt.Errorf("extract: decode object: %w", err)
	}
	return &result, nil
}

// StripFences removes a surrounding markdown code fence and whitespace.
// Handles ```json\n{...}\n```, ```\n{...}\n```, and bare text.
func StripFences(data []byte) []byte {
	s := bytes.TrimSpace(data)
	if len(s) == 0 {
		return s
	}

	if bytes.HasPrefix(s, []byte("```")) {
		if idx := bytes.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		}
		if bytes.HasSuffix(s, []byte("```")) {
			s = s[:len(s)-3]
		}
		s = bytes.TrimSpace(s)
	}

	return s
}
