// Package structured pulls JSON payloads out of free-form model output.
//
// Text generation services wrap the payload of interest in prose, code
// fences, or apologies. Each function here scans for the outermost
// delimiters, parses what it finds, and reports a tagged Result instead of
// an error so that callers can apply their own fallback policy.
package structured

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags the outcome of an extraction.
type Kind int

const (
	// Parsed means a payload was located and decoded.
	Parsed Kind = iota
	// Empty means no payload delimiters were found.
	Empty
	// Malformed means delimiters were found but the payload did not decode.
	Malformed
)

func (k Kind) String() string {
	switch k {
	case Parsed:
		return "parsed"
	case Empty:
		return "empty"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the tagged outcome of a best-effort extraction.
type Result[T any] struct {
	Kind   Kind
	Value  T
	Reason string
}

// OK reports whether the result was parsed.
func (r Result[T]) OK() bool { return r.Kind == Parsed }

// Err returns nil for parsed results and a descriptive error otherwise.
func (r Result[T]) Err() error {
	if r.Kind == Parsed {
		return nil
	}
	return fmt.Errorf("%s response: %s", r.Kind, r.Reason)
}

func empty[T any](reason string) Result[T] {
	return Result[T]{Kind: Empty, Reason: reason}
}

func malformed[T any](reason string) Result[T] {
	return Result[T]{Kind: Malformed, Reason: reason}
}

// span returns the text from the first open to the last close, inclusive.
func span(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end < 0 || start >= end {
		return "", false
	}
	return text[start : end+1], true
}

// Array locates the first '[' and last ']' in text and decodes the span
// as a JSON array. Elements are returned undecoded.
func Array(text string) Result[[]json.RawMessage] {
	payload, ok := span(text, '[', ']')
	if !ok {
		return empty[[]json.RawMessage]("no JSON array found")
	}
	var out []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return malformed[[]json.RawMessage](err.Error())
	}
	if out == nil {
		out = []json.RawMessage{}
	}
	return Result[[]json.RawMessage]{Kind: Parsed, Value: out}
}

// Object locates the first '{' and last '}' in text and decodes the span
// as a JSON object. Members are returned undecoded.
func Object(text string) Result[map[string]json.RawMessage] {
	payload, ok := span(text, '{', '}')
	if !ok {
		return empty[map[string]json.RawMessage]("no JSON object found")
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return malformed[map[string]json.RawMessage](err.Error())
	}
	if out == nil {
		return malformed[map[string]json.RawMessage]("payload is null")
	}
	return Result[map[string]json.RawMessage]{Kind: Parsed, Value: out}
}

// Number decodes text, trimmed of surrounding whitespace, as a bare
// floating-point number. NaN and infinities are malformed.
func Number(text string) Result[float64] {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return empty[float64]("blank response")
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return malformed[float64](fmt.Sprintf("not a number: %q", truncate(trimmed, 64)))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return malformed[float64](fmt.Sprintf("not a finite number: %q", trimmed))
	}
	return Result[float64]{Kind: Parsed, Value: f}
}

// Int decodes an optional integer member of obj. Missing, null or
// non-numeric members yield def.
func Int(obj map[string]json.RawMessage, key string, def int) int {
	raw, ok := obj[key]
	if !ok || strings.TrimSpace(string(raw)) == "null" {
		return def
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return int(f)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
