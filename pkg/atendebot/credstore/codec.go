// Package credstore – codec.go is the single place in the codebase where
// opaque byte sequences are translated to and from their stored text form.
// The underlying store only preserves JSON values, so every []byte anywhere
// in a payload is replaced by a {"kind":"bytes","data":<base64>} marker on
// write and substituted back on read. No other package may assume the store
// can hold raw bytes.
package credstore

import (
	"encoding/base64"
)

const bytesKind = "bytes"

// tagBytes walks a payload and replaces every []byte with its tagged base64
// form. Already-tagged markers pass through unchanged, so applying the
// transformation twice yields the same result.
func tagBytes(v any) any {
	switch val := v.(type) {
	case []byte:
		return map[string]any{
			"kind": bytesKind,
			"data": base64.StdEncoding.EncodeToString(val),
		}
	case map[string]any:
		if isTaggedBytes(val) {
			return val
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = tagBytes(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = tagBytes(item)
		}
		return out
	default:
		return v
	}
}

// untagBytes walks a decoded payload and replaces every tagged marker with
// the original byte sequence.
func untagBytes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if isTaggedBytes(val) {
			raw, err := base64.StdEncoding.DecodeString(val["data"].(string))
			if err != nil {
				// Corrupted marker: keep the tagged form rather than drop data.
				return val
			}
			return raw
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = untagBytes(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = untagBytes(item)
		}
		return out
	default:
		return v
	}
}

// isTaggedBytes reports whether m is exactly a byte-sequence marker.
func isTaggedBytes(m map[string]any) bool {
	if len(m) != 2 {
		return false
	}
	kind, ok := m["kind"].(string)
	if !ok || kind != bytesKind {
		return false
	}
	_, ok = m["data"].(string)
	return ok
}
