package audit

import (
	"encoding/json"
	"strings"
)

// Marker replaces every sensitive value. Full replacement only; a partially
// masked value still leaks length and shape.
const Marker = "[REDACTED]"

// maxRedactDepth bounds the tree walk so pathological or cyclic input cannot
// blow the stack. Anything deeper collapses to the marker.
const maxRedactDepth = 10

// sensitiveKeyPatterns match field names case-insensitively by substring.
// A key matching any pattern has its whole value replaced, at any depth.
var sensitiveKeyPatterns = []string{
	"password",
	"token",
	"secret",
	"authorization",
	"apikey",
	"privatekey",
	"hash",
	"signature",
	"authtag",
	"encrypteddata",
	"rawpayload",
}

// sensitiveKeysExact are too short for substring matching; "iv" as a
// substring would swallow fields like isActive.
var sensitiveKeysExact = []string{"iv"}

// SensitiveKey reports whether a field name matches the redaction policy.
func SensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	for _, exact := range sensitiveKeysExact {
		if lower == exact {
			return true
		}
	}
	return false
}

// Redact returns a copy of the snapshot with every sensitive field replaced
// by the marker. It is pure and idempotent: Redact(Redact(s)) == Redact(s).
// A nil snapshot stays nil.
func Redact(s Snapshot) Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		if SensitiveKey(k) {
			out[k] = Marker
			continue
		}
		out[k] = redactValue(v, 1)
	}
	return out
}

// redactValue walks one generic tagged value. On anything it cannot traverse
// safely it degrades to the marker rather than passing the value through.
func redactValue(v any, depth int) any {
	if depth >= maxRedactDepth {
		return Marker
	}

	switch val := v.(type) {
	case nil, bool, string, float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		json.Number:
		return val

	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if SensitiveKey(k) {
				out[k] = Marker
				continue
			}
			out[k] = redactValue(item, depth+1)
		}
		return out

	case Snapshot:
		return redactValue(map[string]any(val), depth)

	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item, depth+1)
		}
		return out

	default:
		// Not a generic tagged value. Try to normalize through JSON; if
		// that fails (channels, funcs, cycles) mask the whole subtree.
		normalized, ok := normalize(val)
		if !ok {
			return Marker
		}
		return redactValue(normalized, depth+1)
	}
}

// NormalizeSnapshot converts an arbitrary mutation result into a generic
// Snapshot via a JSON round trip. Returns nil when the value cannot be
// represented, so callers treat it as "no snapshot" rather than persisting
// something unredactable.
func NormalizeSnapshot(v any) Snapshot {
	if v == nil {
		return nil
	}
	if s, ok := v.(Snapshot); ok {
		return s
	}
	if m, ok := v.(map[string]any); ok {
		return Snapshot(m)
	}
	normalized, ok := normalize(v)
	if !ok {
		return nil
	}
	m, ok := normalized.(map[string]any)
	if !ok {
		return nil
	}
	return Snapshot(m)
}

func normalize(v any) (any, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}
