package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// ContentHash computes the tamper-evidence hash for an entry. It covers every
// persisted field except the hash itself, over canonical JSON, so a stored
// entry whose content was altered after the fact no longer matches.
func ContentHash(e Entry) string {
	material := map[string]any{
		"id":           e.ID,
		"actorId":      e.ActorID.String(),
		"action":       string(e.Action),
		"targetEntity": e.TargetEntity,
		"targetId":     e.TargetID,
		"beforeState":  map[string]any(e.BeforeState),
		"afterState":   map[string]any(e.AfterState),
		"ipAddress":    e.IPAddress,
		"userAgent":    e.UserAgent,
		"device":       e.Device,
		"timestamp":    e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	canonical, err := canonicalJSON(material)
	if err != nil {
		// Snapshots are JSON round-trip normalized before they get here,
		// so this only fires on a programming error upstream.
		return ""
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the entry's content hash and compares it to the stored one.
func Verify(e Entry) bool {
	return e.ContentHash != "" && e.ContentHash == ContentHash(e)
}

// canonicalJSON produces deterministic JSON with sorted map keys. Go maps
// have random iteration order and JSONB columns may reorder keys, so hashing
// requires an explicit canonical form.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	return canonicalMarshal(parsed)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(val)
	}
}
