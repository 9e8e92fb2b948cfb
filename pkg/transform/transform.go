// Package transform normalizes raw animal records into their canonical shape.
//
// Transformation is pure and per-record: the friends field becomes an ordered
// list of names and born_at becomes an RFC3339 UTC timestamp. Unrecognized
// fields pass through untouched, and a record never fails to transform.
package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Record is one animal as received upstream: an opaque field -> value mapping
// with at least an integer id.
type Record map[string]any

// bornAtLayouts are tried in order; the first successful parse wins.
var bornAtLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Jan 2 2006",
	"January 2, 2006",
}

// Transform returns a normalized copy of the record. The input is never
// mutated. Optional fields that cannot be normalized degrade gracefully:
// an unparseable born_at is dropped rather than failing the record.
func Transform(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}

	out["friends"] = normalizeFriends(rec["friends"])

	if raw, ok := rec["born_at"]; ok {
		if ts, ok := normalizeBornAt(raw); ok {
			out["born_at"] = ts
		} else {
			log.Debug().
				Any("born_at", raw).
				Any("id", rec["id"]).
				Msg("Dropping unparseable born_at")
			delete(out, "born_at")
		}
	}

	return out
}

// normalizeFriends converts the upstream friends representation into an
// ordered list of trimmed, non-empty names.
func normalizeFriends(v any) []string {
	switch friends := v.(type) {
	case string:
		return splitFriends(strings.Split(friends, ","))
	case []string:
		// Already normalized; re-normalizing keeps Transform idempotent.
		return splitFriends(friends)
	case []any:
		parts := make([]string, 0, len(friends))
		for _, f := range friends {
			parts = append(parts, fmt.Sprint(f))
		}
		return splitFriends(parts)
	default:
		return []string{}
	}
}

func splitFriends(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// normalizeBornAt converts a born_at value into an RFC3339 UTC string.
// Numeric strings are epoch seconds; raw JSON numbers at or above 1e12 are
// epoch milliseconds (seconds below that).
func normalizeBornAt(v any) (string, bool) {
	switch bornAt := v.(type) {
	case string:
		if bornAt == "" {
			return "", false
		}
		if secs, err := strconv.ParseInt(bornAt, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC().Format(time.RFC3339), true
		}
		for _, layout := range bornAtLayouts {
			if t, err := time.Parse(layout, bornAt); err == nil {
				return t.UTC().Format(time.RFC3339), true
			}
		}
		return "", false
	case float64:
		return epochToRFC3339(int64(bornAt)), true
	case json.Number:
		if n, err := bornAt.Int64(); err == nil {
			return epochToRFC3339(n), true
		}
		return "", false
	default:
		return "", false
	}
}

func epochToRFC3339(n int64) string {
	if n >= 1e12 || n <= -1e12 {
		return time.UnixMilli(n).UTC().Format(time.RFC3339)
	}
	return time.Unix(n, 0).UTC().Format(time.RFC3339)
}
