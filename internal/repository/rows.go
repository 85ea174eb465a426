package repository

import (
	"encoding/json"
	"strings"
	"time"
)

// Helpers for PostgREST rows decoded into map[string]interface{}.

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok && val != nil {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getStringPointer(data map[string]interface{}, key string) *string {
	if str := getString(data, key); str != "" {
		return &str
	}
	return nil
}

func getInt(data map[string]interface{}, key string) int {
	return int(getInt64(data, key))
}

func getInt64(data map[string]interface{}, key string) int64 {
	if val, ok := data[key]; ok && val != nil {
		switch v := val.(type) {
		case int:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		case json.Number:
			n, _ := v.Int64()
			return n
		}
	}
	return 0
}

func getBool(data map[string]interface{}, key string) bool {
	if val, ok := data[key]; ok && val != nil {
		switch v := val.(type) {
		case bool:
			return v
		case string:
			return v == "true" || v == "1"
		case float64:
			return v != 0
		}
	}
	return false
}

func getStringArray(data map[string]interface{}, key string) []string {
	val, ok := data[key]
	if !ok || val == nil {
		return []string{}
	}
	switch v := val.(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	}
	return []string{}
}

func getTime(data map[string]interface{}, key string) time.Time {
	if t := getTimePointer(data, key); t != nil {
		return *t
	}
	return time.Time{}
}

func getTimePointer(data map[string]interface{}, key string) *time.Time {
	return parseTimestamp(getString(data, key))
}

func parseTimestamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// getRawJSON re-encodes a jsonb column that PostgREST decoded into Go values.
func getRawJSON(data map[string]interface{}, key string) json.RawMessage {
	val, ok := data[key]
	if !ok || val == nil {
		return nil
	}
	if s, ok := val.(string); ok {
		if json.Valid([]byte(s)) {
			return json.RawMessage(s)
		}
	}
	b, err := json.Marshal(val)
	if err != nil {
		return nil
	}
	return b
}

// timestampLayout is fixed-width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatTimestampPointer(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTimestamp(*t)
}

func stringPointerValue(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// sanitizeSearch strips characters that carry meaning in PostgREST filter syntax.
func sanitizeSearch(q string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '*', '%', '\\', '"', '\x00':
			return -1
		}
		return r
	}, strings.TrimSpace(q))
}

func mergeIDs(existing []string, add []string) ([]string, bool) {
	out := append([]string{}, existing...)
	seen := make(map[string]bool, len(existing))
	for _, id := range existing {
		seen[id] = true
	}
	changed := false
	for _, id := range add {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		changed = true
	}
	return out, changed
}

func removeID(existing []string, id string) ([]string, bool) {
	out := make([]string, 0, len(existing))
	removed := false
	for _, v := range existing {
		if v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	return out, removed
}
