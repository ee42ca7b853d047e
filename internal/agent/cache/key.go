package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
)

// Input fields that never participate in cache identity.
var unstableFields = map[string]bool{
	"state":      true,
	"request_id": true,
	"timestamp":  true,
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// GenerateCacheKey produces a deterministic key for an action invocation.
// When custom is non-empty it is used as a template with {field} placeholders
// substituted from input; otherwise the key is the first 16 hex chars of
// sha256(name + stableStringify(normalize(input))).
func GenerateCacheKey(name string, input map[string]any, custom string) string {
	if custom != "" {
		return placeholderRe.ReplaceAllStringFunc(custom, func(m string) string {
			field := m[1 : len(m)-1]
			if v, ok := input[field]; ok {
				return fmt.Sprintf("%v", v)
			}
			return m
		})
	}

	payload := name + stableStringify(normalize(input))
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}

// normalize drops unstable fields and recurses into nested objects so two
// inputs differing only in request plumbing hash identically.
func normalize(input map[string]any) map[string]any {
	if input == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		if unstableFields[k] {
			continue
		}
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return normalize(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

// stableStringify serialises a map with keys in sorted order at every level.
// json.Marshal sorts map[string]any keys already; non-map values that are not
// JSON-serialisable fall back to their fmt representation.
func stableStringify(m map[string]any) string {
	data, err := json.Marshal(sortedMap(m))
	if err != nil {
		return fallbackStringify(m)
	}
	return string(data)
}

func sortedMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = sortedMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func fallbackStringify(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := "{"
	for i, k := range keys {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%q:%v", k, m[k])
	}
	return s + "}"
}
