package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCacheKeyDeterministic(t *testing.T) {
	a := GenerateCacheKey("places.resolve_entities", map[string]any{
		"query": "京都", "limit": 20,
	}, "")
	b := GenerateCacheKey("places.resolve_entities", map[string]any{
		"limit": 20, "query": "京都",
	}, "")
	assert.Equal(t, a, b, "key order must not matter")
	assert.Len(t, a, 16)
}

func TestGenerateCacheKeyIgnoresUnstableFields(t *testing.T) {
	base := map[string]any{"query": "京都"}
	noisy := map[string]any{
		"query":      "京都",
		"state":      map[string]any{"step": 3},
		"request_id": "req_123",
		"timestamp":  "2026-01-01T00:00:00Z",
	}
	assert.Equal(t,
		GenerateCacheKey("places.resolve_entities", base, ""),
		GenerateCacheKey("places.resolve_entities", noisy, ""))
}

func TestGenerateCacheKeyStripsNestedUnstableFields(t *testing.T) {
	a := map[string]any{
		"outer": map[string]any{"query": "大阪"},
	}
	b := map[string]any{
		"outer": map[string]any{"query": "大阪", "timestamp": "now"},
	}
	assert.Equal(t,
		GenerateCacheKey("transport.build_time_matrix", a, ""),
		GenerateCacheKey("transport.build_time_matrix", b, ""))
}

func TestGenerateCacheKeyDistinguishesInputs(t *testing.T) {
	a := GenerateCacheKey("places.resolve_entities", map[string]any{"query": "京都"}, "")
	b := GenerateCacheKey("places.resolve_entities", map[string]any{"query": "东京"}, "")
	assert.NotEqual(t, a, b)
}

func TestGenerateCacheKeyDistinguishesActions(t *testing.T) {
	input := map[string]any{"query": "京都"}
	assert.NotEqual(t,
		GenerateCacheKey("places.resolve_entities", input, ""),
		GenerateCacheKey("places.get_poi_facts", input, ""))
}

func TestGenerateCacheKeyCustomTemplate(t *testing.T) {
	key := GenerateCacheKey("webbrowse.browse", map[string]any{
		"url": "https://example.com", "extract_text": true,
	}, "browse:{url}")
	assert.Equal(t, "browse:https://example.com", key)
}

func TestGenerateCacheKeyCustomTemplateMissingPlaceholder(t *testing.T) {
	key := GenerateCacheKey("webbrowse.browse", map[string]any{
		"extract_text": true,
	}, "browse:{url}")
	// Unresolvable placeholders stay literal rather than aliasing entries.
	assert.Equal(t, "browse:{url}", key)
}
