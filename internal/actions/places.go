package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

const defaultResolveLimit = 20

// ResolveEntities maps free-form destination text onto catalog nodes.
type ResolveEntities struct{}

func (ResolveEntities) Definition() ports.ActionDefinition {
	return ports.ActionDefinition{
		Name:        "places.resolve_entities",
		Description: "Resolve destination names in free text into concrete POI nodes.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"limit": map[string]any{"type": "integer"},
			},
			"required": []string{"query"},
		},
	}
}

func (ResolveEntities) Metadata() ports.ActionMetadata {
	return ports.ActionMetadata{
		Kind:       "places",
		Cost:       ports.CostLow,
		SideEffect: ports.SideEffectReads,
		WritePaths: []string{"draft.nodes"},
		Idempotent: true,
		Cacheable:  true,
	}
}

func (ResolveEntities) Execute(ctx context.Context, input map[string]any, st *state.AgentState) (map[string]any, error) {
	query, _ := input["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" || strings.EqualFold(query, "unknown") {
		return map[string]any{
			"nodes": []state.Node{},
			"error": "Invalid query: no recognizable destination",
		}, nil
	}

	limit := intInput(input, "limit", defaultResolveLimit)
	nodes := LookupPOIs(query, limit)
	if len(nodes) == 0 {
		return map[string]any{
			"nodes": []state.Node{},
			"error": fmt.Sprintf("unknown destination: %q", query),
		}, nil
	}
	return map[string]any{"nodes": nodes}, nil
}

// GetPOIFacts loads the fact sheets for resolved nodes.
type GetPOIFacts struct{}

func (GetPOIFacts) Definition() ports.ActionDefinition {
	return ports.ActionDefinition{
		Name:        "places.get_poi_facts",
		Description: "Fetch opening hours, prices and city facts for POI ids.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"poi_ids": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required": []string{"poi_ids"},
		},
	}
}

func (GetPOIFacts) Metadata() ports.ActionMetadata {
	return ports.ActionMetadata{
		Kind:          "places",
		Cost:          ports.CostLow,
		SideEffect:    ports.SideEffectReads,
		Preconditions: []string{"nodes_resolved"},
		WritePaths:    []string{"memory.semantic_facts.pois"},
		Idempotent:    true,
		Cacheable:     true,
	}
}

func (GetPOIFacts) Execute(ctx context.Context, input map[string]any, st *state.AgentState) (map[string]any, error) {
	ids := stringSlice(input["poi_ids"])
	if len(ids) == 0 {
		// Fall back to the already-resolved draft nodes.
		for _, n := range st.Draft.Nodes {
			ids = append(ids, n.ID)
		}
	}

	facts := make(map[string]map[string]any, len(ids))
	for _, poiID := range ids {
		if sheet := FactsFor(poiID); sheet != nil {
			facts[poiID] = sheet
		}
	}
	return map[string]any{"facts": facts}, nil
}

func intInput(input map[string]any, key string, fallback int) int {
	switch v := input[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}

func stringSlice(v any) []string {
	switch typed := v.(type) {
	case []string:
		return typed
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
