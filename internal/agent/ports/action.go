// Package ports declares the capability contracts the agent core consumes.
// Actions and LLM providers live behind these interfaces; the core never
// depends on a concrete implementation.
package ports

import (
	"context"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

// Cost is the declared expense class of an action.
type Cost string

const (
	CostLow  Cost = "low"
	CostMed  Cost = "med"
	CostHigh Cost = "high"
)

// SideEffect classifies what an action touches outside the state.
type SideEffect string

const (
	SideEffectNone     SideEffect = "none"
	SideEffectReads    SideEffect = "reads"
	SideEffectWritesDB SideEffect = "writes_db"
	SideEffectCallsAPI SideEffect = "calls_api"
)

// ActionMetadata describes scheduling-relevant properties of an action.
type ActionMetadata struct {
	Kind       string     `json:"kind"`
	Cost       Cost       `json:"cost"`
	SideEffect SideEffect `json:"side_effect"`

	// Preconditions are opaque capability tokens interpreted by the
	// registry's precondition checkers (e.g. "nodes_resolved").
	Preconditions []string `json:"preconditions,omitempty"`

	// WritePaths declares the dotted state paths this action writes, used by
	// the dependency analyzer. When empty the analyzer falls back to
	// name-pattern inference.
	WritePaths []string `json:"write_paths,omitempty"`

	Idempotent bool `json:"idempotent"`
	Cacheable  bool `json:"cacheable"`

	// CacheKey optionally overrides the generated cache key with a template
	// whose {placeholders} are substituted from the input.
	CacheKey string `json:"cache_key,omitempty"`
}

// ActionDefinition is the catalog entry shown to planners.
type ActionDefinition struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"input_schema,omitempty"`
	OutputSchema map[string]any `json:"output_schema,omitempty"`
}

// Action is a named external capability. Execute receives a read-only state
// snapshot; results are merged into state by the orchestrator, never by the
// action itself.
type Action interface {
	Execute(ctx context.Context, input map[string]any, st *state.AgentState) (map[string]any, error)
	Definition() ActionDefinition
	Metadata() ActionMetadata
}
