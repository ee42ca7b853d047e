package actions

import (
	"context"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/critic"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

// ValidateFeasibility exposes the feasibility critic as a regular action so
// the planner can schedule an explicit validation step.
type ValidateFeasibility struct{}

func (ValidateFeasibility) Definition() ports.ActionDefinition {
	return ports.ActionDefinition{
		Name:        "policy.validate_feasibility",
		Description: "Check the current timeline against opening windows, day boundaries, lunch policy and wait visibility.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timeline": map[string]any{"type": "array"},
				"policy":   map[string]any{"type": "object"},
			},
		},
	}
}

func (ValidateFeasibility) Metadata() ports.ActionMetadata {
	return ports.ActionMetadata{
		Kind:          "policy",
		Cost:          ports.CostLow,
		SideEffect:    ports.SideEffectNone,
		Preconditions: []string{"timeline_present"},
		WritePaths:    []string{"result.status"},
		Idempotent:    true,
	}
}

func (ValidateFeasibility) Execute(ctx context.Context, input map[string]any, st *state.AgentState) (map[string]any, error) {
	report := critic.ValidateFeasibility(st)
	return map[string]any{
		"pass":       report.Pass,
		"violations": report.Violations,
	}, nil
}
