// Package planner implements the optional LLM-backed action selection.
// It is strictly a strategy plug-in: any failure yields nil and the
// orchestrator's rule ladder carries on alone.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/registry"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
	"github.com/xudanli/tripnaraht-sub002/internal/shared/logging"
)

// Selection is the planner's structured decision.
type Selection struct {
	Name           string         `json:"action_name"`
	Input          map[string]any `json:"input"`
	Reasoning      string         `json:"reasoning"`
	Confidence     float64        `json:"confidence"`
	ShouldContinue bool           `json:"should_continue"`
}

// Planner asks an LLM to pick the next action given a state summary and the
// action catalog.
type Planner struct {
	client   ports.LLMClient
	registry *registry.Registry
	logger   logging.Logger
}

// New creates a planner.
func New(client ports.LLMClient, reg *registry.Registry, logger logging.Logger) *Planner {
	return &Planner{
		client:   client,
		registry: reg,
		logger:   logging.OrNop(logger),
	}
}

// selectionSchema is the JSON schema the model must satisfy.
var selectionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"action_name":     map[string]any{"type": "string"},
		"input":           map[string]any{"type": "object"},
		"reasoning":       map[string]any{"type": "string"},
		"confidence":      map[string]any{"type": "number"},
		"should_continue": map[string]any{"type": "boolean"},
	},
	"required": []string{"action_name", "input", "should_continue"},
}

// SelectAction returns the model's choice, or nil when the planner cannot
// contribute (timeout, malformed output, unknown or blocked action).
func (p *Planner) SelectAction(ctx context.Context, st *state.AgentState, blocked map[string]bool) *Selection {
	if p == nil || p.client == nil {
		return nil
	}

	prompt := p.buildPrompt(st)
	raw, err := p.client.CallWithSchema(ctx, prompt, selectionSchema)
	if err != nil {
		p.logger.Debug("LLM planner call failed, yielding to rules: %v", err)
		return nil
	}

	selection, err := parseSelection(raw)
	if err != nil {
		p.logger.Debug("LLM planner output unusable: %v", err)
		return nil
	}

	if !selection.ShouldContinue {
		p.logger.Debug("LLM planner suggests stopping; ignoring and yielding to rules")
		return nil
	}
	if _, ok := p.registry.Get(selection.Name); !ok {
		p.logger.Debug("LLM planner chose unknown action %q", selection.Name)
		return nil
	}
	if blocked[selection.Name] {
		p.logger.Debug("LLM planner chose blocked action %q", selection.Name)
		return nil
	}
	if selection.Input == nil {
		selection.Input = map[string]any{}
	}
	return selection
}

// buildPrompt renders a compact state summary plus the action catalog.
func (p *Planner) buildPrompt(st *state.AgentState) string {
	var b strings.Builder
	b.WriteString("You are the planning module of a travel itinerary agent.\n")
	b.WriteString("Pick the single best next action, or should_continue=false if nothing helps.\n\n")
	b.WriteString("Current state:\n")
	fmt.Fprintf(&b, "- user_input: %q\n", st.UserInput)
	fmt.Fprintf(&b, "- step: %d/%d\n", st.React.Step, st.React.MaxSteps)
	fmt.Fprintf(&b, "- resolved_nodes: %d\n", len(st.Draft.Nodes))
	fmt.Fprintf(&b, "- poi_facts: %d\n", len(st.Memory.SemanticFacts.POIs))
	fmt.Fprintf(&b, "- time_matrix_robust: %v\n", st.Compute.TimeMatrixRobust != nil)
	fmt.Fprintf(&b, "- optimization_results: %d\n", len(st.Compute.OptimizationResults))
	fmt.Fprintf(&b, "- timeline_events: %d\n", len(st.Result.Timeline))
	fmt.Fprintf(&b, "- status: %s\n\n", st.Result.Status)

	b.WriteString("Available actions:\n")
	for _, action := range p.registry.List() {
		def := action.Definition()
		meta := action.Metadata()
		fmt.Fprintf(&b, "- %s (cost=%s", def.Name, meta.Cost)
		if len(meta.Preconditions) > 0 {
			fmt.Fprintf(&b, ", requires=%s", strings.Join(meta.Preconditions, ","))
		}
		fmt.Fprintf(&b, "): %s\n", firstLine(def.Description))
	}
	return b.String()
}

// parseSelection decodes the model output, repairing sloppy JSON first when
// a strict parse fails.
func parseSelection(raw string) (*Selection, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty planner output")
	}

	var selection Selection
	if err := json.Unmarshal([]byte(raw), &selection); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return nil, fmt.Errorf("unparseable planner output: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &selection); err != nil {
			return nil, fmt.Errorf("unparseable planner output after repair: %w", err)
		}
	}
	if strings.TrimSpace(selection.Name) == "" && selection.ShouldContinue {
		return nil, fmt.Errorf("planner output missing action_name")
	}
	return &selection, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
