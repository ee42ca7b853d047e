package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/critic"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

// mergeAndObserve applies the group's outputs to the state serially in
// candidate order, then appends one observation per executed action. Serial
// merging keeps parallel groups trivially safe: a later candidate's write can
// never be clobbered by an earlier candidate's stale view.
func (o *Orchestrator) mergeAndObserve(st *state.AgentState, group []Candidate, results []actResult) *state.AgentState {
	for i, cand := range group {
		res := results[i]
		if res.skipped {
			continue
		}
		if res.err != nil {
			st = o.recordObservation(st, cand.Name, res)
			continue
		}
		st = o.applyActionResult(st, cand.Name, res.output)
		st = o.recordObservation(st, cand.Name, res)
	}
	return st
}

func (o *Orchestrator) recordObservation(st *state.AgentState, name string, res actResult) *state.AgentState {
	next, err := o.store.Update(st.RequestID, func(s *state.AgentState) {
		obs := state.Observation{
			Step:      s.React.Step,
			Action:    name,
			Timestamp: o.clock(),
			CacheHit:  res.cacheHit,
		}
		if res.err != nil {
			obs.Error = res.err.Error()
		}
		s.React.Observations = append(s.React.Observations, obs)
		s.Obs.ToolCalls++
	})
	if err != nil {
		return st
	}
	return next
}

// applyActionResult routes an action's output into the state by name prefix.
// This is the only place action families touch working memory, which keeps
// write paths disjoint per family.
func (o *Orchestrator) applyActionResult(st *state.AgentState, name string, output map[string]any) *state.AgentState {
	mutate := o.mutationFor(name, output)
	if mutate == nil {
		return st
	}
	next, err := o.store.Update(st.RequestID, mutate)
	if err != nil {
		o.logger.Error("State merge failed for %s: %v", name, err)
		return st
	}
	return next
}

func (o *Orchestrator) mutationFor(name string, output map[string]any) func(*state.AgentState) {
	switch {
	case name == actionResolveEntities:
		if msg, bad := resolveError(output); bad {
			return func(s *state.AgentState) {
				s.Result.Status = state.StatusNeedMoreInfo
				s.Result.Explanations = append(s.Result.Explanations,
					"无法识别您想去的地点："+msg+"。请补充具体的城市或景点名称。")
			}
		}
		nodes := asNodes(output["nodes"])
		return func(s *state.AgentState) {
			s.Draft.Nodes = nodes
		}

	case name == actionGetPOIFacts:
		facts := asPOIFacts(output["facts"])
		return func(s *state.AgentState) {
			s.Memory.SemanticFacts.POIs = facts
		}

	case strings.HasPrefix(name, "transport."):
		api := asIntMatrix(output["time_matrix_api"])
		robust := asIntMatrix(output["time_matrix_robust"])
		return func(s *state.AgentState) {
			if api != nil {
				s.Compute.TimeMatrixAPI = api
			}
			if robust != nil {
				s.Compute.TimeMatrixRobust = robust
			}
		}

	case strings.HasPrefix(name, "itinerary."):
		// Repair replaces the previous optimization artifacts wholesale.
		results := asOptimizationResults(output["results"])
		timeline := asTimeline(output["timeline"])
		dropped := asDroppedItems(output["dropped_items"])
		return func(s *state.AgentState) {
			s.Compute.OptimizationResults = results
			s.Result.Timeline = timeline
			s.Result.DroppedItems = dropped
		}

	case name == actionValidate:
		// Validation writes nothing itself; the loop sets READY only after
		// the verdict has been journaled and logged.
		return nil

	case strings.HasPrefix(name, "webbrowse."):
		snippet := browseSnippet(output)
		return func(s *state.AgentState) {
			if snippet != "" {
				s.Memory.EpisodicSnippets = append(s.Memory.EpisodicSnippets, snippet)
			}
			s.Obs.BrowserSteps++
		}
	}

	o.logger.Debug("No merge rule for action %q, output dropped", name)
	return nil
}

// resolveError detects the resolver's user-visible failure modes.
func resolveError(output map[string]any) (string, bool) {
	msg, _ := output["error"].(string)
	if msg == "" {
		return "", false
	}
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "invalid query") || strings.Contains(lower, "unknown") {
		return msg, true
	}
	return "", false
}

func browseSnippet(output map[string]any) string {
	title, _ := output["title"].(string)
	content, _ := output["content"].(string)
	if content == "" {
		content, _ = output["extracted_text"].(string)
	}
	// Page content is often Chinese; never cut inside a rune.
	const maxSnippet = 500
	if len(content) > maxSnippet {
		cut := maxSnippet
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	if title == "" {
		return content
	}
	if content == "" {
		return title
	}
	return title + ": " + content
}

// factCounts is the pre-iteration view the decision log reasons over.
type factCounts struct {
	nodes int
	facts int
}

// logDecisions appends one decision-log entry per action of this iteration.
// The reason code and fact counts come from the pre-action state; the
// validation action additionally reflects its own verdict.
func (o *Orchestrator) logDecisions(st *state.AgentState, group []Candidate, results []actResult, report critic.Report, pre factCounts) *state.AgentState {
	next, err := o.store.Update(st.RequestID, func(s *state.AgentState) {
		for i, cand := range group {
			if results[i].skipped {
				continue
			}
			code := cand.ReasonCode
			if cand.Name == actionValidate {
				if pass, _ := results[i].output["pass"].(bool); pass {
					code = ReasonValidationPassed
				} else {
					code = ReasonValidationFailed
				}
			}
			s.React.DecisionLog = append(s.React.DecisionLog, state.DecisionEntry{
				Step:         s.React.Step,
				ChosenAction: cand.Name,
				ReasonCode:   code,
				Facts: map[string]any{
					"nodes":     pre.nodes,
					"facts":     pre.facts,
					"cache_hit": results[i].cacheHit,
					"error":     results[i].err != nil,
				},
				PolicyID: "core.rule_ladder",
			})
		}
	})
	if err != nil {
		return st
	}
	return next
}

// repair maps critic violations to deterministic fix-up actions. No LLM is
// involved.
func (o *Orchestrator) repair(ctx context.Context, st *state.AgentState, report critic.Report, budget Budget) *state.AgentState {
	if report.Pass {
		return st
	}

	for _, violation := range report.Violations {
		switch violation.Kind {
		case critic.RobustTimeMissing:
			if len(st.Draft.Nodes) == 0 {
				return o.setStatus(st, state.StatusNeedMoreInfo,
					"缺少可计算交通时间的节点，请先补充目的地。")
			}
			// Rebuild with robust buffers only when an API matrix exists but
			// the robust one is missing; the first build belongs to the rule
			// ladder.
			if st.Compute.TimeMatrixAPI != nil && st.Compute.TimeMatrixRobust == nil {
				st = o.runRepairAction(ctx, st, Candidate{
					Name:       actionBuildTimeMatrix,
					Input:      map[string]any{"nodes": st.Draft.Nodes, "robust": true},
					ReasonCode: ReasonRepairing,
				})
			}

		case critic.TimeWindowConflict, critic.DayBoundaryViolation:
			st = o.runRepairAction(ctx, st, Candidate{
				Name:       actionRepairCrossDay,
				Input:      map[string]any{"violations": report.Violations},
				ReasonCode: ReasonRepairing,
			})
			return st

		case critic.LunchMissing:
			if len(st.Result.Timeline) == 0 {
				continue // nothing scheduled yet, defer
			}
			next, err := o.store.Update(st.RequestID, func(s *state.AgentState) {
				if s.Memory.SemanticFacts.Rules == nil {
					s.Memory.SemanticFacts.Rules = make(map[string]any)
				}
				s.Memory.SemanticFacts.Rules["insert_lunch"] = true
			})
			if err == nil {
				st = next
			}
		}
	}
	return st
}

// runRepairAction executes a single fix-up candidate outside the Plan phase
// and merges its result like any other action.
func (o *Orchestrator) runRepairAction(ctx context.Context, st *state.AgentState, cand Candidate) *state.AgentState {
	res := o.runCandidate(ctx, st, cand)
	if res.skipped {
		return st
	}
	if res.err == nil {
		st = o.applyActionResult(st, cand.Name, res.output)
	}
	return o.recordObservation(st, cand.Name, res)
}

// ---- output coercion ----
//
// Actions are free to return either the core's typed values or plain
// JSON-shaped maps; reshape converts between them with a JSON round trip.

func reshape[T any](v any) (T, bool) {
	var out T
	if v == nil {
		return out, false
	}
	if typed, ok := v.(T); ok {
		return typed, true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

func asNodes(v any) []state.Node {
	out, _ := reshape[[]state.Node](v)
	return out
}

func asIntMatrix(v any) [][]int {
	out, ok := reshape[[][]int](v)
	if !ok {
		return nil
	}
	return out
}

func asTimeline(v any) []state.TimelineEvent {
	out, _ := reshape[[]state.TimelineEvent](v)
	return out
}

func asOptimizationResults(v any) []state.OptimizationResult {
	out, _ := reshape[[]state.OptimizationResult](v)
	return out
}

func asDroppedItems(v any) []state.DroppedItem {
	out, _ := reshape[[]state.DroppedItem](v)
	return out
}

// asPOIFacts accepts either the typed slice or the {id→facts} map shape.
func asPOIFacts(v any) []state.POIFact {
	if typed, ok := v.([]state.POIFact); ok {
		return typed
	}
	if byID, ok := reshape[map[string]map[string]any](v); ok {
		out := make([]state.POIFact, 0, len(byID))
		for id, facts := range byID {
			out = append(out, state.POIFact{POIID: id, Facts: facts})
		}
		return out
	}
	out, _ := reshape[[]state.POIFact](v)
	return out
}
