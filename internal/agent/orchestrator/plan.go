package orchestrator

import (
	"context"
	"regexp"
	"strings"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/deps"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

// Loop-guard thresholds.
const (
	// maxResolveAttempts caps how often entity resolution may come back
	// empty before the loop gives up and asks the user for more detail.
	maxResolveAttempts = 2
	// sameActionStreakLimit is how many consecutive identical choices
	// trigger the streak guard.
	sameActionStreakLimit = 3
)

// Well-known action names the rule ladder dispatches on.
const (
	actionResolveEntities = "places.resolve_entities"
	actionGetPOIFacts     = "places.get_poi_facts"
	actionBuildTimeMatrix = "transport.build_time_matrix"
	actionOptimizeDay     = "itinerary.optimize_day_vrptw"
	actionRepairCrossDay  = "itinerary.repair_cross_day"
	actionValidate        = "policy.validate_feasibility"
	actionBrowse          = "webbrowse.browse"
)

// Decision reason codes recorded in the decision log.
const (
	ReasonMissingNodes      = "MISSING_NODES"
	ReasonFetchingFacts     = "FETCHING_FACTS"
	ReasonMissingTimeMatrix = "MISSING_TIME_MATRIX"
	ReasonOptimizing        = "OPTIMIZING"
	ReasonRepairing         = "REPAIRING"
	ReasonValidationPassed  = "VALIDATION_PASSED"
	ReasonValidationFailed  = "VALIDATION_FAILED"
	ReasonWebBrowse         = "WEB_BROWSE_REQUIRED"
	ReasonPlannerChoice     = "PLANNER_CHOICE"
)

const resolveEntityLimit = 20

var urlRe = regexp.MustCompile(`https?://[^\s"'）)\]]+`)

// plan returns the next parallel group of candidates. A nil group with
// stop=true means the loop must terminate now (a guard set the final
// status); nil with stop=false means there is simply nothing left to do.
func (o *Orchestrator) plan(ctx context.Context, st *state.AgentState, budget Budget) (group []Candidate, stop bool) {
	blocked := o.blockedActions(st)

	// The LLM planner is a strictly optional strategy; the rule ladder
	// below is complete without it.
	if o.planner != nil {
		if sel := o.planner.SelectAction(ctx, st, blocked); sel != nil {
			return []Candidate{{
				Name:       sel.Name,
				Input:      sel.Input,
				ReasonCode: reasonCodeFor(sel.Name),
			}}, false
		}
	}

	// A literal URL in the utterance short-circuits to browsing; the
	// candidate list is terminal, no parallelism.
	if url := urlRe.FindString(st.UserInput); url != "" &&
		budget.MaxBrowserSteps > 0 && st.Obs.BrowserSteps < budget.MaxBrowserSteps {
		return []Candidate{{
			Name: actionBrowse,
			Input: map[string]any{
				"url":          url,
				"extract_text": true,
			},
			ReasonCode: ReasonWebBrowse,
		}}, false
	}

	// Loop-guard: repeated entity resolution with zero yield means the
	// utterance cannot be grounded; stop and ask the user.
	if len(st.Draft.Nodes) == 0 && o.resolveAttempts(st) >= maxResolveAttempts {
		o.setStatus(st, state.StatusNeedMoreInfo, "无法从您的描述中识别出目的地，请补充具体的城市或景点名称。")
		return nil, true
	}

	input := strings.TrimSpace(st.UserInput)
	if (input == "" || strings.EqualFold(input, "unknown")) && len(st.Draft.Nodes) == 0 {
		o.setStatus(st, state.StatusNeedMoreInfo, "请告诉我您想去的城市、日期和偏好，我才能开始规划。")
		return nil, true
	}

	candidates := o.ruleLadder(st)
	if len(candidates) == 0 {
		return nil, false
	}

	candidates = o.applyStreakGuard(st, candidates)
	if len(candidates) == 0 {
		return nil, false
	}
	if len(candidates) == 1 {
		return candidates, false
	}

	return o.firstParallelGroup(candidates), false
}

// ruleLadder is the ordered rule-based planner.
func (o *Orchestrator) ruleLadder(st *state.AgentState) []Candidate {
	nodes := st.Draft.Nodes

	// Resolution gates everything else: a single-element group.
	if len(nodes) == 0 {
		return []Candidate{{
			Name: actionResolveEntities,
			Input: map[string]any{
				"query": st.UserInput,
				"limit": resolveEntityLimit,
			},
			ReasonCode: ReasonMissingNodes,
		}}
	}

	var candidates []Candidate
	if len(st.Memory.SemanticFacts.POIs) == 0 {
		candidates = append(candidates, Candidate{
			Name:       actionGetPOIFacts,
			Input:      map[string]any{"poi_ids": nodeIDs(nodes)},
			ReasonCode: ReasonFetchingFacts,
		})
	}
	if st.Compute.TimeMatrixRobust == nil {
		candidates = append(candidates, Candidate{
			Name:       actionBuildTimeMatrix,
			Input:      map[string]any{"nodes": nodes},
			ReasonCode: ReasonMissingTimeMatrix,
		})
	}
	if len(candidates) > 0 {
		return candidates
	}

	// Optimization and validation are serial stages: single-element groups.
	if len(st.Compute.OptimizationResults) == 0 {
		return []Candidate{{
			Name: actionOptimizeDay,
			Input: map[string]any{
				"nodes":       nodes,
				"time_matrix": st.Compute.TimeMatrixRobust,
				"trip":        st.Trip,
			},
			ReasonCode: ReasonOptimizing,
		}}
	}
	if len(st.Result.Timeline) > 0 && st.Result.Status == state.StatusDraft {
		return []Candidate{{
			Name: actionValidate,
			Input: map[string]any{
				"timeline": st.Result.Timeline,
				"policy":   st.Trip,
			},
			ReasonCode: ReasonValidationPassed,
		}}
	}
	return nil
}

// applyStreakGuard drops an action chosen in each of the last three
// iterations when an alternative exists; with no alternative the plan yields
// nothing and the loop winds down.
func (o *Orchestrator) applyStreakGuard(st *state.AgentState, candidates []Candidate) []Candidate {
	streak := sameActionStreak(st)
	if streak == "" {
		return candidates
	}
	var filtered []Candidate
	for _, cand := range candidates {
		if cand.Name != streak {
			filtered = append(filtered, cand)
		}
	}
	if len(filtered) < len(candidates) {
		o.logger.Warn("Streak guard suppressed %q after %d identical choices", streak, sameActionStreakLimit)
	}
	return filtered
}

// sameActionStreak returns the action chosen in each of the last three
// decision-log entries, or "" when there is no such streak.
func sameActionStreak(st *state.AgentState) string {
	log := st.React.DecisionLog
	if len(log) < sameActionStreakLimit {
		return ""
	}
	last := log[len(log)-1].ChosenAction
	for i := 2; i <= sameActionStreakLimit; i++ {
		if log[len(log)-i].ChosenAction != last {
			return ""
		}
	}
	return last
}

// blockedActions lists actions the loop guards currently forbid, for the LLM
// planner's validation step.
func (o *Orchestrator) blockedActions(st *state.AgentState) map[string]bool {
	blocked := make(map[string]bool)
	if streak := sameActionStreak(st); streak != "" {
		blocked[streak] = true
	}
	if len(st.Draft.Nodes) == 0 && o.resolveAttempts(st) >= maxResolveAttempts {
		blocked[actionResolveEntities] = true
	}
	return blocked
}

// resolveAttempts counts executed entity resolutions.
func (o *Orchestrator) resolveAttempts(st *state.AgentState) int {
	attempts := 0
	for _, obs := range st.React.Observations {
		if obs.Action == actionResolveEntities {
			attempts++
		}
	}
	return attempts
}

// firstParallelGroup runs the dependency analysis and returns the first
// conflict-free group, preserving candidate order.
func (o *Orchestrator) firstParallelGroup(candidates []Candidate) []Candidate {
	profiles := make([]deps.Profile, 0, len(candidates))
	byName := make(map[string]Candidate, len(candidates))
	for _, cand := range candidates {
		meta := metadataFor(o, cand.Name)
		profiles = append(profiles, deps.ProfileFor(cand.Name, meta))
		byName[cand.Name] = cand
	}

	groups := deps.FindParallelizableGroups(profiles)
	if len(groups) == 0 {
		return candidates[:1]
	}

	first := make([]Candidate, 0, len(groups[0]))
	for _, profile := range groups[0] {
		first = append(first, byName[profile.Name])
	}
	return first
}

// reasonCodeFor maps an action name to the decision-log reason code used
// when the choice did not come from the rule ladder.
func reasonCodeFor(name string) string {
	switch {
	case strings.HasPrefix(name, actionResolveEntities):
		return ReasonMissingNodes
	case strings.HasPrefix(name, actionGetPOIFacts):
		return ReasonFetchingFacts
	case strings.HasPrefix(name, "transport."):
		return ReasonMissingTimeMatrix
	case strings.HasPrefix(name, "itinerary.optimize_"):
		return ReasonOptimizing
	case strings.HasPrefix(name, "itinerary.repair_"):
		return ReasonRepairing
	case strings.HasPrefix(name, "policy."):
		return ReasonValidationPassed
	case strings.HasPrefix(name, "webbrowse."):
		return ReasonWebBrowse
	}
	return ReasonPlannerChoice
}

func nodeIDs(nodes []state.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func metadataFor(o *Orchestrator, name string) (meta ports.ActionMetadata) {
	if action, ok := o.registry.Get(name); ok {
		return action.Metadata()
	}
	return meta
}
