// Package orchestrator drives the bounded ReAct loop:
// Plan → Act → Observe → Critic → Repair, under a time and step budget.
package orchestrator

import (
	"context"
	"time"

	actioncache "github.com/xudanli/tripnaraht-sub002/internal/agent/cache"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/critic"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/events"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/planner"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/registry"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
	"github.com/xudanli/tripnaraht-sub002/internal/shared/logging"
)

// Budget caps one loop execution.
type Budget struct {
	MaxSeconds      int
	MaxSteps        int
	MaxBrowserSteps int
}

// Candidate is one planned action invocation.
type Candidate struct {
	Name       string
	Input      map[string]any
	ReasonCode string
}

// Deps wires the orchestrator's collaborators. Planner and Metrics are
// optional; everything else is required.
type Deps struct {
	Store    *state.Store
	Registry *registry.Registry
	Cache    *actioncache.Cache
	Planner  *planner.Planner
	Journal  *events.Journal
	Metrics  *Metrics
	Logger   logging.Logger
}

// Orchestrator owns the slow reasoning path of one process.
type Orchestrator struct {
	store    *state.Store
	registry *registry.Registry
	cache    *actioncache.Cache
	planner  *planner.Planner
	journal  *events.Journal
	metrics  *Metrics
	logger   logging.Logger
	clock    func() time.Time
}

// New creates an orchestrator.
func New(deps Deps) *Orchestrator {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = defaultMetrics()
	}
	journal := deps.Journal
	if journal == nil {
		journal = events.NewJournal()
	}
	return &Orchestrator{
		store:    deps.Store,
		registry: deps.Registry,
		cache:    deps.Cache,
		planner:  deps.Planner,
		journal:  journal,
		metrics:  metrics,
		logger:   logging.OrNop(deps.Logger),
		clock:    time.Now,
	}
}

// Execute runs the loop until a terminal result status or budget exhaustion.
// The returned state is the only valid handle after the call.
func (o *Orchestrator) Execute(ctx context.Context, st *state.AgentState, budget Budget) *state.AgentState {
	budget = o.normalizeBudget(st, budget)
	start := o.clock()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(budget.MaxSeconds)*time.Second)
	defer cancel()

	o.metrics.requestStarted()
	defer o.metrics.requestFinished()

	for o.shouldContinue(st, budget, start) {
		iterStart := o.clock()

		group, stop := o.plan(ctx, st, budget)
		if stop || len(group) == 0 {
			st = o.store.Get(st.RequestID)
			break
		}

		pre := factCounts{
			nodes: len(st.Draft.Nodes),
			facts: len(st.Memory.SemanticFacts.POIs),
		}
		results := o.act(ctx, st, group)
		st = o.mergeAndObserve(st, group, results)

		report := critic.ValidateFeasibility(st)
		st = o.logDecisions(st, group, results, report, pre)
		o.journal.Append(events.TypeCriticResult, st.RequestID, map[string]any{
			"pass":       report.Pass,
			"violations": report.Violations,
		})
		o.journal.Append(events.TypeSystem2Step, st.RequestID, map[string]any{
			"step":    st.React.Step,
			"actions": candidateNames(group),
		})

		// READY requires the validation stage to have run and passed on an
		// actual schedule; the critic passing mid-pipeline is not enough.
		if validationPassed(group, results) && report.Pass && len(st.Result.Timeline) > 0 {
			st = o.setStatus(st, state.StatusReady, "")
			o.metrics.observePhase("iteration", "ready", o.clock().Sub(iterStart))
			break
		}

		st = o.repair(ctx, st, report, budget)
		st = o.incrementStep(st)
		o.metrics.observePhase("iteration", "continue", o.clock().Sub(iterStart))
	}

	return o.finalize(st, budget, start)
}

func (o *Orchestrator) normalizeBudget(st *state.AgentState, budget Budget) Budget {
	if budget.MaxSteps <= 0 {
		budget.MaxSteps = st.React.MaxSteps
	}
	if budget.MaxSteps <= 0 {
		budget.MaxSteps = state.DefaultMaxSteps
	}
	if budget.MaxSeconds <= 0 {
		budget.MaxSeconds = 60
	}
	return budget
}

// shouldContinue is the loop termination predicate. READY and FAILED are
// terminal; NEED_MORE_INFO and NEED_CONSENT end the loop gracefully because
// only the user can move the request forward.
func (o *Orchestrator) shouldContinue(st *state.AgentState, budget Budget, start time.Time) bool {
	if st.Result.Status != state.StatusDraft {
		return false
	}
	if st.React.Step >= budget.MaxSteps {
		return false
	}
	return o.clock().Sub(start) < time.Duration(budget.MaxSeconds)*time.Second
}

// finalize classifies a non-terminal exit.
func (o *Orchestrator) finalize(st *state.AgentState, budget Budget, start time.Time) *state.AgentState {
	if st.Result.Status != state.StatusDraft {
		return st
	}

	elapsed := o.clock().Sub(start)
	budgetBlown := elapsed >= time.Duration(budget.MaxSeconds)*time.Second ||
		st.React.Step >= budget.MaxSteps

	if budgetBlown {
		return o.setStatus(st, state.StatusTimeout, "规划超时，请稍后重试或缩小范围。")
	}
	for _, dropped := range st.Result.DroppedItems {
		if dropped.Hard {
			return o.setStatus(st, state.StatusFailed, "无法在给定约束内安排必去节点："+dropped.NodeID)
		}
	}
	return st
}

func (o *Orchestrator) setStatus(st *state.AgentState, status state.Status, explanation string) *state.AgentState {
	next, err := o.store.Update(st.RequestID, func(s *state.AgentState) {
		s.Result.Status = status
		if explanation != "" {
			s.Result.Explanations = append(s.Result.Explanations, explanation)
		}
	})
	if err != nil {
		o.logger.Error("Status update failed: request_id=%s: %v", st.RequestID, err)
		return st
	}
	return next
}

func (o *Orchestrator) incrementStep(st *state.AgentState) *state.AgentState {
	next, err := o.store.Update(st.RequestID, func(s *state.AgentState) {
		s.React.Step++
	})
	if err != nil {
		return st
	}
	return next
}

// validationPassed reports whether this iteration executed the validation
// action and it returned a passing verdict.
func validationPassed(group []Candidate, results []actResult) bool {
	for i, cand := range group {
		if cand.Name != actionValidate || results[i].skipped || results[i].err != nil {
			continue
		}
		pass, _ := results[i].output["pass"].(bool)
		return pass
	}
	return false
}

func candidateNames(group []Candidate) []string {
	names := make([]string, len(group))
	for i, cand := range group {
		names[i] = cand.Name
	}
	return names
}
