// Package agent is the single entry point of the core: it routes an
// utterance, dispatches to the fast path or the orchestrated reasoning loop,
// and assembles the response envelope.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/dedup"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/events"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/orchestrator"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/router"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
	"github.com/xudanli/tripnaraht-sub002/internal/shared/logging"
	tokenutil "github.com/xudanli/tripnaraht-sub002/internal/shared/token"
	id "github.com/xudanli/tripnaraht-sub002/internal/utils/id"
)

// Response statuses seen by callers.
const (
	RespOK           = "OK"
	RespNeedMoreInfo = "NEED_MORE_INFO"
	RespNeedConsent  = "NEED_CONSENT"
	RespFailed       = "FAILED"
	RespTimeout      = "TIMEOUT"
)

// downgradeConfidence is the confidence assigned when a webbrowse route is
// demoted because the caller forbids browsing.
const downgradeConfidence = 0.7

// costPerThousandTokens is a coarse cost estimate for telemetry only.
const costPerThousandTokens = 0.00015

// ConversationContext carries optional conversation metadata.
type ConversationContext struct {
	RecentMessages []string `json:"recent_messages,omitempty"`
	Locale         string   `json:"locale,omitempty"`
	Timezone       string   `json:"timezone,omitempty"`
}

// Options tune one request.
type Options struct {
	DryRun          bool    `json:"dry_run,omitempty"`
	AllowWebbrowse  bool    `json:"allow_webbrowse,omitempty"`
	MaxSeconds      int     `json:"max_seconds,omitempty"`
	MaxSteps        int     `json:"max_steps,omitempty"`
	MaxBrowserSteps int     `json:"max_browser_steps,omitempty"`
	CostBudgetUSD   float64 `json:"cost_budget_usd,omitempty"`
}

// Request is the caller-facing envelope.
type Request struct {
	RequestID string               `json:"request_id,omitempty"`
	UserID    string               `json:"user_id"`
	TripID    string               `json:"trip_id,omitempty"`
	Message   string               `json:"message"`
	Context   *ConversationContext `json:"conversation_context,omitempty"`
	Options   *Options             `json:"options,omitempty"`
}

// ResponseResult is the user-facing outcome.
type ResponseResult struct {
	Status     string         `json:"status"`
	AnswerText string         `json:"answer_text"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// ResponseExplain exposes the decision trail.
type ResponseExplain struct {
	DecisionLog []state.DecisionEntry `json:"decision_log"`
}

// ResponseObservability is per-request telemetry.
type ResponseObservability struct {
	LatencyMS    int64   `json:"latency_ms"`
	RouterMS     int64   `json:"router_ms"`
	SystemMode   string  `json:"system_mode"`
	ToolCalls    int     `json:"tool_calls"`
	BrowserSteps int     `json:"browser_steps"`
	TokensEst    int     `json:"tokens_est"`
	CostEstUSD   float64 `json:"cost_est_usd"`
	FallbackUsed bool    `json:"fallback_used"`
}

// Response is the full outgoing envelope.
type Response struct {
	RequestID     string                `json:"request_id"`
	Route         router.Route          `json:"route"`
	Confidence    float64               `json:"confidence"`
	Result        ResponseResult        `json:"result"`
	Explain       ResponseExplain       `json:"explain"`
	Observability ResponseObservability `json:"observability"`
}

// FastResult is what a fast executor must return.
type FastResult struct {
	Success    bool
	AnswerText string
	Payload    map[string]any
}

// FastExecutor serves SYSTEM1 routes outside the core. Its success maps to
// READY and its failure to NEED_MORE_INFO; nothing else leaks in.
type FastExecutor interface {
	Execute(ctx context.Context, route router.Route, message string, st *state.AgentState) (FastResult, error)
}

// Deps wires the agent entry.
type Deps struct {
	Store        *state.Store
	Router       *router.Router
	Orchestrator *orchestrator.Orchestrator
	Fast         FastExecutor
	Dedup        *dedup.Cache
	Journal      *events.Journal
	Logger       logging.Logger
}

// Agent is the composed core.
type Agent struct {
	store        *state.Store
	router       *router.Router
	orchestrator *orchestrator.Orchestrator
	fast         FastExecutor
	dedup        *dedup.Cache
	journal      *events.Journal
	logger       logging.Logger
	clock        func() time.Time
}

// New composes the agent entry from its collaborators.
func New(deps Deps) *Agent {
	dedupCache := deps.Dedup
	if dedupCache == nil {
		dedupCache = dedup.NewCache(0, 0)
	}
	journal := deps.Journal
	if journal == nil {
		journal = events.NewJournal()
	}
	return &Agent{
		store:        deps.Store,
		router:       deps.Router,
		orchestrator: deps.Orchestrator,
		fast:         deps.Fast,
		dedup:        dedupCache,
		journal:      journal,
		logger:       logging.OrNop(deps.Logger),
		clock:        time.Now,
	}
}

// RouteAndRun handles one request end to end. The only errors it returns are
// envelope-level; every execution outcome is encoded in the response status.
func (a *Agent) RouteAndRun(ctx context.Context, req Request) (*Response, error) {
	if a.store == nil || a.router == nil {
		return nil, errors.New("agent: store and router are required")
	}

	start := a.clock()
	opts := req.Options
	if opts == nil {
		opts = &Options{}
	}

	fp := a.fingerprint(req, opts)
	hash := fp.Hash()
	if !opts.DryRun {
		if cached, ok := a.dedup.Lookup(hash); ok {
			if resp, ok := cached.(*Response); ok {
				return a.replay(resp, start), nil
			}
		}
	}

	st := a.store.Create(req.Message, state.Options{
		RequestID: req.RequestID,
		TripID:    req.TripID,
	})

	routerStart := a.clock()
	decision := a.router.Route(req.Message, router.Context{
		RecentMessages: recentMessages(req),
		Locale:         locale(req),
		Timezone:       timezone(req),
	})
	routerMS := a.clock().Sub(routerStart).Milliseconds()

	a.journal.Append(events.TypeRouterDecision, st.RequestID, map[string]any{
		"route":            decision.Route,
		"confidence":       decision.Confidence,
		"reasons":          decision.Reasons,
		"consent_required": decision.ConsentRequired,
	})

	if decision.Route == router.RouteSystem2Webbrowse && !opts.AllowWebbrowse {
		decision = a.downgradeWebbrowse(st.RequestID, decision)
	}

	updated, err := a.store.Update(st.RequestID, func(s *state.AgentState) {
		s.Obs.RouterMS = routerMS
		s.Obs.FallbackUsed = s.Obs.FallbackUsed || hasReason(decision.Reasons, router.ReasonNoAPI)
	})
	if err == nil {
		st = updated
	}

	if decision.ConsentRequired {
		st = a.markConsent(st, decision)
	} else if decision.Route.System1() {
		st = a.runFast(ctx, st, decision)
	} else {
		st = a.orchestrator.Execute(ctx, st, budgetFor(decision, opts))
	}

	resp := a.buildResponse(st, decision, start)
	if !opts.DryRun {
		a.dedup.Store(hash, resp)
	}
	a.journal.Append(events.TypeAgentComplete, st.RequestID, map[string]any{
		"status":     resp.Result.Status,
		"route":      resp.Route,
		"latency_ms": resp.Observability.LatencyMS,
	})
	return resp, nil
}

// fingerprint builds the dedup identity of a request.
func (a *Agent) fingerprint(req Request, opts *Options) dedup.Fingerprint {
	return dedup.Fingerprint{
		Message:        req.Message,
		UserID:         req.UserID,
		TripID:         req.TripID,
		DryRun:         opts.DryRun,
		AllowWebbrowse: opts.AllowWebbrowse,
		RecentMessages: recentMessages(req),
	}
}

// replay returns a cached response with only identity and latency refreshed.
func (a *Agent) replay(resp *Response, start time.Time) *Response {
	dup := *resp
	dup.RequestID = id.NewRequestID()
	dup.Observability.LatencyMS = a.clock().Sub(start).Milliseconds()
	a.logger.Debug("Dedup hit, replaying response as %s", dup.RequestID)
	return &dup
}

// downgradeWebbrowse demotes a forbidden browser route to plain reasoning.
func (a *Agent) downgradeWebbrowse(requestID string, decision router.Output) router.Output {
	a.logger.Info("Webbrowse not allowed for %s, downgrading to reasoning", requestID)
	a.journal.Append(events.TypeWebbrowseBlocked, requestID, map[string]any{
		"original_route": decision.Route,
	})
	a.journal.Append(events.TypeFallbackTriggered, requestID, map[string]any{
		"from": decision.Route,
		"to":   router.RouteSystem2Reasoning,
	})

	decision.Route = router.RouteSystem2Reasoning
	decision.Confidence = downgradeConfidence
	decision.Reasons = []router.Reason{router.ReasonNoAPI}
	decision.ConsentRequired = false
	decision.RequiredCapabilities = []string{"places", "transport", "planner"}
	decision.Budget.MaxBrowserSteps = 0
	return decision
}

// markConsent parks the request until the user confirms a high-risk action.
func (a *Agent) markConsent(st *state.AgentState, decision router.Output) *state.AgentState {
	next, err := a.store.Update(st.RequestID, func(s *state.AgentState) {
		s.Result.Status = state.StatusNeedConsent
		s.Result.Explanations = append(s.Result.Explanations,
			fmt.Sprintf("该操作需要您的确认后才能继续（%s）。", decision.Route))
	})
	if err != nil {
		a.logger.Error("Consent mark failed: %v", err)
		return st
	}
	return next
}

// runFast dispatches to the external fast executor.
func (a *Agent) runFast(ctx context.Context, st *state.AgentState, decision router.Output) *state.AgentState {
	var (
		result FastResult
		err    error
	)
	if a.fast != nil {
		result, err = a.fast.Execute(ctx, decision.Route, st.UserInput, st)
	} else {
		err = errors.New("agent: no fast executor configured")
	}

	next, updErr := a.store.Update(st.RequestID, func(s *state.AgentState) {
		if err == nil && result.Success {
			s.Result.Status = state.StatusReady
			if result.AnswerText != "" {
				s.Result.Explanations = append(s.Result.Explanations, result.AnswerText)
			}
			return
		}
		s.Result.Status = state.StatusNeedMoreInfo
		s.Result.Explanations = append(s.Result.Explanations,
			"请告诉我您想去的城市、日期和偏好，我才能开始规划。")
	})
	if updErr != nil {
		a.logger.Error("Fast path state update failed: %v", updErr)
		return st
	}
	if err != nil {
		a.logger.Warn("Fast executor failed: %v", err)
	}
	return next
}

func (a *Agent) buildResponse(st *state.AgentState, decision router.Output, start time.Time) *Response {
	st = a.store.Get(st.RequestID)
	latency := a.clock().Sub(start).Milliseconds()

	tokens := tokenutil.CountTokens(st.UserInput)
	for _, expl := range st.Result.Explanations {
		tokens += tokenutil.CountTokens(expl)
	}

	final, err := a.store.Update(st.RequestID, func(s *state.AgentState) {
		s.Obs.LatencyMS = latency
		s.Obs.TokensEst = tokens
		s.Obs.CostEstUSD = float64(tokens) / 1000 * costPerThousandTokens
	})
	if err == nil {
		st = final
	}

	return &Response{
		RequestID:  st.RequestID,
		Route:      decision.Route,
		Confidence: decision.Confidence,
		Result: ResponseResult{
			Status:     mapStatus(st.Result.Status),
			AnswerText: answerText(st),
			Payload: map[string]any{
				"timeline":      st.Result.Timeline,
				"dropped_items": st.Result.DroppedItems,
				"explanations":  st.Result.Explanations,
			},
		},
		Explain: ResponseExplain{DecisionLog: st.React.DecisionLog},
		Observability: ResponseObservability{
			LatencyMS:    st.Obs.LatencyMS,
			RouterMS:     st.Obs.RouterMS,
			SystemMode:   systemMode(decision.Route),
			ToolCalls:    st.Obs.ToolCalls,
			BrowserSteps: st.Obs.BrowserSteps,
			TokensEst:    st.Obs.TokensEst,
			CostEstUSD:   st.Obs.CostEstUSD,
			FallbackUsed: st.Obs.FallbackUsed,
		},
	}
}

func mapStatus(s state.Status) string {
	switch s {
	case state.StatusReady:
		return RespOK
	case state.StatusNeedConsent:
		return RespNeedConsent
	case state.StatusFailed:
		return RespFailed
	case state.StatusTimeout:
		return RespTimeout
	default: // DRAFT and NEED_MORE_INFO both ask the user for more
		return RespNeedMoreInfo
	}
}

// answerText synthesizes the user-facing reply from status and timeline.
func answerText(st *state.AgentState) string {
	switch st.Result.Status {
	case state.StatusReady:
		if n := countNodeEvents(st.Result.Timeline); n > 0 {
			return fmt.Sprintf("已为您规划好行程，包含 %d 个节点。", n)
		}
		if len(st.Result.Explanations) > 0 {
			return st.Result.Explanations[len(st.Result.Explanations)-1]
		}
		return "已处理完成。"
	case state.StatusNeedConsent:
		return "该操作涉及支付或外部网站访问，需要您的确认后才能继续。"
	case state.StatusFailed:
		reason := ""
		if len(st.Result.Explanations) > 0 {
			reason = st.Result.Explanations[len(st.Result.Explanations)-1]
		}
		if reason == "" {
			return "很抱歉，未能在给定约束内完成规划，请调整条件后重试。"
		}
		return "很抱歉，" + reason
	case state.StatusTimeout:
		return "规划超时了，请稍后重试，或缩小行程范围。"
	default:
		if len(st.Result.Explanations) > 0 {
			return st.Result.Explanations[len(st.Result.Explanations)-1]
		}
		return "请告诉我您想去的城市、日期和偏好，我才能开始规划。"
	}
}

func countNodeEvents(timeline []state.TimelineEvent) int {
	n := 0
	for _, ev := range timeline {
		if ev.Type == state.EventNode {
			n++
		}
	}
	return n
}

func systemMode(route router.Route) string {
	if route.System1() {
		return "SYSTEM1"
	}
	return "SYSTEM2"
}

// budgetFor merges the router's budget with per-request overrides.
func budgetFor(decision router.Output, opts *Options) orchestrator.Budget {
	budget := orchestrator.Budget{
		MaxSeconds:      decision.Budget.MaxSeconds,
		MaxSteps:        decision.Budget.MaxSteps,
		MaxBrowserSteps: decision.Budget.MaxBrowserSteps,
	}
	if opts.MaxSeconds > 0 {
		budget.MaxSeconds = opts.MaxSeconds
	}
	if opts.MaxSteps > 0 {
		budget.MaxSteps = opts.MaxSteps
	}
	if opts.MaxBrowserSteps > 0 {
		budget.MaxBrowserSteps = opts.MaxBrowserSteps
	}
	return budget
}

func hasReason(reasons []router.Reason, want router.Reason) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}

func recentMessages(req Request) []string {
	if req.Context == nil {
		return nil
	}
	return req.Context.RecentMessages
}

func locale(req Request) string {
	if req.Context == nil {
		return ""
	}
	return req.Context.Locale
}

func timezone(req Request) string {
	if req.Context == nil {
		return ""
	}
	return req.Context.Timezone
}
