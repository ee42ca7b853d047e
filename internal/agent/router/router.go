// Package router classifies a user utterance and emits the execution
// envelope that controls downstream dispatch: hard-rule short-circuits first,
// feature-scored classification second.
package router

import (
	"regexp"
	"strings"

	"github.com/xudanli/tripnaraht-sub002/internal/shared/logging"
)

// Route is the router's classification of an utterance.
type Route string

const (
	RouteSystem1API       Route = "SYSTEM1_API"
	RouteSystem1RAG       Route = "SYSTEM1_RAG"
	RouteSystem2Reasoning Route = "SYSTEM2_REASONING"
	RouteSystem2Webbrowse Route = "SYSTEM2_WEBBROWSE"
)

// System1 reports whether the route takes the fast deterministic path.
func (r Route) System1() bool {
	return r == RouteSystem1API || r == RouteSystem1RAG
}

// Reason explains a routing decision.
type Reason string

const (
	ReasonMultiConstraint Reason = "MULTI_CONSTRAINT"
	ReasonMissingInfo     Reason = "MISSING_INFO"
	ReasonNoAPI           Reason = "NO_API"
	ReasonRealtimeWeb     Reason = "REALTIME_WEB"
	ReasonHighRiskAction  Reason = "HIGH_RISK_ACTION"
)

// Confidence bounds from the classification contract.
const (
	MinConfidence = 0.1
	MaxConfidence = 0.95
	// downgradeThreshold is the confidence below which a System 2 candidate
	// is demoted to the fast path.
	downgradeThreshold = 0.45
)

// Budget caps the downstream execution.
type Budget struct {
	MaxSeconds      int `json:"max_seconds"`
	MaxSteps        int `json:"max_steps"`
	MaxBrowserSteps int `json:"max_browser_steps"`
}

// UIHint tells the UI how to present progress.
type UIHint struct {
	Mode    string `json:"mode"` // fast | slow
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Output is the execution envelope emitted per utterance.
type Output struct {
	Route                Route    `json:"route"`
	Confidence           float64  `json:"confidence"`
	Reasons              []Reason `json:"reasons"`
	RequiredCapabilities []string `json:"required_capabilities"`
	ConsentRequired      bool     `json:"consent_required"`
	Budget               Budget   `json:"budget"`
	UIHint               UIHint   `json:"ui_hint"`
}

// Context carries conversation metadata the router may consult.
type Context struct {
	RecentMessages []string `json:"recent_messages,omitempty"`
	Locale         string   `json:"locale,omitempty"`
	Timezone       string   `json:"timezone,omitempty"`
}

// Cue lexicons. Substring/regex matching is case-insensitive; Chinese cues
// match as plain substrings.
var (
	paymentRe  = regexp.MustCompile(`(?i)支付|付款|退款|退票|下单|pay(?:ment)?\b|refund|checkout|批量(?:删除|修改|更新)|batch\s+(?:delete|update)`)
	realtimeRe = regexp.MustCompile(`(?i)官网|官方网站|实时|余票|有房|有票|现在开|live\s+availability|official\s+site|book(?:ing)?\s+now|浏览器|browser`)
	crudRe     = regexp.MustCompile(`(?i)删除|移除|移到|挪到|添加|加上|调整优先级|优先|delete|remove|move|\badd\b|reprioritize`)
	factualRe  = regexp.MustCompile(`(?i)营业时间|几点开|几点关|开门|门票|多少钱|价格|在哪|哪里|怎么走|推荐|opening\s+hours|\bprice\b|where\s+is|recommend`)
	planningRe = regexp.MustCompile(`(?i)规划|行程|安排|路线|攻略|\d+\s*天|几天|如果.+就|plan\b|itinerary|schedule`)

	constraintRe = regexp.MustCompile(`(?i)既要|又要|还要|不要|避免|必须|不能|只能|预算|不超过|至少|最多|avoid|must\b|budget|no\s+more\s+than|at\s+least`)
	ambiguityRe  = regexp.MustCompile(`(?i)这个|那个|它们?|这里|那里|\bthis\b|\bthat\b|\bit\b|？|\?`)
)

// highAmbiguityThreshold is how many ambiguity cues count as "high".
const highAmbiguityThreshold = 2

// Standard budgets per route.
var (
	budgetReasoning = Budget{MaxSeconds: 60, MaxSteps: 8, MaxBrowserSteps: 0}
	budgetWebbrowse = Budget{MaxSeconds: 60, MaxSteps: 8, MaxBrowserSteps: 12}
	budgetFastAPI   = Budget{MaxSeconds: 3, MaxSteps: 1, MaxBrowserSteps: 0}
	budgetFastRAG   = Budget{MaxSeconds: 5, MaxSteps: 1, MaxBrowserSteps: 0}
)

// Router performs utterance classification.
type Router struct {
	logger logging.Logger
}

// New creates a router.
func New(logger logging.Logger) *Router {
	return &Router{logger: logging.OrNop(logger)}
}

// Route classifies input. It never fails: an unexpected panic is converted
// into a safe SYSTEM1_API fallback with low confidence.
func (r *Router) Route(input string, rctx Context) (out Output) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Router panic, using safe fallback: %v", rec)
			out = fallbackOutput()
		}
	}()

	input = strings.TrimSpace(input)

	if hard, ok := r.hardRules(input); ok {
		r.logger.Debug("Hard rule fired: route=%s conf=%.2f", hard.Route, hard.Confidence)
		return hard
	}
	return r.scoreFeatures(input)
}

// hardRules applies the priority-ordered short-circuit rules.
func (r *Router) hardRules(input string) (Output, bool) {
	if input == "" {
		return Output{}, false
	}

	// Payment, refunds and batch mutations are high-risk: always the
	// reasoning path, with consent.
	if paymentRe.MatchString(input) {
		return finish(Output{
			Route:           RouteSystem2Reasoning,
			Confidence:      0.9,
			Reasons:         []Reason{ReasonHighRiskAction},
			ConsentRequired: true,
			Budget:          budgetReasoning,
		}), true
	}

	// Official-site / live-availability cues need the browser.
	if realtimeRe.MatchString(input) {
		return finish(Output{
			Route:           RouteSystem2Webbrowse,
			Confidence:      0.9,
			Reasons:         []Reason{ReasonRealtimeWeb, ReasonHighRiskAction},
			ConsentRequired: true,
			Budget:          budgetWebbrowse,
		}), true
	}

	planning := planningRe.MatchString(input)

	// Explicit CRUD verbs without planning cues are a single API call.
	if crudRe.MatchString(input) && !planning {
		return finish(Output{
			Route:      RouteSystem1API,
			Confidence: 0.85,
			Budget:     budgetFastAPI,
		}), true
	}

	// Factual lookups without planning cues go to retrieval.
	if factualRe.MatchString(input) && !planning {
		return finish(Output{
			Route:      RouteSystem1RAG,
			Confidence: 0.8,
			Budget:     budgetFastRAG,
		}), true
	}

	return Output{}, false
}

// scoreFeatures is the second stage: count cue features and accumulate a
// confidence score starting from 0.5.
func (r *Router) scoreFeatures(input string) Output {
	constraints := len(constraintRe.FindAllString(input, -1))
	ambiguity := len(ambiguityRe.FindAllString(input, -1))
	planning := planningRe.MatchString(input)
	realtime := realtimeRe.MatchString(input)

	confidence := 0.5
	var route Route
	var reasons []Reason

	if constraints >= 2 {
		confidence += 0.3
		route = RouteSystem2Reasoning
		reasons = append(reasons, ReasonMultiConstraint)
	}
	if planning {
		confidence += 0.25
		if route != RouteSystem2Webbrowse {
			route = RouteSystem2Reasoning
		}
	}
	if realtime {
		confidence += 0.2
		route = RouteSystem2Webbrowse
		reasons = append(reasons, ReasonRealtimeWeb)
	}
	if ambiguity >= highAmbiguityThreshold {
		confidence -= 0.3
		reasons = append(reasons, ReasonMissingInfo)
	}

	confidence = clamp(confidence)

	if route == "" || confidence < downgradeThreshold {
		if planning {
			route = RouteSystem1RAG
		} else {
			route = RouteSystem1API
		}
	}

	out := Output{
		Route:           route,
		Confidence:      confidence,
		Reasons:         reasons,
		ConsentRequired: route == RouteSystem2Webbrowse || realtime,
		Budget:          budgetFor(route),
	}
	return finish(out)
}

// finish derives the route-dependent envelope fields.
func finish(out Output) Output {
	out.RequiredCapabilities = capabilitiesFor(out.Route)
	if out.Route == RouteSystem2Webbrowse {
		out.ConsentRequired = true
	}
	out.UIHint = hintFor(out.Route)
	out.Confidence = clamp(out.Confidence)
	return out
}

func capabilitiesFor(route Route) []string {
	switch route {
	case RouteSystem1RAG:
		return []string{"places"}
	case RouteSystem2Reasoning:
		return []string{"places", "transport", "planner"}
	case RouteSystem2Webbrowse:
		return []string{"browser"}
	}
	return nil
}

func budgetFor(route Route) Budget {
	switch route {
	case RouteSystem2Reasoning:
		return budgetReasoning
	case RouteSystem2Webbrowse:
		return budgetWebbrowse
	case RouteSystem1RAG:
		return budgetFastRAG
	}
	return budgetFastAPI
}

func hintFor(route Route) UIHint {
	if route.System1() {
		return UIHint{Mode: "fast", Status: "processing", Message: "正在快速处理您的请求…"}
	}
	return UIHint{Mode: "slow", Status: "planning", Message: "正在为您深度规划，请稍候…"}
}

func fallbackOutput() Output {
	return finish(Output{
		Route:      RouteSystem1API,
		Confidence: 0.3,
		Reasons:    []Reason{ReasonMissingInfo},
		Budget:     budgetFastAPI,
	})
}

func clamp(confidence float64) float64 {
	if confidence < MinConfidence {
		return MinConfidence
	}
	if confidence > MaxConfidence {
		return MaxConfidence
	}
	return confidence
}
