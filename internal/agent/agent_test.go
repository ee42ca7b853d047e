package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xudanli/tripnaraht-sub002/internal/actions"
	actioncache "github.com/xudanli/tripnaraht-sub002/internal/agent/cache"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/events"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/orchestrator"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/registry"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/router"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

type stubFast struct {
	result FastResult
	err    error
	calls  int
	route  router.Route
}

func (f *stubFast) Execute(_ context.Context, route router.Route, _ string, _ *state.AgentState) (FastResult, error) {
	f.calls++
	f.route = route
	return f.result, f.err
}

func newTestAgent(t *testing.T, fast FastExecutor) (*Agent, *events.Journal) {
	t.Helper()
	store := state.NewStore(nil)
	reg := registry.NewRegistry(nil)
	require.NoError(t, actions.RegisterDefaults(reg))
	journal := events.NewJournal()
	orch := orchestrator.New(orchestrator.Deps{
		Store:    store,
		Registry: reg,
		Cache:    actioncache.New(actioncache.Config{}),
		Journal:  journal,
	})
	agent := New(Deps{
		Store:        store,
		Router:       router.New(nil),
		Orchestrator: orch,
		Fast:         fast,
		Journal:      journal,
	})
	return agent, journal
}

func TestFastDeleteReturnsOK(t *testing.T) {
	fast := &stubFast{result: FastResult{Success: true, AnswerText: "已从行程中删除「清水寺」。"}}
	agent, _ := newTestAgent(t, fast)

	resp, err := agent.RouteAndRun(context.Background(), Request{
		UserID: "u1", Message: "删除清水寺",
	})
	require.NoError(t, err)

	assert.Equal(t, router.RouteSystem1API, resp.Route)
	assert.Equal(t, RespOK, resp.Result.Status)
	assert.Equal(t, "已从行程中删除「清水寺」。", resp.Result.AnswerText)
	assert.Equal(t, "SYSTEM1", resp.Observability.SystemMode)
	assert.Equal(t, 1, fast.calls)
	assert.Equal(t, router.RouteSystem1API, fast.route)
}

func TestFastFailureAsksForMoreInfo(t *testing.T) {
	fast := &stubFast{err: errors.New("node not found")}
	agent, _ := newTestAgent(t, fast)

	resp, err := agent.RouteAndRun(context.Background(), Request{
		UserID: "u1", Message: "删除不存在的景点",
	})
	require.NoError(t, err)
	assert.Equal(t, RespNeedMoreInfo, resp.Result.Status)
	assert.NotEmpty(t, resp.Result.AnswerText)
}

func TestMissingFastExecutorDegradesGracefully(t *testing.T) {
	agent, _ := newTestAgent(t, nil)

	resp, err := agent.RouteAndRun(context.Background(), Request{
		UserID: "u1", Message: "删除清水寺",
	})
	require.NoError(t, err)
	assert.Equal(t, RespNeedMoreInfo, resp.Result.Status)
}

func TestPlanningRunsOrchestratorToReady(t *testing.T) {
	agent, _ := newTestAgent(t, nil)

	resp, err := agent.RouteAndRun(context.Background(), Request{
		UserID: "u1", Message: "规划5天日本游，包含东京、京都、大阪",
	})
	require.NoError(t, err)

	assert.Equal(t, router.RouteSystem2Reasoning, resp.Route)
	assert.Equal(t, RespOK, resp.Result.Status)
	assert.Contains(t, resp.Result.AnswerText, "已为您规划好行程")
	assert.Equal(t, "SYSTEM2", resp.Observability.SystemMode)
	assert.NotEmpty(t, resp.Explain.DecisionLog)
	assert.Greater(t, resp.Observability.ToolCalls, 0)
	assert.NotEmpty(t, resp.Result.Payload["timeline"])

	// The input alone is enough to make the token and cost telemetry
	// non-zero for any handled request.
	assert.Greater(t, resp.Observability.TokensEst, 0)
	assert.Greater(t, resp.Observability.CostEstUSD, 0.0)
}

func TestWebbrowseDowngradeWhenNotAllowed(t *testing.T) {
	agent, journal := newTestAgent(t, nil)

	resp, err := agent.RouteAndRun(context.Background(), Request{
		UserID: "u1", Message: "去官网查一下下周六有房吗",
	})
	require.NoError(t, err)

	assert.Equal(t, router.RouteSystem2Reasoning, resp.Route)
	assert.Equal(t, downgradeConfidence, resp.Confidence)
	assert.True(t, resp.Observability.FallbackUsed)
	assert.NotEqual(t, RespNeedConsent, resp.Result.Status)

	types := make(map[string]int)
	for _, rec := range journal.Snapshot() {
		types[rec.Type]++
	}
	assert.Equal(t, 1, types[events.TypeWebbrowseBlocked])
	assert.Equal(t, 1, types[events.TypeFallbackTriggered])
}

func TestWebbrowseAllowedRequiresConsent(t *testing.T) {
	agent, _ := newTestAgent(t, nil)

	resp, err := agent.RouteAndRun(context.Background(), Request{
		UserID:  "u1",
		Message: "去官网查一下下周六有房吗",
		Options: &Options{AllowWebbrowse: true},
	})
	require.NoError(t, err)

	assert.Equal(t, router.RouteSystem2Webbrowse, resp.Route)
	assert.Equal(t, RespNeedConsent, resp.Result.Status)
	assert.Zero(t, resp.Observability.ToolCalls, "nothing executes before consent")
}

func TestPaymentRequiresConsentBeforeExecution(t *testing.T) {
	agent, _ := newTestAgent(t, nil)

	resp, err := agent.RouteAndRun(context.Background(), Request{
		UserID: "u1", Message: "帮我支付这个订单",
	})
	require.NoError(t, err)

	assert.Equal(t, RespNeedConsent, resp.Result.Status)
	assert.Contains(t, resp.Result.AnswerText, "确认")
	assert.Empty(t, resp.Explain.DecisionLog)
}

func TestDuplicateRequestIsReplayed(t *testing.T) {
	fast := &stubFast{result: FastResult{Success: true, AnswerText: "已从行程中删除「清水寺」。"}}
	agent, _ := newTestAgent(t, fast)

	req := Request{UserID: "u1", TripID: "t1", Message: "删除清水寺"}

	first, err := agent.RouteAndRun(context.Background(), req)
	require.NoError(t, err)
	second, err := agent.RouteAndRun(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, fast.calls, "second call never reaches the executor")
	assert.NotEqual(t, first.RequestID, second.RequestID)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, first.Route, second.Route)
	assert.Equal(t, first.Confidence, second.Confidence)
}

func TestDryRunSkipsDedup(t *testing.T) {
	fast := &stubFast{result: FastResult{Success: true, AnswerText: "好的。"}}
	agent, _ := newTestAgent(t, fast)

	req := Request{
		UserID:  "u1",
		Message: "删除清水寺",
		Options: &Options{DryRun: true},
	}
	_, err := agent.RouteAndRun(context.Background(), req)
	require.NoError(t, err)
	_, err = agent.RouteAndRun(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, fast.calls, "dry runs are never served from the dedup cache")
}

func TestMissingCollaboratorsIsAnError(t *testing.T) {
	agent := New(Deps{})
	_, err := agent.RouteAndRun(context.Background(), Request{Message: "hi"})
	assert.Error(t, err)
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, RespOK, mapStatus(state.StatusReady))
	assert.Equal(t, RespNeedConsent, mapStatus(state.StatusNeedConsent))
	assert.Equal(t, RespFailed, mapStatus(state.StatusFailed))
	assert.Equal(t, RespTimeout, mapStatus(state.StatusTimeout))
	assert.Equal(t, RespNeedMoreInfo, mapStatus(state.StatusDraft))
	assert.Equal(t, RespNeedMoreInfo, mapStatus(state.StatusNeedMoreInfo))
}

func TestOptionsOverrideRouterBudget(t *testing.T) {
	decision := router.Output{Budget: router.Budget{MaxSeconds: 60, MaxSteps: 8, MaxBrowserSteps: 12}}
	budget := budgetFor(decision, &Options{MaxSeconds: 10, MaxSteps: 3})

	assert.Equal(t, 10, budget.MaxSeconds)
	assert.Equal(t, 3, budget.MaxSteps)
	assert.Equal(t, 12, budget.MaxBrowserSteps)
}
