package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/critic"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

func plannedState(t *testing.T, nodes []state.Node, days int) *state.AgentState {
	t.Helper()

	boundaries := make([]state.DayBoundary, days)
	for i := range boundaries {
		boundaries[i] = state.DayBoundary{Start: "10:00", End: "22:00"}
	}
	st := &state.AgentState{
		Trip: state.Trip{
			Days:          days,
			DayBoundaries: boundaries,
			LunchBreak: state.LunchBreak{
				Enabled:     true,
				DurationMin: 60,
				Window:      [2]string{"11:30", "13:30"},
			},
		},
	}
	st.Draft.Nodes = nodes

	out, err := BuildTimeMatrix{}.Execute(context.Background(), map[string]any{"nodes": nodes}, st)
	require.NoError(t, err)
	st.Compute.TimeMatrixAPI = out["time_matrix_api"].([][]int)
	st.Compute.TimeMatrixRobust = out["time_matrix_robust"].([][]int)
	return st
}

func runOptimizer(t *testing.T, st *state.AgentState) *state.AgentState {
	t.Helper()
	out, err := OptimizeDayVRPTW{}.Execute(context.Background(), map[string]any{}, st)
	require.NoError(t, err)
	st.Compute.OptimizationResults = out["results"].([]state.OptimizationResult)
	st.Result.Timeline = out["timeline"].([]state.TimelineEvent)
	st.Result.DroppedItems = out["dropped_items"].([]state.DroppedItem)
	return st
}

func catalogNodes(ids ...string) []state.Node {
	var out []state.Node
	for _, entry := range builtinCatalog {
		for _, id := range ids {
			if entry.Node.ID == id {
				out = append(out, entry.Node)
			}
		}
	}
	return out
}

func TestSingleDayScheduleSatisfiesCritic(t *testing.T) {
	st := plannedState(t, catalogNodes("poi_kiyomizu", "poi_kinkaku", "poi_fushimi"), 1)
	st = runOptimizer(t, st)

	require.NotEmpty(t, st.Result.Timeline)
	assert.Empty(t, st.Result.DroppedItems)

	report := critic.ValidateFeasibility(st)
	assert.True(t, report.Pass, "violations: %+v", report.Violations)
}

func TestMultiCityScheduleSpreadsAcrossDays(t *testing.T) {
	nodes := catalogNodes(
		"poi_kiyomizu", "poi_kinkaku", "poi_fushimi",
		"poi_sensoji", "poi_tokyo_tower", "poi_meiji",
	)
	st := plannedState(t, nodes, 3)
	st = runOptimizer(t, st)

	days := make(map[int]bool)
	for _, ev := range st.Result.Timeline {
		days[ev.Day] = true
	}
	// Tokyo-Kyoto transit exceeds a day window, so one city per day at most.
	assert.GreaterOrEqual(t, len(days), 2)

	report := critic.ValidateFeasibility(st)
	assert.True(t, report.Pass, "violations: %+v", report.Violations)
}

func TestLongWaitGetsItsOwnSlot(t *testing.T) {
	st := plannedState(t, catalogNodes("poi_kiyomizu", "poi_fushimi"), 1)
	st = runOptimizer(t, st)

	var waits []state.TimelineEvent
	for _, ev := range st.Result.Timeline {
		if ev.Type == state.EventWait {
			waits = append(waits, ev)
		}
	}
	// Only kiyomizu queues longer than the visibility threshold.
	require.Len(t, waits, 1)
	assert.Equal(t, "poi_kiyomizu", waits[0].NodeID)
	assert.Equal(t, 20, waits[0].WaitMin)
}

func TestEveryScheduledDayHasOneLunch(t *testing.T) {
	nodes := catalogNodes(
		"poi_kiyomizu", "poi_kinkaku", "poi_fushimi",
		"poi_osaka_castle", "poi_dotonbori",
	)
	st := plannedState(t, nodes, 3)
	st = runOptimizer(t, st)

	lunches := make(map[int]int)
	scheduled := make(map[int]bool)
	for _, ev := range st.Result.Timeline {
		if ev.Type == state.EventLunch {
			lunches[ev.Day]++
		}
		if ev.Type == state.EventNode {
			scheduled[ev.Day] = true
		}
	}
	for day := range scheduled {
		assert.Equal(t, 1, lunches[day], "day %d", day)
	}
}

func TestInfeasibleHardNodeIsDroppedAsHard(t *testing.T) {
	nightOnly := state.Node{
		ID: "poi_night", Name: "夜间限定", Lat: 34.99, Lng: 135.78,
		Open:       []state.Window{{Start: "02:00", End: "03:00"}},
		ServiceMin: 60,
	}
	nodes := append(catalogNodes("poi_kiyomizu"), nightOnly)
	st := plannedState(t, nodes, 1)
	st.Draft.HardNodes = []state.Node{nightOnly}
	st = runOptimizer(t, st)

	require.Len(t, st.Result.DroppedItems, 1)
	assert.Equal(t, "poi_night", st.Result.DroppedItems[0].NodeID)
	assert.True(t, st.Result.DroppedItems[0].Hard)
	assert.Equal(t, "no feasible slot within day boundaries", st.Result.DroppedItems[0].Reason)
}

func TestRepairRebuildsWholeTimeline(t *testing.T) {
	st := plannedState(t, catalogNodes("poi_kiyomizu", "poi_kinkaku"), 1)

	// Seed a broken timeline; the repair replaces it wholesale.
	st.Result.Timeline = []state.TimelineEvent{
		{Type: state.EventNode, NodeID: "poi_kiyomizu", Day: 1, Start: "21:00", End: "23:30"},
	}

	out, err := RepairCrossDay{}.Execute(context.Background(), map[string]any{
		"violations": []string{"DAY_BOUNDARY_VIOLATION"},
	}, st)
	require.NoError(t, err)

	st.Result.Timeline = out["timeline"].([]state.TimelineEvent)
	st.Compute.OptimizationResults = out["results"].([]state.OptimizationResult)
	st.Result.DroppedItems = out["dropped_items"].([]state.DroppedItem)

	report := critic.ValidateFeasibility(st)
	assert.True(t, report.Pass, "violations: %+v", report.Violations)
}

func TestOptimizerIsDeterministic(t *testing.T) {
	nodes := catalogNodes("poi_kiyomizu", "poi_kinkaku", "poi_fushimi")
	a := runOptimizer(t, plannedState(t, nodes, 1))
	b := runOptimizer(t, plannedState(t, nodes, 1))
	assert.Equal(t, a.Result.Timeline, b.Result.Timeline)
	assert.Equal(t, a.Compute.OptimizationResults, b.Compute.OptimizationResults)
}
