package actions

import (
	"context"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/critic"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

// waitEventThresholdMin mirrors the feasibility rule: queues longer than this
// get their own WAIT slot in the timeline.
const waitEventThresholdMin = 15

// OptimizeDayVRPTW schedules the draft nodes into day timelines, greedy
// earliest-finish with opening windows, day boundaries and lunch insertion.
type OptimizeDayVRPTW struct{}

func (OptimizeDayVRPTW) Definition() ports.ActionDefinition {
	return ports.ActionDefinition{
		Name:        "itinerary.optimize_day_vrptw",
		Description: "Schedule resolved nodes into per-day timelines honoring opening windows, day boundaries and the lunch break.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"nodes":       map[string]any{"type": "array"},
				"time_matrix": map[string]any{"type": "array"},
				"trip":        map[string]any{"type": "object"},
			},
		},
	}
}

func (OptimizeDayVRPTW) Metadata() ports.ActionMetadata {
	return ports.ActionMetadata{
		Kind:          "itinerary",
		Cost:          ports.CostHigh,
		SideEffect:    ports.SideEffectNone,
		Preconditions: []string{"nodes_resolved", "matrix_built"},
		WritePaths: []string{
			"compute.optimization_results",
			"result.timeline",
			"result.dropped_items",
		},
		Idempotent: true,
	}
}

func (OptimizeDayVRPTW) Execute(ctx context.Context, input map[string]any, st *state.AgentState) (map[string]any, error) {
	return scheduleDays(st), nil
}

// RepairCrossDay reschedules everything from scratch after a feasibility
// violation, replacing the previous timeline wholesale.
type RepairCrossDay struct{}

func (RepairCrossDay) Definition() ports.ActionDefinition {
	return ports.ActionDefinition{
		Name:        "itinerary.repair_cross_day",
		Description: "Rebuild the timeline across days to resolve time-window and day-boundary violations.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"violations": map[string]any{"type": "array"},
			},
		},
	}
}

func (RepairCrossDay) Metadata() ports.ActionMetadata {
	return ports.ActionMetadata{
		Kind:          "itinerary",
		Cost:          ports.CostHigh,
		SideEffect:    ports.SideEffectNone,
		Preconditions: []string{"nodes_resolved", "matrix_built"},
		WritePaths: []string{
			"compute.optimization_results",
			"result.timeline",
			"result.dropped_items",
		},
		Idempotent: true,
	}
}

func (RepairCrossDay) Execute(ctx context.Context, input map[string]any, st *state.AgentState) (map[string]any, error) {
	return scheduleDays(st), nil
}

// scheduleDays is the shared solver: greedy earliest-finish insertion per
// day, transit and wait slots made explicit, one lunch per scheduled day.
func scheduleDays(st *state.AgentState) map[string]any {
	nodes := st.Draft.Nodes
	matrix := st.Compute.TimeMatrixRobust
	if matrix == nil {
		matrix = st.Compute.TimeMatrixAPI
	}

	indexByID := make(map[string]int, len(nodes))
	for i, n := range nodes {
		indexByID[n.ID] = i
	}
	hard := make(map[string]bool, len(st.Draft.HardNodes))
	for _, n := range st.Draft.HardNodes {
		hard[n.ID] = true
	}

	remaining := make([]state.Node, len(nodes))
	copy(remaining, nodes)

	var (
		timeline []state.TimelineEvent
		results  []state.OptimizationResult
	)

	for day := 1; day <= st.Trip.Days && len(remaining) > 0; day++ {
		dayTimeline, order, objective, rest := scheduleOneDay(st, day, remaining, matrix, indexByID)
		remaining = rest
		if len(order) == 0 {
			continue
		}
		timeline = append(timeline, dayTimeline...)
		results = append(results, state.OptimizationResult{
			Day:       day,
			Objective: objective,
			Order:     order,
		})
	}

	dropped := make([]state.DroppedItem, 0, len(remaining))
	for _, n := range remaining {
		dropped = append(dropped, state.DroppedItem{
			NodeID: n.ID,
			Hard:   hard[n.ID],
			Reason: "no feasible slot within day boundaries",
		})
	}

	return map[string]any{
		"results":       results,
		"timeline":      timeline,
		"dropped_items": dropped,
	}
}

func scheduleOneDay(st *state.AgentState, day int, remaining []state.Node, matrix [][]int, indexByID map[string]int) (timeline []state.TimelineEvent, order []string, objective float64, rest []state.Node) {
	boundary := dayBoundary(st, day)
	dayStart, _ := critic.ParseMinutes(boundary.Start)
	dayEnd, okEnd := critic.ParseMinutes(boundary.End)
	if !okEnd {
		dayEnd = 22 * 60
	}

	lunch := st.Trip.LunchBreak
	lunchStartMin, okLunch1 := critic.ParseMinutes(lunch.Window[0])
	lunchEndMin, okLunch2 := critic.ParseMinutes(lunch.Window[1])
	needLunch := lunch.Enabled && okLunch1 && okLunch2

	cursor := dayStart
	lastIdx := -1
	lunchDone := false

	pool := append([]state.Node(nil), remaining...)

	for len(pool) > 0 {
		// The lunch slot is claimed as soon as the cursor enters its window.
		if needLunch && !lunchDone && cursor >= lunchStartMin {
			start := cursor
			if start > lunchEndMin {
				start = lunchEndMin
			}
			duration := lunch.DurationMin
			if duration <= 0 {
				duration = 60
			}
			timeline = append(timeline, state.TimelineEvent{
				Type:  state.EventLunch,
				Name:  "午餐",
				Day:   day,
				Start: critic.FormatMinutes(start),
				End:   critic.FormatMinutes(start + duration),
			})
			if start+duration > cursor {
				cursor = start + duration
			}
			lunchDone = true
			continue
		}

		bestPool, visit := pickNext(pool, cursor, dayEnd, lastIdx, matrix, indexByID)
		if visit == nil {
			break
		}
		pool = bestPool

		if visit.travel > 0 {
			timeline = append(timeline, state.TimelineEvent{
				Type:  state.EventTransit,
				Day:   day,
				Start: critic.FormatMinutes(cursor),
				End:   critic.FormatMinutes(cursor + visit.travel),
			})
		}
		if visit.node.WaitMin > waitEventThresholdMin {
			timeline = append(timeline, state.TimelineEvent{
				Type:    state.EventWait,
				NodeID:  visit.node.ID,
				Name:    visit.node.Name,
				Day:     day,
				Start:   critic.FormatMinutes(visit.nodeStart - visit.node.WaitMin),
				End:     critic.FormatMinutes(visit.nodeStart),
				WaitMin: visit.node.WaitMin,
			})
		}
		timeline = append(timeline, state.TimelineEvent{
			Type:    state.EventNode,
			NodeID:  visit.node.ID,
			Name:    visit.node.Name,
			Day:     day,
			Start:   critic.FormatMinutes(visit.nodeStart),
			End:     critic.FormatMinutes(visit.nodeEnd),
			WaitMin: visit.node.WaitMin,
		})

		order = append(order, visit.node.ID)
		objective += float64(visit.travel)
		cursor = visit.nodeEnd
		lastIdx = indexByID[visit.node.ID]
	}

	// A scheduled day always eats lunch, even a late one.
	if needLunch && !lunchDone && len(order) > 0 {
		start := cursor
		if start < lunchStartMin {
			start = lunchStartMin
		}
		if start > lunchEndMin {
			start = lunchEndMin
		}
		duration := lunch.DurationMin
		if duration <= 0 {
			duration = 60
		}
		timeline = append(timeline, state.TimelineEvent{
			Type:  state.EventLunch,
			Name:  "午餐",
			Day:   day,
			Start: critic.FormatMinutes(start),
			End:   critic.FormatMinutes(start + duration),
		})
	}

	return timeline, order, objective, pool
}

// candidateVisit is one feasible placement of a node at the current cursor.
type candidateVisit struct {
	node      state.Node
	travel    int
	nodeStart int
	nodeEnd   int
}

// pickNext chooses the earliest-finishing feasible node and removes it from
// the pool. A nil visit means nothing else fits today.
func pickNext(pool []state.Node, cursor, dayEnd, lastIdx int, matrix [][]int, indexByID map[string]int) ([]state.Node, *candidateVisit) {
	bestAt := -1
	var best *candidateVisit

	for i, node := range pool {
		travel := 0
		if lastIdx >= 0 {
			if idx, ok := indexByID[node.ID]; ok && matrix != nil && lastIdx < len(matrix) && idx < len(matrix[lastIdx]) {
				travel = matrix[lastIdx][idx]
			}
		}
		arrival := cursor + travel

		visit := placeInWindow(node, arrival, dayEnd)
		if visit == nil {
			continue
		}
		visit.travel = travel
		if best == nil || visit.nodeEnd < best.nodeEnd {
			best = visit
			bestAt = i
		}
	}

	if best == nil {
		return pool, nil
	}
	out := append([]state.Node(nil), pool[:bestAt]...)
	out = append(out, pool[bestAt+1:]...)
	return out, best
}

// placeInWindow finds the earliest service slot inside one of the node's
// opening windows that also respects the day end.
func placeInWindow(node state.Node, arrival, dayEnd int) *candidateVisit {
	windows := node.Open
	if len(windows) == 0 {
		windows = []state.Window{{Start: "00:00", End: "23:59"}}
	}

	for _, w := range windows {
		openStart, ok1 := critic.ParseMinutes(w.Start)
		openEnd, ok2 := critic.ParseMinutes(w.End)
		if !ok1 || !ok2 {
			continue
		}
		entry := arrival
		if entry < openStart {
			entry = openStart
		}
		nodeStart := entry + node.WaitMin
		nodeEnd := nodeStart + node.ServiceMin
		if nodeStart < openStart || nodeEnd > openEnd || nodeEnd > dayEnd {
			continue
		}
		return &candidateVisit{node: node, nodeStart: nodeStart, nodeEnd: nodeEnd}
	}
	return nil
}

func dayBoundary(st *state.AgentState, day int) state.DayBoundary {
	idx := day - 1
	if idx >= 0 && idx < len(st.Trip.DayBoundaries) {
		return st.Trip.DayBoundaries[idx]
	}
	return state.DayBoundary{Start: state.DefaultDayStart, End: state.DefaultDayEnd}
}
