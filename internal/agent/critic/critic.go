// Package critic validates the feasibility of a day schedule against policy.
// The verdict is purely advisory: it never mutates state.
package critic

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

// ViolationKind names one feasibility violation class.
type ViolationKind string

const (
	TimeWindowConflict   ViolationKind = "TIME_WINDOW_CONFLICT"
	DayBoundaryViolation ViolationKind = "DAY_BOUNDARY_VIOLATION"
	LunchMissing         ViolationKind = "LUNCH_MISSING"
	LunchMultiple        ViolationKind = "LUNCH_MULTIPLE"
	LunchWindowViolation ViolationKind = "LUNCH_WINDOW_VIOLATION"
	RobustTimeMissing    ViolationKind = "ROBUST_TIME_MISSING"
	WaitNotVisible       ViolationKind = "WAIT_NOT_VISIBLE"
	ScheduleMissing      ViolationKind = "SCHEDULE_MISSING"
)

// waitVisibilityThresholdMin is the longest queue a schedule may hide without
// a dedicated WAIT event.
const waitVisibilityThresholdMin = 15

// Violation is one concrete feasibility breach.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Day    int           `json:"day,omitempty"`
	NodeID string        `json:"node_id,omitempty"`
	Detail string        `json:"detail,omitempty"`
}

// Report is the advisory validation verdict.
type Report struct {
	Pass       bool        `json:"pass"`
	Violations []Violation `json:"violations"`
	MinSlack   int         `json:"min_slack,omitempty"`
	TotalWait  int         `json:"total_wait,omitempty"`
}

// ValidateFeasibility runs the ordered feasibility checks over the current
// timeline and compute artifacts.
func ValidateFeasibility(st *state.AgentState) Report {
	var violations []Violation

	nodesByID := make(map[string]state.Node, len(st.Draft.Nodes))
	for _, n := range st.Draft.Nodes {
		nodesByID[n.ID] = n
	}

	minSlack := -1
	totalWait := 0

	// 1. Time windows of scheduled nodes.
	for _, ev := range st.Result.Timeline {
		if ev.Type != state.EventNode {
			continue
		}
		start, okStart := ParseMinutes(ev.Start)
		end, okEnd := ParseMinutes(ev.End)
		if !okStart || !okEnd {
			violations = append(violations, Violation{
				Kind:   TimeWindowConflict,
				Day:    ev.Day,
				NodeID: ev.NodeID,
				Detail: fmt.Sprintf("unparseable event time %q-%q", ev.Start, ev.End),
			})
			continue
		}
		totalWait += ev.WaitMin

		node, known := nodesByID[ev.NodeID]
		if !known || len(node.Open) == 0 {
			continue
		}
		fits := false
		for _, w := range node.Open {
			ws, ok1 := ParseMinutes(w.Start)
			we, ok2 := ParseMinutes(w.End)
			if ok1 && ok2 && start >= ws && end <= we {
				fits = true
				if slack := we - end; minSlack < 0 || slack < minSlack {
					minSlack = slack
				}
				break
			}
		}
		if !fits {
			violations = append(violations, Violation{
				Kind:   TimeWindowConflict,
				Day:    ev.Day,
				NodeID: ev.NodeID,
				Detail: fmt.Sprintf("%s-%s outside open windows", ev.Start, ev.End),
			})
		}
	}

	// 2. Day boundary: no event may end after the configured day end.
	for _, ev := range st.Result.Timeline {
		boundary := boundaryForDay(st, ev.Day)
		dayEnd, ok := ParseMinutes(boundary.End)
		if !ok {
			continue
		}
		if end, okEnd := ParseMinutes(ev.End); okEnd && end > dayEnd {
			violations = append(violations, Violation{
				Kind:   DayBoundaryViolation,
				Day:    ev.Day,
				NodeID: ev.NodeID,
				Detail: fmt.Sprintf("ends %s after day end %s", ev.End, boundary.End),
			})
		}
	}

	// 3. Lunch anchor: skipped on an empty timeline so an itinerary that has
	// not been scheduled yet does not trigger premature repair loops.
	if len(st.Result.Timeline) > 0 && st.Trip.LunchBreak.Enabled {
		violations = append(violations, checkLunch(st)...)
	}

	// 4. Robust transit times must be available.
	if st.Compute.TimeMatrixRobust == nil {
		violations = append(violations, Violation{Kind: RobustTimeMissing})
	}

	// 5. Wait visibility: long queues need their own WAIT event.
	waitEvents := make(map[string]bool)
	for _, ev := range st.Result.Timeline {
		if ev.Type == state.EventWait {
			waitEvents[ev.NodeID] = true
		}
	}
	for _, ev := range st.Result.Timeline {
		if ev.Type == state.EventNode && ev.WaitMin > waitVisibilityThresholdMin && !waitEvents[ev.NodeID] {
			violations = append(violations, Violation{
				Kind:   WaitNotVisible,
				Day:    ev.Day,
				NodeID: ev.NodeID,
				Detail: fmt.Sprintf("wait of %d min has no WAIT event", ev.WaitMin),
			})
		}
	}

	// 6. Schedule sanity.
	if len(st.Compute.OptimizationResults) > 0 && len(st.Result.Timeline) == 0 {
		violations = append(violations, Violation{Kind: ScheduleMissing})
	}

	report := Report{
		Pass:       len(violations) == 0,
		Violations: violations,
		TotalWait:  totalWait,
	}
	if minSlack >= 0 {
		report.MinSlack = minSlack
	}
	return report
}

func checkLunch(st *state.AgentState) []Violation {
	var violations []Violation

	lunchByDay := make(map[int][]state.TimelineEvent)
	daysWithEvents := make(map[int]bool)
	for _, ev := range st.Result.Timeline {
		daysWithEvents[ev.Day] = true
		if ev.Type == state.EventLunch {
			lunchByDay[ev.Day] = append(lunchByDay[ev.Day], ev)
		}
	}

	winStart, ok1 := ParseMinutes(st.Trip.LunchBreak.Window[0])
	winEnd, ok2 := ParseMinutes(st.Trip.LunchBreak.Window[1])

	for day := 1; day <= st.Trip.Days; day++ {
		if !daysWithEvents[day] {
			continue
		}
		lunches := lunchByDay[day]
		switch {
		case len(lunches) == 0:
			violations = append(violations, Violation{Kind: LunchMissing, Day: day})
		case len(lunches) > 1:
			violations = append(violations, Violation{Kind: LunchMultiple, Day: day})
		default:
			if !ok1 || !ok2 {
				continue
			}
			start, ok := ParseMinutes(lunches[0].Start)
			if !ok || start < winStart || start > winEnd {
				violations = append(violations, Violation{
					Kind:   LunchWindowViolation,
					Day:    day,
					Detail: fmt.Sprintf("lunch at %s outside %s-%s", lunches[0].Start, st.Trip.LunchBreak.Window[0], st.Trip.LunchBreak.Window[1]),
				})
			}
		}
	}
	return violations
}

func boundaryForDay(st *state.AgentState, day int) state.DayBoundary {
	idx := day - 1
	if idx >= 0 && idx < len(st.Trip.DayBoundaries) {
		return st.Trip.DayBoundaries[idx]
	}
	return state.DayBoundary{Start: state.DefaultDayStart, End: state.DefaultDayEnd}
}

// ParseMinutes converts an HH:MM clock string to minutes since midnight.
func ParseMinutes(hhmm string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// FormatMinutes renders minutes since midnight as HH:MM.
func FormatMinutes(min int) string {
	if min < 0 {
		min = 0
	}
	return fmt.Sprintf("%02d:%02d", (min/60)%24, min%60)
}
