// Package state holds the per-request working memory of the agent core and
// the copy-on-write store that owns it.
package state

import "time"

// Status enumerates the lifecycle states of a request result.
type Status string

const (
	StatusDraft        Status = "DRAFT"
	StatusReady        Status = "READY"
	StatusNeedMoreInfo Status = "NEED_MORE_INFO"
	StatusNeedConsent  Status = "NEED_CONSENT"
	StatusFailed       Status = "FAILED"
	StatusTimeout      Status = "TIMEOUT"
)

// Terminal reports whether no further mutation of the state is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusReady, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// Pacing controls how densely a day may be packed.
type Pacing string

const (
	PacingRelaxed Pacing = "relaxed"
	PacingNormal  Pacing = "normal"
	PacingTight   Pacing = "tight"
)

// DayBoundary is the permitted activity window of one trip day, HH:MM.
type DayBoundary struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// LunchBreak configures the lunch anchor constraint.
type LunchBreak struct {
	Enabled     bool      `json:"enabled"`
	DurationMin int       `json:"duration_min"`
	Window      [2]string `json:"window"`
}

// Trip captures the trip-level planning parameters.
type Trip struct {
	TripID        string        `json:"trip_id,omitempty"`
	Days          int           `json:"days"`
	DayBoundaries []DayBoundary `json:"day_boundaries"`
	LunchBreak    LunchBreak    `json:"lunch_break"`
	Pacing        Pacing        `json:"pacing"`
}

// Window is an open interval of a POI, HH:MM.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Node is a resolved POI entity.
type Node struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Lat        float64        `json:"lat,omitempty"`
	Lng        float64        `json:"lng,omitempty"`
	Open       []Window       `json:"open,omitempty"`
	ServiceMin int            `json:"service_min,omitempty"`
	WaitMin    int            `json:"wait_min,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Edit records a user-initiated draft modification.
type Edit struct {
	Op      string    `json:"op"`
	NodeID  string    `json:"node_id,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Draft is the itinerary under construction.
type Draft struct {
	Nodes     []Node `json:"nodes"`
	HardNodes []Node `json:"hard_nodes"`
	SoftNodes []Node `json:"soft_nodes"`
	Edits     []Edit `json:"edits"`
}

// POIFact is one semantic fact about a resolved POI.
type POIFact struct {
	POIID string         `json:"poi_id"`
	Facts map[string]any `json:"facts"`
}

// SemanticFacts groups long-lived knowledge about the draft's POIs.
type SemanticFacts struct {
	POIs  []POIFact      `json:"pois"`
	Rules map[string]any `json:"rules,omitempty"`
}

// Memory is the agent's working knowledge for this request.
type Memory struct {
	SemanticFacts    SemanticFacts  `json:"semantic_facts"`
	EpisodicSnippets []string       `json:"episodic_snippets"`
	UserProfile      map[string]any `json:"user_profile,omitempty"`
}

// OptimizationResult is one solver outcome for a day.
type OptimizationResult struct {
	Day       int            `json:"day"`
	Objective float64        `json:"objective,omitempty"`
	Order     []string       `json:"order,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Compute holds derived artifacts produced by transport and itinerary actions.
type Compute struct {
	Clusters            [][]string           `json:"clusters,omitempty"`
	TimeMatrixAPI       [][]int              `json:"time_matrix_api,omitempty"`
	TimeMatrixRobust    [][]int              `json:"time_matrix_robust,omitempty"`
	OptimizationResults []OptimizationResult `json:"optimization_results"`
	Robustness          map[string]any       `json:"robustness,omitempty"`
}

// Observation records one executed action inside the ReAct loop.
type Observation struct {
	Step      int       `json:"step"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
	CacheHit  bool      `json:"cache_hit,omitempty"`
}

// DecisionEntry explains why an action was chosen in one iteration.
type DecisionEntry struct {
	Step         int            `json:"step"`
	ChosenAction string         `json:"chosen_action"`
	ReasonCode   string         `json:"reason_code"`
	Facts        map[string]any `json:"facts,omitempty"`
	PolicyID     string         `json:"policy_id,omitempty"`
}

// React tracks the loop bookkeeping.
type React struct {
	Step         int             `json:"step"`
	MaxSteps     int             `json:"max_steps"`
	Observations []Observation   `json:"observations"`
	DecisionLog  []DecisionEntry `json:"decision_log"`
}

// EventType labels timeline events.
type EventType string

const (
	EventNode    EventType = "NODE"
	EventLunch   EventType = "LUNCH"
	EventWait    EventType = "WAIT"
	EventTransit EventType = "TRANSIT"
)

// TimelineEvent is one scheduled slot of the final itinerary.
type TimelineEvent struct {
	Type    EventType `json:"type"`
	NodeID  string    `json:"node_id,omitempty"`
	Name    string    `json:"name,omitempty"`
	Day     int       `json:"day"`
	Start   string    `json:"start"`
	End     string    `json:"end"`
	WaitMin int       `json:"wait_min,omitempty"`
}

// DroppedItem records a node the optimizer could not place.
type DroppedItem struct {
	NodeID string `json:"node_id"`
	Hard   bool   `json:"hard"`
	Reason string `json:"reason,omitempty"`
}

// Result is the outcome of a request.
type Result struct {
	Status       Status          `json:"status"`
	Timeline     []TimelineEvent `json:"timeline"`
	DroppedItems []DroppedItem   `json:"dropped_items"`
	Explanations []string        `json:"explanations"`
}

// Observability collects per-request runtime counters.
type Observability struct {
	RouterMS     int64   `json:"router_ms"`
	LatencyMS    int64   `json:"latency_ms"`
	ToolCalls    int     `json:"tool_calls"`
	BrowserSteps int     `json:"browser_steps"`
	TokensEst    int     `json:"tokens_est"`
	CostEstUSD   float64 `json:"cost_est_usd"`
	FallbackUsed bool    `json:"fallback_used"`
}

// AgentState is the per-request working memory. All mutation goes through the
// Store and returns a fresh value; callers must use the returned handle.
type AgentState struct {
	RequestID string        `json:"request_id"`
	UserInput string        `json:"user_input"`
	Trip      Trip          `json:"trip"`
	Draft     Draft         `json:"draft"`
	Memory    Memory        `json:"memory"`
	Compute   Compute       `json:"compute"`
	React     React         `json:"react"`
	Result    Result        `json:"result"`
	Obs       Observability `json:"observability"`
}

// Clone returns a deep copy of the state.
func (s *AgentState) Clone() *AgentState {
	if s == nil {
		return nil
	}
	out := *s

	out.Trip.DayBoundaries = append([]DayBoundary(nil), s.Trip.DayBoundaries...)

	out.Draft.Nodes = cloneNodes(s.Draft.Nodes)
	out.Draft.HardNodes = cloneNodes(s.Draft.HardNodes)
	out.Draft.SoftNodes = cloneNodes(s.Draft.SoftNodes)
	out.Draft.Edits = append([]Edit(nil), s.Draft.Edits...)

	out.Memory.SemanticFacts.POIs = clonePOIFacts(s.Memory.SemanticFacts.POIs)
	out.Memory.SemanticFacts.Rules = cloneAnyMap(s.Memory.SemanticFacts.Rules)
	out.Memory.EpisodicSnippets = append([]string(nil), s.Memory.EpisodicSnippets...)
	out.Memory.UserProfile = cloneAnyMap(s.Memory.UserProfile)

	out.Compute.Clusters = cloneStringMatrix(s.Compute.Clusters)
	out.Compute.TimeMatrixAPI = cloneIntMatrix(s.Compute.TimeMatrixAPI)
	out.Compute.TimeMatrixRobust = cloneIntMatrix(s.Compute.TimeMatrixRobust)
	out.Compute.OptimizationResults = append([]OptimizationResult(nil), s.Compute.OptimizationResults...)
	out.Compute.Robustness = cloneAnyMap(s.Compute.Robustness)

	out.React.Observations = append([]Observation(nil), s.React.Observations...)
	out.React.DecisionLog = append([]DecisionEntry(nil), s.React.DecisionLog...)

	out.Result.Timeline = append([]TimelineEvent(nil), s.Result.Timeline...)
	out.Result.DroppedItems = append([]DroppedItem(nil), s.Result.DroppedItems...)
	out.Result.Explanations = append([]string(nil), s.Result.Explanations...)

	return &out
}

func cloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
		out[i].Open = append([]Window(nil), n.Open...)
		out[i].Tags = append([]string(nil), n.Tags...)
		out[i].Extra = cloneAnyMap(n.Extra)
	}
	return out
}

func clonePOIFacts(facts []POIFact) []POIFact {
	if facts == nil {
		return nil
	}
	out := make([]POIFact, len(facts))
	for i, f := range facts {
		out[i] = f
		out[i].Facts = cloneAnyMap(f.Facts)
	}
	return out
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneIntMatrix(m [][]int) [][]int {
	if m == nil {
		return nil
	}
	out := make([][]int, len(m))
	for i, row := range m {
		out[i] = append([]int(nil), row...)
	}
	return out
}

func cloneStringMatrix(m [][]string) [][]string {
	if m == nil {
		return nil
	}
	out := make([][]string, len(m))
	for i, row := range m {
		out[i] = append([]string(nil), row...)
	}
	return out
}
