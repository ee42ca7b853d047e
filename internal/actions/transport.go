package actions

import (
	"context"
	"math"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

// Travel-time model parameters. The API matrix assumes urban transit at an
// effective door-to-door speed; the robust matrix pads it for transfers and
// waiting.
const (
	transitSpeedKmh   = 25.0
	minTransitMin     = 5
	robustFactor      = 1.2
	robustPaddingMins = 5
	earthRadiusKm     = 6371.0
)

// BuildTimeMatrix computes pairwise travel times between draft nodes.
type BuildTimeMatrix struct{}

func (BuildTimeMatrix) Definition() ports.ActionDefinition {
	return ports.ActionDefinition{
		Name:        "transport.build_time_matrix",
		Description: "Build pairwise travel-time matrices (API estimate and robust) for the draft nodes.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"nodes":  map[string]any{"type": "array"},
				"robust": map[string]any{"type": "boolean"},
			},
		},
	}
}

func (BuildTimeMatrix) Metadata() ports.ActionMetadata {
	return ports.ActionMetadata{
		Kind:          "transport",
		Cost:          ports.CostMed,
		SideEffect:    ports.SideEffectCallsAPI,
		Preconditions: []string{"nodes_resolved"},
		WritePaths:    []string{"compute.time_matrix_api", "compute.time_matrix_robust"},
		Idempotent:    true,
		Cacheable:     true,
	}
}

func (BuildTimeMatrix) Execute(ctx context.Context, input map[string]any, st *state.AgentState) (map[string]any, error) {
	nodes := nodesInput(input["nodes"])
	if len(nodes) == 0 {
		nodes = st.Draft.Nodes
	}

	n := len(nodes)
	api := make([][]int, n)
	robust := make([][]int, n)
	for i := range nodes {
		api[i] = make([]int, n)
		robust[i] = make([]int, n)
		for j := range nodes {
			if i == j {
				continue
			}
			minutes := transitMinutes(nodes[i], nodes[j])
			api[i][j] = minutes
			robust[i][j] = int(math.Ceil(float64(minutes)*robustFactor)) + robustPaddingMins
		}
	}

	return map[string]any{
		"time_matrix_api":    api,
		"time_matrix_robust": robust,
	}, nil
}

func transitMinutes(a, b state.Node) int {
	km := haversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
	minutes := int(math.Ceil(km / transitSpeedKmh * 60))
	if minutes < minTransitMin {
		return minTransitMin
	}
	return minutes
}

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func nodesInput(v any) []state.Node {
	if typed, ok := v.([]state.Node); ok {
		return typed
	}
	return nil
}
