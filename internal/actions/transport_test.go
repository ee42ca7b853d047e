package actions

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

func kyotoNodes() []state.Node {
	return []state.Node{
		{ID: "poi_kiyomizu", Lat: 34.9949, Lng: 135.7850},
		{ID: "poi_kinkaku", Lat: 35.0394, Lng: 135.7292},
		{ID: "poi_fushimi", Lat: 34.9671, Lng: 135.7727},
	}
}

func buildMatrices(t *testing.T, nodes []state.Node) (api, robust [][]int) {
	t.Helper()
	out, err := BuildTimeMatrix{}.Execute(context.Background(), map[string]any{
		"nodes": nodes,
	}, &state.AgentState{})
	require.NoError(t, err)
	return out["time_matrix_api"].([][]int), out["time_matrix_robust"].([][]int)
}

func TestMatrixShapeAndDiagonal(t *testing.T) {
	nodes := kyotoNodes()
	api, robust := buildMatrices(t, nodes)

	require.Len(t, api, len(nodes))
	require.Len(t, robust, len(nodes))
	for i := range nodes {
		require.Len(t, api[i], len(nodes))
		assert.Zero(t, api[i][i])
		assert.Zero(t, robust[i][i])
	}
}

func TestRobustPadsAPIEstimate(t *testing.T) {
	nodes := kyotoNodes()
	api, robust := buildMatrices(t, nodes)

	for i := range nodes {
		for j := range nodes {
			if i == j {
				continue
			}
			want := int(math.Ceil(float64(api[i][j])*1.2)) + 5
			assert.Equal(t, want, robust[i][j], "pair %d,%d", i, j)
			assert.Greater(t, robust[i][j], api[i][j])
		}
	}
}

func TestMatrixIsSymmetric(t *testing.T) {
	nodes := kyotoNodes()
	api, _ := buildMatrices(t, nodes)
	for i := range nodes {
		for j := range nodes {
			assert.Equal(t, api[i][j], api[j][i])
		}
	}
}

func TestShortHopsHitTheFloor(t *testing.T) {
	// Two points ~400m apart still cost the minimum transit time.
	nodes := []state.Node{
		{ID: "a", Lat: 35.0000, Lng: 135.7800},
		{ID: "b", Lat: 35.0030, Lng: 135.7820},
	}
	api, _ := buildMatrices(t, nodes)
	assert.Equal(t, 5, api[0][1])
}

func TestInterCityTravelIsLong(t *testing.T) {
	nodes := []state.Node{
		{ID: "poi_sensoji", Lat: 35.7148, Lng: 139.7967},
		{ID: "poi_kiyomizu", Lat: 34.9949, Lng: 135.7850},
	}
	api, _ := buildMatrices(t, nodes)
	// Tokyo to Kyoto is ~360 km; at urban transit speed this cannot fit in
	// a single day window.
	assert.Greater(t, api[0][1], 12*60)
}

func TestNodesFallBackToDraft(t *testing.T) {
	st := &state.AgentState{}
	st.Draft.Nodes = kyotoNodes()

	out, err := BuildTimeMatrix{}.Execute(context.Background(), map[string]any{}, st)
	require.NoError(t, err)
	assert.Len(t, out["time_matrix_api"].([][]int), 3)
}
