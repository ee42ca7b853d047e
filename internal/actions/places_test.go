package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

func TestResolveSingleAlias(t *testing.T) {
	out, err := ResolveEntities{}.Execute(context.Background(), map[string]any{
		"query": "删除清水寺",
	}, &state.AgentState{})
	require.NoError(t, err)

	nodes := out["nodes"].([]state.Node)
	require.Len(t, nodes, 1)
	assert.Equal(t, "poi_kiyomizu", nodes[0].ID)
	assert.NotContains(t, out, "error")
}

func TestResolveCityPullsAllEntries(t *testing.T) {
	out, err := ResolveEntities{}.Execute(context.Background(), map[string]any{
		"query": "规划5天日本游，包含东京、京都、大阪",
	}, &state.AgentState{})
	require.NoError(t, err)

	nodes := out["nodes"].([]state.Node)
	cities := make(map[string]bool)
	for _, n := range nodes {
		for _, tag := range n.Tags {
			cities[tag] = true
		}
	}
	assert.True(t, cities["tokyo"])
	assert.True(t, cities["kyoto"])
	assert.True(t, cities["osaka"])
	assert.GreaterOrEqual(t, len(nodes), 8)
}

func TestResolveHonorsLimit(t *testing.T) {
	out, err := ResolveEntities{}.Execute(context.Background(), map[string]any{
		"query": "东京和京都",
		"limit": 2,
	}, &state.AgentState{})
	require.NoError(t, err)
	assert.Len(t, out["nodes"].([]state.Node), 2)
}

func TestResolveEmptyQueryReportsInvalid(t *testing.T) {
	for _, query := range []string{"", "  ", "unknown", "UNKNOWN"} {
		out, err := ResolveEntities{}.Execute(context.Background(), map[string]any{
			"query": query,
		}, &state.AgentState{})
		require.NoError(t, err)
		assert.Empty(t, out["nodes"], "query %q", query)
		assert.Contains(t, out["error"], "Invalid query", "query %q", query)
	}
}

func TestResolveUnknownDestination(t *testing.T) {
	out, err := ResolveEntities{}.Execute(context.Background(), map[string]any{
		"query": "帮我规划一次火星十日游",
	}, &state.AgentState{})
	require.NoError(t, err)
	assert.Empty(t, out["nodes"])
	assert.Contains(t, out["error"], "unknown destination")
}

func TestGetPOIFactsByID(t *testing.T) {
	out, err := GetPOIFacts{}.Execute(context.Background(), map[string]any{
		"poi_ids": []string{"poi_kiyomizu", "poi_missing"},
	}, &state.AgentState{})
	require.NoError(t, err)

	facts := out["facts"].(map[string]map[string]any)
	require.Contains(t, facts, "poi_kiyomizu")
	assert.Equal(t, "06:00-18:00", facts["poi_kiyomizu"]["opening_hours"])
	assert.NotContains(t, facts, "poi_missing")
}

func TestGetPOIFactsFallsBackToDraftNodes(t *testing.T) {
	st := &state.AgentState{}
	st.Draft.Nodes = []state.Node{{ID: "poi_sensoji"}}

	out, err := GetPOIFacts{}.Execute(context.Background(), map[string]any{}, st)
	require.NoError(t, err)

	facts := out["facts"].(map[string]map[string]any)
	assert.Contains(t, facts, "poi_sensoji")
}

func TestLookupPOIsDeduplicates(t *testing.T) {
	// "京都" as city plus "清水寺" as alias both match the same entry.
	nodes := LookupPOIs("京都的清水寺", 20)
	seen := make(map[string]int)
	for _, n := range nodes {
		seen[n.ID]++
	}
	assert.Equal(t, 1, seen["poi_kiyomizu"])
}

func TestFactsForUnknownIsNil(t *testing.T) {
	assert.Nil(t, FactsFor("poi_missing"))
}

func TestCatalogDocumentsCoverEveryPOI(t *testing.T) {
	docs := CatalogDocuments()
	assert.Len(t, docs, len(builtinCatalog))
	assert.Contains(t, docs["poi_kiyomizu"], "清水寺")
	assert.Contains(t, docs["poi_kiyomizu"], "营业时间")
}
