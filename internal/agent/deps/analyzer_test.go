package deps

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
)

func TestPathsOverlap(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"draft.nodes", "draft.nodes", true},
		{"draft", "draft.nodes", true},
		{"draft.nodes", "draft", true},
		{"draft.nodes", "draft.edits", false},
		{"draft.nodes", "draft.nodes2", false},
		{"result.timeline", "compute.time_matrix_robust", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PathsOverlap(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
	}
}

func TestProfileForDeclaredMetadataWins(t *testing.T) {
	p := ProfileFor("transport.build_time_matrix", ports.ActionMetadata{
		Preconditions: []string{"nodes_resolved", "unknown_token"},
		WritePaths:    []string{"compute.time_matrix_api"},
	})

	assert.Equal(t, []string{"draft.nodes"}, p.Reads)
	assert.Equal(t, []string{"compute.time_matrix_api"}, p.Writes)
}

func TestProfileForFallsBackToNamePatterns(t *testing.T) {
	p := ProfileFor("itinerary.optimize_day_vrptw", ports.ActionMetadata{})

	assert.Equal(t, []string{"draft.nodes", "compute.time_matrix_robust"}, p.Reads)
	assert.Equal(t, []string{"compute.optimization_results", "result.timeline"}, p.Writes)
}

func TestProfileForUnknownActionHasNoFootprint(t *testing.T) {
	p := ProfileFor("weather.forecast", ports.ActionMetadata{})
	assert.Empty(t, p.Reads)
	assert.Empty(t, p.Writes)
}

func TestWriteWriteConflictSplitsGroups(t *testing.T) {
	optimize := ProfileFor("itinerary.optimize_day_vrptw", ports.ActionMetadata{})
	repair := ProfileFor("itinerary.repair_cross_day", ports.ActionMetadata{})

	groups := FindParallelizableGroups([]Profile{optimize, repair})

	assert.Len(t, groups, 2)
	assert.Equal(t, "itinerary.optimize_day_vrptw", groups[0][0].Name)
	assert.Equal(t, "itinerary.repair_cross_day", groups[1][0].Name)
}

func TestReadWriteConflictSplitsGroups(t *testing.T) {
	resolve := ProfileFor("places.resolve_entities", ports.ActionMetadata{})
	facts := ProfileFor("places.get_poi_facts", ports.ActionMetadata{})

	groups := FindParallelizableGroups([]Profile{resolve, facts})
	assert.Len(t, groups, 2)
}

func TestIndependentActionsShareGroup(t *testing.T) {
	facts := ProfileFor("places.get_poi_facts", ports.ActionMetadata{})
	browse := ProfileFor("webbrowse.fetch", ports.ActionMetadata{})

	groups := FindParallelizableGroups([]Profile{facts, browse})

	assert.Len(t, groups, 1)
	assert.Len(t, groups[0], 2)
}

func TestGroupingIsGreedyInInputOrder(t *testing.T) {
	resolve := ProfileFor("places.resolve_entities", ports.ActionMetadata{})
	matrix := ProfileFor("transport.build_time_matrix", ports.ActionMetadata{})
	browse := ProfileFor("webbrowse.fetch", ports.ActionMetadata{})

	groups := FindParallelizableGroups([]Profile{resolve, matrix, browse})

	// matrix reads draft.nodes which resolve writes, so it opens group two;
	// browse conflicts with nothing and joins the first group.
	assert.Len(t, groups, 2)
	assert.Equal(t, []string{"places.resolve_entities", "webbrowse.fetch"}, names(groups[0]))
	assert.Equal(t, []string{"transport.build_time_matrix"}, names(groups[1]))
}

func TestEmptyCandidates(t *testing.T) {
	assert.Empty(t, FindParallelizableGroups(nil))
}

func names(group []Profile) []string {
	out := make([]string, len(group))
	for i, p := range group {
		out[i] = p.Name
	}
	return out
}
