// Package deps decides which candidate actions may run inside one parallel
// group without read/write conflicts on the agent state.
package deps

import (
	"strings"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
)

// Profile is the conflict-analysis view of one candidate action.
type Profile struct {
	Name string
	// Reads are dotted state paths the action must observe before running.
	Reads []string
	// Writes are dotted state paths the action mutates through its merge.
	Writes []string
}

// namePattern maps action-name prefixes to their inferred state footprint.
// Declared metadata wins; these cover actions that declare nothing.
type namePattern struct {
	prefix string
	reads  []string
	writes []string
}

var patterns = []namePattern{
	{
		prefix: "places.resolve_entities",
		writes: []string{"draft.nodes"},
	},
	{
		prefix: "places.get_poi_facts",
		reads:  []string{"draft.nodes"},
		writes: []string{"memory.semantic_facts.pois"},
	},
	{
		prefix: "transport.",
		reads:  []string{"draft.nodes"},
		writes: []string{"compute.time_matrix_api", "compute.time_matrix_robust"},
	},
	{
		prefix: "itinerary.optimize_",
		reads:  []string{"draft.nodes", "compute.time_matrix_robust"},
		writes: []string{"compute.optimization_results", "result.timeline"},
	},
	{
		prefix: "itinerary.repair_",
		reads:  []string{"result.timeline"},
		writes: []string{"compute.optimization_results", "result.timeline"},
	},
	{
		prefix: "policy.validate_feasibility",
		reads:  []string{"result.timeline"},
		writes: []string{"result.status"},
	},
	{
		prefix: "webbrowse.",
		writes: []string{"memory.episodic_snippets", "observability.browser_steps"},
	},
}

// ProfileFor builds the conflict profile of an action from its declared
// metadata, falling back to name-pattern inference.
func ProfileFor(name string, meta ports.ActionMetadata) Profile {
	p := Profile{Name: name}
	if len(meta.WritePaths) > 0 {
		p.Writes = append(p.Writes, meta.WritePaths...)
	}
	for _, token := range meta.Preconditions {
		if path := preconditionPath(token); path != "" {
			p.Reads = append(p.Reads, path)
		}
	}
	if len(p.Writes) == 0 {
		for _, pat := range patterns {
			if strings.HasPrefix(name, pat.prefix) {
				p.Reads = append(p.Reads, pat.reads...)
				p.Writes = append(p.Writes, pat.writes...)
				break
			}
		}
	}
	return p
}

// preconditionPath translates the built-in capability tokens into the state
// path they observe. Unknown tokens contribute no read edge.
func preconditionPath(token string) string {
	switch token {
	case "nodes_resolved":
		return "draft.nodes"
	case "facts_loaded":
		return "memory.semantic_facts.pois"
	case "matrix_built":
		return "compute.time_matrix_robust"
	case "timeline_present":
		return "result.timeline"
	}
	return ""
}

// FindParallelizableGroups partitions candidates into groups whose members
// are pairwise conflict-free. Grouping is greedy in input order; the caller
// executes the first group this iteration.
func FindParallelizableGroups(candidates []Profile) [][]Profile {
	var groups [][]Profile
	for _, cand := range candidates {
		placed := false
		for i := range groups {
			if fitsGroup(groups[i], cand) {
				groups[i] = append(groups[i], cand)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []Profile{cand})
		}
	}
	return groups
}

func fitsGroup(group []Profile, cand Profile) bool {
	for _, member := range group {
		if conflicts(member, cand) {
			return false
		}
	}
	return true
}

// conflicts reports whether a and b cannot share a parallel group: a write of
// one overlaps a read of the other, or their writes overlap.
func conflicts(a, b Profile) bool {
	if anyOverlap(a.Writes, b.Reads) || anyOverlap(b.Writes, a.Reads) {
		return true
	}
	return anyOverlap(a.Writes, b.Writes)
}

func anyOverlap(xs, ys []string) bool {
	for _, x := range xs {
		for _, y := range ys {
			if PathsOverlap(x, y) {
				return true
			}
		}
	}
	return false
}

// PathsOverlap implements prefix containment on dotted paths: "draft"
// overlaps "draft.nodes" but "draft.nodes" does not overlap "draft.edits".
func PathsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".")
}
