package sanitize

import (
	"sort"

	"github.com/mhkang/flowscope/pkg/model"
)

// DefaultBudget is the edge budget used when the caller passes a
// non-positive value.
const DefaultBudget = 200

// Sanitize reduces a raw, possibly-cyclic transition graph into an acyclic,
// budget-bounded FlowGraph suitable for layered flow layout.
//
// The algorithm is deterministic and greedy:
//  1. Self-loops and edges with an empty endpoint are discarded.
//  2. Remaining edges are stable-sorted by value descending; ties keep their
//     input order. The tie-break is implementation-defined, not an accuracy
//     guarantee.
//  3. The sorted list is truncated to the budget before any cycle checking,
//     so cycle avoidance only ever discards within the bounded candidate
//     set. Edges beyond the budget are never considered.
//  4. A candidate u->v is rejected when v already reaches u through accepted
//     edges; otherwise it is accepted and recorded in the adjacency.
//  5. Output nodes are the input nodes with at least one accepted incident
//     edge, in input order. Accepted endpoints missing from the input node
//     list get a synthesized node so every edge endpoint is present.
//
// The function always terminates and the empty input produces the empty
// graph.
func Sanitize(nodes []model.Node, links []model.Edge, budget int) model.FlowGraph {
	if budget <= 0 {
		budget = DefaultBudget
	}

	candidates := make([]model.Edge, 0, len(links))
	for _, e := range links {
		if e.Source == "" || e.Target == "" || e.Source == e.Target {
			continue
		}
		candidates = append(candidates, e)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Value > candidates[j].Value
	})

	if len(candidates) > budget {
		candidates = candidates[:budget]
	}

	adjacency := make(map[string][]string)
	accepted := make([]model.Edge, 0, len(candidates))
	for _, e := range candidates {
		if reaches(adjacency, e.Target, e.Source) {
			continue // accepting it would close a cycle
		}
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
		accepted = append(accepted, e)
	}

	used := make(map[string]bool, len(accepted)*2)
	for _, e := range accepted {
		used[e.Source] = true
		used[e.Target] = true
	}

	out := make([]model.Node, 0, len(used))
	seen := make(map[string]bool, len(used))
	for _, n := range nodes {
		if used[n.ID] && !seen[n.ID] {
			out = append(out, n)
			seen[n.ID] = true
		}
	}
	// Endpoints the payload never declared as nodes are expected noise in
	// transition data; synthesize them instead of dropping the edge.
	for _, e := range accepted {
		for _, id := range []string{e.Source, e.Target} {
			if !seen[id] {
				out = append(out, model.Node{ID: id, Label: id})
				seen[id] = true
			}
		}
	}

	return model.FlowGraph{Nodes: out, Links: accepted}
}

// reaches reports whether there is a directed path from start to goal over
// the accepted adjacency, using breadth-first search. The adjacency is built
// fresh per Sanitize call; there is no persistent graph object.
func reaches(adjacency map[string][]string, start, goal string) bool {
	if start == goal {
		return true
	}
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[cur] {
			if next == goal {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}
