package sanitize

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/mhkang/flowscope/pkg/model"
)

// Verify cross-checks a FlowGraph against its invariants: acyclic edge set,
// no self-loops, and node/endpoint consistency in both directions. It is an
// independent pass over the output, not part of the sanitize algorithm, and
// is used by tests and the panel debug endpoint.
func Verify(g model.FlowGraph) error {
	ids := make(map[string]int64, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("duplicate node %q", n.ID)
		}
		ids[n.ID] = int64(len(ids))
	}

	incident := make(map[string]bool, len(ids))
	dg := simple.NewDirectedGraph()
	for _, gid := range ids {
		dg.AddNode(simple.Node(gid))
	}
	for _, e := range g.Links {
		if e.Source == e.Target {
			return fmt.Errorf("self-loop on %q", e.Source)
		}
		from, ok := ids[e.Source]
		if !ok {
			return fmt.Errorf("edge source %q missing from nodes", e.Source)
		}
		to, ok := ids[e.Target]
		if !ok {
			return fmt.Errorf("edge target %q missing from nodes", e.Target)
		}
		incident[e.Source] = true
		incident[e.Target] = true
		if !dg.HasEdgeFromTo(from, to) {
			dg.SetEdge(dg.NewEdge(dg.Node(from), dg.Node(to)))
		}
	}

	for _, n := range g.Nodes {
		if !incident[n.ID] {
			return fmt.Errorf("node %q has no incident edge", n.ID)
		}
	}

	// Any strongly connected component with more than one node is a cycle.
	for _, scc := range topo.TarjanSCC(dg) {
		if len(scc) > 1 {
			names := make([]string, 0, len(scc))
			for _, n := range scc {
				for id, gid := range ids {
					if gid == n.ID() {
						names = append(names, id)
					}
				}
			}
			sort.Strings(names)
			return fmt.Errorf("cycle among %v", names)
		}
	}
	return nil
}
