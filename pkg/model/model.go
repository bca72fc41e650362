package model

// Node represents a state in the behavior transition graph, typically a page
// or event name. Identity is the ID; Label and Value may change between
// fetches without changing identity.
type Node struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Value float64 `json:"value"` // relative size/weight, >= 0
}

// Edge represents a directed, weighted transition between two nodes.
// Multiple edges between the same ordered pair are not deduplicated at this
// layer. Self-loops are invalid for flow rendering and are discarded there.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Value  float64 `json:"value"` // transition weight/count, >= 0
}

// TransitionGraph is the raw payload for one (segment, date range, limit,
// min-edge-count) query. It may contain cycles, dangling edge endpoints not
// present in Nodes, and more edges than any rendering budget.
type TransitionGraph struct {
	Nodes []Node `json:"nodes"`
	Links []Edge `json:"links"`
}

// FlowGraph is an acyclic, budget-bounded subgraph derived from a
// TransitionGraph, suitable for layered flow-diagram layout. It is recomputed
// fresh on every data change and never mutated after creation.
//
// Invariants: every edge endpoint appears in Nodes, the edge set is acyclic,
// contains no self-loops, and every node has at least one incident edge.
type FlowGraph struct {
	Nodes []Node `json:"nodes"`
	Links []Edge `json:"links"`
}

// IsEmpty reports whether the graph has no renderable content.
func (g TransitionGraph) IsEmpty() bool {
	return len(g.Nodes) == 0 && len(g.Links) == 0
}
