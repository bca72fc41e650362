package model

// Wire types for the upstream customer-flow aggregation service. Field names
// follow the service's JSON contract; dates travel as "YYYY-MM-DD" strings.

// SegmentOption is one selectable cohort preset.
type SegmentOption struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Default     bool   `json:"default,omitempty"`
}

// FlowRequest asks the upstream service for one transition graph.
type FlowRequest struct {
	Segment      string `json:"segment"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	Limit        int    `json:"limit"`
	MinEdgeCount int    `json:"min_edge_count"`
}

// SegmentInfo echoes the resolved segment metadata in a response.
type SegmentInfo struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Filters echoes the effective filters after upstream clamping.
type Filters struct {
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Limit        int    `json:"limit"`
	MinEdgeCount int    `json:"min_edge_count"`
}

// Summary carries aggregate counts for the returned graph.
type Summary struct {
	TotalTransitions float64 `json:"total_transitions"`
	EdgeCount        int     `json:"edge_count"`
	NodeCount        int     `json:"node_count"`
}

// FlowResponse is the upstream service's graph payload envelope.
type FlowResponse struct {
	Segment    SegmentInfo       `json:"segment"`
	Filters    Filters           `json:"filters"`
	Nodes      []Node            `json:"nodes"`
	Links      []Edge            `json:"links"`
	Summary    Summary           `json:"summary"`
	DataSource map[string]string `json:"data_source,omitempty"`
}

// Graph extracts the transition graph from a response. Nil node/link slices
// from a malformed payload yield an empty graph rather than an error.
func (r *FlowResponse) Graph() TransitionGraph {
	g := TransitionGraph{Nodes: r.Nodes, Links: r.Links}
	if g.Nodes == nil {
		g.Nodes = []Node{}
	}
	if g.Links == nil {
		g.Links = []Edge{}
	}
	return g
}
