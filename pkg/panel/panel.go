// Package panel orchestrates the visualization state: which segment and
// filters are active, the latest fetched graph, and its sanitized flow form.
// All mutation funnels through the orchestrator's mutex; rendering code only
// reads snapshots.
package panel

import (
	"context"
	"sync"
	"time"

	"github.com/mhkang/flowscope/pkg/logging"
	"github.com/mhkang/flowscope/pkg/model"
	"github.com/mhkang/flowscope/pkg/pubsub"
	"github.com/mhkang/flowscope/pkg/sanitize"
)

// View identifies which visualization is active.
type View string

const (
	ViewFlow    View = "flow"
	ViewSpatial View = "spatial"
)

// Fetcher is the upstream surface the orchestrator depends on.
type Fetcher interface {
	ListSegments(ctx context.Context) ([]model.SegmentOption, error)
	FetchFlow(ctx context.Context, request model.FlowRequest) (*model.FlowResponse, error)
}

// ViewState is the complete panel state.
type ViewState struct {
	Segment      string
	StartDate    string
	EndDate      string
	EdgeLimit    int
	MinEdgeCount int
	ActiveView   View
	Loading      bool
	Error        string
	Graph        *model.TransitionGraph
}

// Snapshot is the wire form of the state, without the raw graph.
type Snapshot struct {
	Segment      string `json:"segment"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Limit        int    `json:"limit"`
	MinEdgeCount int    `json:"min_edge_count"`
	View         View   `json:"view"`
	Loading      bool   `json:"loading"`
	Error        string `json:"error,omitempty"`
	NodeCount    int    `json:"node_count"`
	EdgeCount    int    `json:"edge_count"`
}

// Options configure a new orchestrator.
type Options struct {
	FlowBudget   int           // sanitizer edge budget (default sanitize.DefaultBudget)
	FetchTimeout time.Duration // per-fetch deadline (0 = none)
	EdgeLimit    int           // initial upstream edge limit
	MinEdgeCount int           // initial upstream noise filter
	Segment      string        // initial segment ("" = upstream default)
	ActiveView   View          // initial view (default ViewFlow)
	Publisher    pubsub.Publisher
	OnUpdate     func() // called after every state change, e.g. to arm the render scheduler
}

// Orchestrator drives fetches and owns the ViewState.
type Orchestrator struct {
	mu       sync.Mutex
	fetcher  Fetcher
	state    ViewState
	segments []model.SegmentOption
	flow     model.FlowGraph
	hasFlow  bool

	// token fences stale responses: only the response carrying the latest
	// issued token may be applied.
	token uint64

	budget       int
	fetchTimeout time.Duration
	publisher    pubsub.Publisher
	onUpdate     func()
	baseCtx      context.Context
}

// New creates an orchestrator; call Start before use.
func New(fetcher Fetcher, opts Options) *Orchestrator {
	if opts.FlowBudget <= 0 {
		opts.FlowBudget = sanitize.DefaultBudget
	}
	if opts.ActiveView == "" {
		opts.ActiveView = ViewFlow
	}
	return &Orchestrator{
		fetcher: fetcher,
		state: ViewState{
			Segment:      opts.Segment,
			EdgeLimit:    opts.EdgeLimit,
			MinEdgeCount: opts.MinEdgeCount,
			ActiveView:   opts.ActiveView,
		},
		budget:       opts.FlowBudget,
		fetchTimeout: opts.FetchTimeout,
		publisher:    opts.Publisher,
		onUpdate:     opts.OnUpdate,
		baseCtx:      context.Background(),
	}
}

// Start fetches the segment list once, picks the default (or first) segment
// unless one was configured, and triggers the initial graph fetch. ctx bounds
// the whole orchestrator lifetime.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	o.baseCtx = ctx
	o.mu.Unlock()

	listCtx := ctx
	if o.fetchTimeout > 0 {
		var cancel context.CancelFunc
		listCtx, cancel = context.WithTimeout(ctx, o.fetchTimeout)
		defer cancel()
	}

	segments, err := o.fetcher.ListSegments(listCtx)
	if err != nil {
		o.mu.Lock()
		o.state.Error = "failed to load segments: " + err.Error()
		o.mu.Unlock()
		o.notify()
		return err
	}

	o.mu.Lock()
	o.segments = segments
	if o.state.Segment == "" {
		for _, s := range segments {
			if s.Default {
				o.state.Segment = s.ID
				break
			}
		}
		if o.state.Segment == "" && len(segments) > 0 {
			o.state.Segment = segments[0].ID
		}
	}
	o.mu.Unlock()

	o.triggerFetch()
	return nil
}

// SelectSegment switches the active segment and refetches.
func (o *Orchestrator) SelectSegment(segment string) {
	o.mu.Lock()
	o.state.Segment = segment
	o.mu.Unlock()
	o.triggerFetch()
}

// SetDateRange replaces both date bounds and refetches. Empty strings fall
// back to the upstream's default lookback window.
func (o *Orchestrator) SetDateRange(startDate, endDate string) {
	o.mu.Lock()
	o.state.StartDate = startDate
	o.state.EndDate = endDate
	o.mu.Unlock()
	o.triggerFetch()
}

// SetEdgeLimit adjusts the upstream edge budget hint and refetches.
func (o *Orchestrator) SetEdgeLimit(limit int) {
	o.mu.Lock()
	o.state.EdgeLimit = limit
	o.mu.Unlock()
	o.triggerFetch()
}

// SetMinEdgeCount adjusts the upstream noise filter and refetches.
func (o *Orchestrator) SetMinEdgeCount(count int) {
	o.mu.Lock()
	o.state.MinEdgeCount = count
	o.mu.Unlock()
	o.triggerFetch()
}

// Refresh refetches with the current filters.
func (o *Orchestrator) Refresh() {
	o.triggerFetch()
}

// SetActiveView switches the visualization. This is a pure state change:
// no fetch is issued and the graph is untouched.
func (o *Orchestrator) SetActiveView(view View) {
	o.mu.Lock()
	o.state.ActiveView = view
	o.mu.Unlock()
	o.notify()
}

// State returns a copy of the current state. The Graph pointer is shared;
// callers must treat it as read-only.
func (o *Orchestrator) State() ViewState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Segments returns the segment options learned at Start.
func (o *Orchestrator) Segments() []model.SegmentOption {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.SegmentOption, len(o.segments))
	copy(out, o.segments)
	return out
}

// FlowGraph returns the sanitized acyclic graph of the latest applied fetch
// and whether any fetch has been applied yet.
func (o *Orchestrator) FlowGraph() (model.FlowGraph, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flow, o.hasFlow
}

// triggerFetch issues a fenced fetch for the current filters. In-flight
// fetches are not cancelled; their responses are simply out-fenced.
func (o *Orchestrator) triggerFetch() {
	o.mu.Lock()
	o.token++
	token := o.token
	o.state.Loading = true
	request := model.FlowRequest{
		Segment:      o.state.Segment,
		StartDate:    o.state.StartDate,
		EndDate:      o.state.EndDate,
		Limit:        o.state.EdgeLimit,
		MinEdgeCount: o.state.MinEdgeCount,
	}
	ctx := o.baseCtx
	o.mu.Unlock()

	o.notify()

	go o.fetch(ctx, token, request)
}

func (o *Orchestrator) fetch(ctx context.Context, token uint64, request model.FlowRequest) {
	if o.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.fetchTimeout)
		defer cancel()
	}

	response, err := o.fetcher.FetchFlow(ctx, request)

	o.mu.Lock()
	if token != o.token {
		o.mu.Unlock()
		logging.Debug("dropped stale fetch response", "segment", request.Segment)
		return
	}
	o.state.Loading = false
	if err != nil {
		// Keep the previous graph; stale data beats a blank panel.
		o.state.Error = "failed to fetch flow data: " + err.Error()
		o.mu.Unlock()
		logging.Error("flow fetch failed", "segment", request.Segment, "error", err)
		o.notify()
		return
	}

	graph := response.Graph()
	if graph.IsEmpty() {
		logging.Warn("upstream returned an empty graph", "segment", request.Segment)
	}
	o.state.Graph = &graph
	o.state.Error = ""
	o.flow = sanitize.Sanitize(graph.Nodes, graph.Links, o.budget)
	o.hasFlow = true
	o.mu.Unlock()

	logging.Info("flow data applied",
		"segment", request.Segment,
		"nodes", len(graph.Nodes),
		"edges", len(graph.Links))
	o.notify()
}

// CurrentSnapshot returns the wire-form state, without the raw graph.
func (o *Orchestrator) CurrentSnapshot() Snapshot {
	return o.snapshot()
}

// notify publishes a state snapshot and pokes the render callback.
func (o *Orchestrator) notify() {
	snapshot := o.snapshot()
	if o.publisher != nil {
		if err := o.publisher.Publish(pubsub.TopicPanelState, "snapshot", snapshot); err != nil {
			logging.Warn("failed to publish state snapshot", "error", err)
		}
	}
	if o.onUpdate != nil {
		o.onUpdate()
	}
}

func (o *Orchestrator) snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Snapshot{
		Segment:      o.state.Segment,
		StartDate:    o.state.StartDate,
		EndDate:      o.state.EndDate,
		Limit:        o.state.EdgeLimit,
		MinEdgeCount: o.state.MinEdgeCount,
		View:         o.state.ActiveView,
		Loading:      o.state.Loading,
		Error:        o.state.Error,
	}
	if o.state.Graph != nil {
		s.NodeCount = len(o.state.Graph.Nodes)
		s.EdgeCount = len(o.state.Graph.Links)
	}
	return s
}
