package panel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mhkang/flowscope/pkg/model"
)

type fakeFetcher struct {
	mu         sync.Mutex
	segments   []model.SegmentOption
	listErr    error
	fetchCalls int32
	onFetch    func(req model.FlowRequest) (*model.FlowResponse, error)
}

func (f *fakeFetcher) ListSegments(ctx context.Context) ([]model.SegmentOption, error) {
	return f.segments, f.listErr
}

func (f *fakeFetcher) FetchFlow(ctx context.Context, req model.FlowRequest) (*model.FlowResponse, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	f.mu.Lock()
	fn := f.onFetch
	f.mu.Unlock()
	if fn == nil {
		return &model.FlowResponse{}, nil
	}
	return fn(req)
}

func (f *fakeFetcher) calls() int32 { return atomic.LoadInt32(&f.fetchCalls) }

func defaultSegments() []model.SegmentOption {
	return []model.SegmentOption{
		{ID: "all", Label: "All Customers", Default: true},
		{ID: "vip", Label: "VIP"},
	}
}

func responseFor(segment string, value float64) *model.FlowResponse {
	return &model.FlowResponse{
		Segment: model.SegmentInfo{ID: segment},
		Nodes: []model.Node{
			{ID: "a", Label: "A", Value: value},
			{ID: "b", Label: "B", Value: value},
		},
		Links: []model.Edge{{Source: "a", Target: "b", Value: value}},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timeout waiting for %s", what)
}

func TestStart_PicksDefaultSegmentAndFetches(t *testing.T) {
	fetcher := &fakeFetcher{segments: defaultSegments()}
	fetcher.onFetch = func(req model.FlowRequest) (*model.FlowResponse, error) {
		return responseFor(req.Segment, 10), nil
	}

	o := New(fetcher, Options{EdgeLimit: 25, MinEdgeCount: 3})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, "initial fetch", func() bool {
		s := o.State()
		return !s.Loading && s.Graph != nil
	})

	state := o.State()
	if state.Segment != "all" {
		t.Errorf("Segment = %q, want default 'all'", state.Segment)
	}
	if state.Error != "" {
		t.Errorf("Unexpected error: %q", state.Error)
	}
	flow, ok := o.FlowGraph()
	if !ok {
		t.Fatal("FlowGraph should be available after fetch")
	}
	if len(flow.Links) != 1 {
		t.Errorf("Sanitized flow has %d links, want 1", len(flow.Links))
	}
}

func TestStart_SegmentListFailure(t *testing.T) {
	fetcher := &fakeFetcher{listErr: errors.New("connection refused")}

	o := New(fetcher, Options{})
	if err := o.Start(context.Background()); err == nil {
		t.Fatal("Start should surface segment-list failure")
	}
	if state := o.State(); state.Error == "" {
		t.Error("ViewState.Error should be set after segment-list failure")
	}
}

func TestFetchFailure_KeepsPreviousGraph(t *testing.T) {
	fetcher := &fakeFetcher{segments: defaultSegments()}
	var failing atomic.Bool
	fetcher.onFetch = func(req model.FlowRequest) (*model.FlowResponse, error) {
		if failing.Load() {
			return nil, errors.New("upstream returned 500")
		}
		return responseFor(req.Segment, 10), nil
	}

	o := New(fetcher, Options{})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "initial fetch", func() bool {
		s := o.State()
		return !s.Loading && s.Graph != nil
	})
	previous := o.State().Graph

	failing.Store(true)
	o.Refresh()
	waitFor(t, "failed refresh", func() bool {
		s := o.State()
		return !s.Loading && s.Error != ""
	})

	state := o.State()
	if state.Graph != previous {
		t.Error("Failed fetch must not replace the previous graph")
	}
}

func TestStaleResponseFencing(t *testing.T) {
	fetcher := &fakeFetcher{segments: defaultSegments()}

	slowRelease := make(chan struct{})
	var slowStarted sync.WaitGroup
	slowStarted.Add(1)
	var first atomic.Bool
	first.Store(true)
	fetcher.onFetch = func(req model.FlowRequest) (*model.FlowResponse, error) {
		if first.CompareAndSwap(true, false) {
			slowStarted.Done()
			<-slowRelease
			return responseFor("slow", 1), nil
		}
		return responseFor("fast", 99), nil
	}

	o := New(fetcher, Options{})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	slowStarted.Wait()

	// A second trigger out-fences the still-running first fetch.
	o.Refresh()
	waitFor(t, "second fetch applied", func() bool {
		s := o.State()
		return !s.Loading && s.Graph != nil
	})

	// Now let the stale response arrive; it must be dropped.
	close(slowRelease)
	time.Sleep(50 * time.Millisecond)

	state := o.State()
	if state.Graph.Nodes[0].Value != 99 {
		t.Errorf("Stale response overwrote newer data: %+v", state.Graph.Nodes[0])
	}
}

func TestSetActiveView_IsPure(t *testing.T) {
	fetcher := &fakeFetcher{segments: defaultSegments()}
	fetcher.onFetch = func(req model.FlowRequest) (*model.FlowResponse, error) {
		return responseFor(req.Segment, 10), nil
	}

	o := New(fetcher, Options{})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "initial fetch", func() bool {
		s := o.State()
		return !s.Loading && s.Graph != nil
	})

	before := fetcher.calls()
	graphBefore := o.State().Graph

	o.SetActiveView(ViewSpatial)

	if got := o.State().ActiveView; got != ViewSpatial {
		t.Errorf("ActiveView = %q, want spatial", got)
	}
	if fetcher.calls() != before {
		t.Error("View switch must not trigger a fetch")
	}
	if o.State().Graph != graphBefore {
		t.Error("View switch must not touch the graph")
	}
}

func TestControlChangeTriggersFetch(t *testing.T) {
	fetcher := &fakeFetcher{segments: defaultSegments()}
	fetcher.onFetch = func(req model.FlowRequest) (*model.FlowResponse, error) {
		return responseFor(req.Segment, 10), nil
	}

	o := New(fetcher, Options{})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "initial fetch", func() bool { return fetcher.calls() == 1 && !o.State().Loading })

	o.SelectSegment("vip")
	waitFor(t, "segment fetch", func() bool { return fetcher.calls() == 2 && !o.State().Loading })
	if got := o.State().Segment; got != "vip" {
		t.Errorf("Segment = %q, want vip", got)
	}

	o.SetEdgeLimit(50)
	waitFor(t, "limit fetch", func() bool { return fetcher.calls() == 3 && !o.State().Loading })

	o.SetMinEdgeCount(10)
	waitFor(t, "min-edge fetch", func() bool { return fetcher.calls() == 4 && !o.State().Loading })

	o.SetDateRange("2026-08-01", "2026-08-14")
	waitFor(t, "date fetch", func() bool { return fetcher.calls() == 5 && !o.State().Loading })
	state := o.State()
	if state.StartDate != "2026-08-01" || state.EndDate != "2026-08-14" {
		t.Errorf("Date range not applied: %s..%s", state.StartDate, state.EndDate)
	}
}

func TestMalformedPayloadYieldsEmptyGraph(t *testing.T) {
	fetcher := &fakeFetcher{segments: defaultSegments()}
	fetcher.onFetch = func(req model.FlowRequest) (*model.FlowResponse, error) {
		return &model.FlowResponse{}, nil
	}

	o := New(fetcher, Options{})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "fetch", func() bool {
		s := o.State()
		return !s.Loading && s.Graph != nil
	})

	state := o.State()
	if state.Error != "" {
		t.Errorf("Nil payload slices are not an error: %q", state.Error)
	}
	if state.Graph.Nodes == nil || state.Graph.Links == nil {
		t.Error("Graph slices should be empty, not nil")
	}
	flow, ok := o.FlowGraph()
	if !ok || len(flow.Nodes) != 0 || len(flow.Links) != 0 {
		t.Errorf("Expected empty sanitized graph, got %+v", flow)
	}
}

func TestOnUpdateFiresOnStateChanges(t *testing.T) {
	fetcher := &fakeFetcher{segments: defaultSegments()}
	fetcher.onFetch = func(req model.FlowRequest) (*model.FlowResponse, error) {
		return responseFor(req.Segment, 10), nil
	}

	var updates atomic.Int32
	o := New(fetcher, Options{OnUpdate: func() { updates.Add(1) }})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "initial fetch", func() bool { return !o.State().Loading })

	before := updates.Load()
	if before == 0 {
		t.Error("OnUpdate should have fired during the initial fetch cycle")
	}
	o.SetActiveView(ViewSpatial)
	if updates.Load() <= before {
		t.Error("OnUpdate should fire on a view switch")
	}
}
