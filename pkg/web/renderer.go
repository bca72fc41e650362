package web

import (
	"bytes"
	"context"
	"sync"

	"github.com/mhkang/flowscope/pkg/layout/flow"
	"github.com/mhkang/flowscope/pkg/layout/spatial"
	"github.com/mhkang/flowscope/pkg/logging"
	"github.com/mhkang/flowscope/pkg/model"
	"github.com/mhkang/flowscope/pkg/panel"
	"github.com/mhkang/flowscope/pkg/pubsub"
	"github.com/mhkang/flowscope/pkg/render"
	"github.com/mhkang/flowscope/pkg/schedule"
)

// renderer caches the latest SVG frame per view and regenerates it through
// the coalescing scheduler. Resize bursts from clients collapse into a
// single layout pass at the last requested size.
type renderer struct {
	mu   sync.Mutex
	cond *sync.Cond

	orch      *panel.Orchestrator
	publisher pubsub.Publisher
	sched     *schedule.Scheduler
	sim       *spatial.Simulation

	width, height int
	flowSVG       []byte
	spatialSVG    []byte
	gen           uint64
	closed        bool
}

func newRenderer(orch *panel.Orchestrator, publisher pubsub.Publisher, width, height int) *renderer {
	r := &renderer{
		orch:      orch,
		publisher: publisher,
		sim:       spatial.New(spatial.Config{}),
		width:     width,
		height:    height,
	}
	r.cond = sync.NewCond(&r.mu)
	r.sched = schedule.New(schedule.DefaultTick, r.renderAt)
	return r
}

// Invalidate re-feeds the simulation with the orchestrator's current graph
// and schedules a re-render at the current size.
func (r *renderer) Invalidate() {
	state := r.orch.State()
	if state.Graph != nil {
		r.sim.SetGraph(*state.Graph)
	}

	r.mu.Lock()
	width, height := r.width, r.height
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}
	r.sched.Request(width, height)
}

// Render returns the SVG for a view at the given size, scheduling a render
// if the cache does not match. Zero dimensions keep the current size.
func (r *renderer) Render(ctx context.Context, view panel.View, width, height int) ([]byte, error) {
	r.mu.Lock()
	if width <= 0 {
		width = r.width
	}
	if height <= 0 {
		height = r.height
	}

	if r.gen > 0 && width == r.width && height == r.height {
		defer r.mu.Unlock()
		return r.cached(view), nil
	}

	startGen := r.gen
	r.mu.Unlock()

	r.sched.Request(width, height)

	// Wake the waiter if the client goes away mid-render.
	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-ctx.Done():
			r.cond.Broadcast()
		case <-watchdogDone:
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.gen <= startGen && !r.closed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.cond.Wait()
	}
	if r.closed {
		return nil, context.Canceled
	}
	return r.cached(view), nil
}

// cached returns a copy of the frame for a view. Caller holds mu.
func (r *renderer) cached(view panel.View) []byte {
	src := r.flowSVG
	if view == panel.ViewSpatial {
		src = r.spatialSVG
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

// renderAt is the scheduler callback: one layout and render pass per view at
// the coalesced size.
func (r *renderer) renderAt(size schedule.Size) {
	flowGraph, _ := r.orch.FlowGraph()

	var flowBuf bytes.Buffer
	layout, err := flow.Compute(flowGraph, size.Width, size.Height)
	if err != nil {
		logging.Error("flow layout failed", "error", err)
		layout, _ = flow.Compute(model.FlowGraph{}, size.Width, size.Height)
	}
	if err := render.FlowSVG(&flowBuf, layout); err != nil {
		logging.Error("flow render failed", "error", err)
	}

	r.sim.Settle()
	projection := r.sim.Project(size.Width, size.Height)
	var spatialBuf bytes.Buffer
	if err := render.SpatialSVG(&spatialBuf, projection, size.Width, size.Height); err != nil {
		logging.Error("spatial render failed", "error", err)
	}

	r.mu.Lock()
	r.width, r.height = size.Width, size.Height
	r.flowSVG = flowBuf.Bytes()
	r.spatialSVG = spatialBuf.Bytes()
	r.gen++
	gen := r.gen
	r.mu.Unlock()
	r.cond.Broadcast()

	if r.publisher != nil {
		event := map[string]interface{}{
			"width":  size.Width,
			"height": size.Height,
			"frame":  gen,
		}
		if err := r.publisher.Publish(pubsub.TopicRender, "rendered", event); err != nil {
			logging.Warn("failed to publish render event", "error", err)
		}
	}
}

// Close stops the scheduler and simulation and releases any waiters.
func (r *renderer) Close() {
	r.sched.Close()
	r.sim.Close()

	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cond.Broadcast()
}
