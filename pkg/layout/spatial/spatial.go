// Package spatial drives a 3-D force-directed simulation over the raw
// transition graph. Unlike the flow layout it tolerates cycles: the physics
// does not care about edge direction, only about springs and repulsion.
package spatial

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mhkang/flowscope/pkg/colorid"
	"github.com/mhkang/flowscope/pkg/model"
)

// Camera zoom bounds and defaults.
const (
	MinZoom      = 0.3
	MaxZoom      = 2.5
	zoomStep     = 1.15
	baseDistance = 600.0

	// DefaultCooldownTicks bounds how long the simulation refines positions
	// before it stops iterating. It must never spin indefinitely.
	DefaultCooldownTicks = 300

	// LabelMaxChars is the billboard label truncation limit.
	LabelMaxChars = 10

	dt         = 0.02
	damping    = 0.85
	repulsion  = 12000.0
	springK    = 0.08
	restLength = 60.0
	gravity    = 0.02
)

// Body is one simulated node.
type Body struct {
	ID    string
	Label string
	Value float64
	Pos   r3.Vec
	Vel   r3.Vec
}

// Link references two bodies by index for fast force passes.
type Link struct {
	From, To int
	Value    float64
}

// Config tunes the simulation.
type Config struct {
	CooldownTicks int // <=0 means DefaultCooldownTicks
}

// Simulation owns node positions, the cooldown counter, and the camera
// state. All methods are safe for concurrent use.
type Simulation struct {
	mu     sync.Mutex
	bodies []Body
	links  []Link
	ticks  int
	limit  int
	zoom   float64
	closed bool
}

// New creates an empty simulation with zoom 1.0.
func New(cfg Config) *Simulation {
	limit := cfg.CooldownTicks
	if limit <= 0 {
		limit = DefaultCooldownTicks
	}
	return &Simulation{limit: limit, zoom: 1.0}
}

// SetGraph replaces the node/link set wholesale. Positions and velocities of
// nodes whose ID persists across the update are preserved; new nodes are
// seeded deterministically from their ID hash; vanished nodes are dropped.
// The cooldown restarts so the new topology gets refined.
func (s *Simulation) SetGraph(g model.TransitionGraph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	old := make(map[string]Body, len(s.bodies))
	for _, b := range s.bodies {
		old[b.ID] = b
	}

	index := make(map[string]int, len(g.Nodes))
	bodies := make([]Body, 0, len(g.Nodes))
	add := func(id, label string, value float64) {
		if _, ok := index[id]; ok {
			return
		}
		b := Body{ID: id, Label: label, Value: value, Pos: seedPosition(id)}
		if prev, ok := old[id]; ok {
			b.Pos, b.Vel = prev.Pos, prev.Vel
		}
		index[id] = len(bodies)
		bodies = append(bodies, b)
	}
	for _, n := range g.Nodes {
		label := n.Label
		if label == "" {
			label = n.ID
		}
		add(n.ID, label, n.Value)
	}
	// Dangling endpoints still need a body or the spring pass would skip
	// their edges.
	for _, e := range g.Links {
		if e.Source == "" || e.Target == "" {
			continue
		}
		add(e.Source, e.Source, 0)
		add(e.Target, e.Target, 0)
	}

	links := make([]Link, 0, len(g.Links))
	for _, e := range g.Links {
		from, okF := index[e.Source]
		to, okT := index[e.Target]
		if !okF || !okT || from == to {
			continue
		}
		links = append(links, Link{From: from, To: to, Value: e.Value})
	}

	s.bodies = bodies
	s.links = links
	s.ticks = 0
}

// Step advances the simulation one tick. After the cooldown it is a no-op.
func (s *Simulation) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ticks >= s.limit || len(s.bodies) == 0 {
		return
	}
	s.ticks++

	forces := make([]r3.Vec, len(s.bodies))

	// Pairwise repulsion, inverse-square with a floor on the distance.
	for i := range s.bodies {
		for j := i + 1; j < len(s.bodies); j++ {
			delta := r3.Sub(s.bodies[i].Pos, s.bodies[j].Pos)
			d := r3.Norm(delta)
			if d < 0.1 {
				d = 0.1
				delta = jitter(i, j)
			}
			f := r3.Scale(repulsion/(d*d*d), delta)
			forces[i] = r3.Add(forces[i], f)
			forces[j] = r3.Sub(forces[j], f)
		}
	}

	// Springs along edges pull endpoints toward a rest length.
	for _, l := range s.links {
		delta := r3.Sub(s.bodies[l.To].Pos, s.bodies[l.From].Pos)
		d := r3.Norm(delta)
		if d < 0.1 {
			continue
		}
		f := r3.Scale(springK*(d-restLength)/d, delta)
		forces[l.From] = r3.Add(forces[l.From], f)
		forces[l.To] = r3.Sub(forces[l.To], f)
	}

	// Centering gravity keeps disconnected components on screen.
	for i := range s.bodies {
		forces[i] = r3.Sub(forces[i], r3.Scale(gravity, s.bodies[i].Pos))
	}

	for i := range s.bodies {
		b := &s.bodies[i]
		b.Vel = r3.Scale(damping, r3.Add(b.Vel, r3.Scale(dt, forces[i])))
		b.Pos = r3.Add(b.Pos, b.Vel)
	}
}

// Settle runs the remaining cooldown synchronously.
func (s *Simulation) Settle() {
	for {
		s.mu.Lock()
		done := s.closed || s.ticks >= s.limit || len(s.bodies) == 0
		s.mu.Unlock()
		if done {
			return
		}
		s.Step()
	}
}

// Run steps the simulation on a ticker until the cooldown completes or the
// context is cancelled.
func (s *Simulation) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			done := s.closed || s.ticks >= s.limit
			s.mu.Unlock()
			if done {
				return
			}
			s.Step()
		}
	}
}

// Cooled reports whether the simulation has finished its cooldown.
func (s *Simulation) Cooled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks >= s.limit
}

// Close stops the simulation loop and drops retained state. Safe to call
// more than once.
func (s *Simulation) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.bodies = nil
	s.links = nil
}

// --- camera ----------------------------------------------------------------

// Zoom returns the current zoom factor.
func (s *Simulation) Zoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}

// ZoomIn moves the camera closer by one step.
func (s *Simulation) ZoomIn() { s.setZoom(s.Zoom() * zoomStep) }

// ZoomOut moves the camera further away by one step.
func (s *Simulation) ZoomOut() { s.setZoom(s.Zoom() / zoomStep) }

// ResetView restores zoom 1.0 and with it the base camera distance.
func (s *Simulation) ResetView() { s.setZoom(1.0) }

func (s *Simulation) setZoom(z float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = math.Min(MaxZoom, math.Max(MinZoom, z))
}

// CameraDistance maps the zoom scalar onto the camera distance: zooming in
// decreases the distance, zooming out increases it.
func (s *Simulation) CameraDistance() float64 {
	return baseDistance / s.Zoom()
}

// NodeRadius is the visual size rule shared with the renderer: a small
// minimum stays visible and large values compress sub-linearly.
func NodeRadius(value float64) float64 {
	return math.Max(2, math.Sqrt(value))
}

// EdgeThickness compresses edge weight the same way.
func EdgeThickness(value float64) float64 {
	return math.Max(0.4, math.Log1p(value))
}

// --- projection ------------------------------------------------------------

// ProjectedNode is a node mapped onto the 2-D canvas.
type ProjectedNode struct {
	ID     string
	Label  string
	X, Y   float64
	Radius float64
	Depth  float64 // camera-space depth, for paint ordering
	Color  string
}

// ProjectedEdge is an edge mapped onto the 2-D canvas.
type ProjectedEdge struct {
	X0, Y0, X1, Y1 float64
	Thickness      float64
	Color          string
}

// Projection is a full frame ready to draw.
type Projection struct {
	Nodes []ProjectedNode
	Edges []ProjectedEdge
}

// Project maps current body positions through a simple perspective camera on
// the +Z axis onto a width x height canvas.
func (s *Simulation) Project(width, height int) Projection {
	s.mu.Lock()
	defer s.mu.Unlock()

	dist := baseDistance / s.zoom
	cx, cy := float64(width)/2, float64(height)/2

	place := func(p r3.Vec) (x, y, scale float64) {
		depth := dist - p.Z
		if depth < 1 {
			depth = 1
		}
		scale = dist / depth / 2
		return cx + p.X*scale, cy + p.Y*scale, scale
	}

	proj := Projection{
		Nodes: make([]ProjectedNode, 0, len(s.bodies)),
		Edges: make([]ProjectedEdge, 0, len(s.links)),
	}
	for _, l := range s.links {
		x0, y0, sc := place(s.bodies[l.From].Pos)
		x1, y1, _ := place(s.bodies[l.To].Pos)
		proj.Edges = append(proj.Edges, ProjectedEdge{
			X0: x0, Y0: y0, X1: x1, Y1: y1,
			Thickness: EdgeThickness(l.Value) * sc,
			Color:     colorid.Hex(s.bodies[l.From].ID),
		})
	}
	for _, b := range s.bodies {
		x, y, sc := place(b.Pos)
		proj.Nodes = append(proj.Nodes, ProjectedNode{
			ID:     b.ID,
			Label:  truncateLabel(b.Label),
			X:      x,
			Y:      y,
			Radius: NodeRadius(b.Value) * sc,
			Depth:  dist - b.Pos.Z,
			Color:  colorid.Hex(b.ID),
		})
	}
	return proj
}

// Bodies returns a copy of the current bodies, mainly for tests.
func (s *Simulation) Bodies() []Body {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Body, len(s.bodies))
	copy(out, s.bodies)
	return out
}

// --- helpers ---------------------------------------------------------------

// seedPosition derives a stable pseudo-random position in a sphere from the
// node ID so repeated runs over the same data produce the same picture.
func seedPosition(id string) r3.Vec {
	h := fnv.New64a()
	h.Write([]byte(id))
	bits := h.Sum64()

	unit := func(b uint64) float64 { // [-1, 1)
		return float64(b&0xffff)/32768.0 - 1.0
	}
	return r3.Vec{
		X: unit(bits) * 150,
		Y: unit(bits>>16) * 150,
		Z: unit(bits>>32) * 150,
	}
}

// jitter breaks the tie when two bodies occupy the same point.
func jitter(i, j int) r3.Vec {
	a := float64(i*31+j) * 0.7
	return r3.Vec{X: math.Cos(a), Y: math.Sin(a), Z: math.Cos(a * 1.3)}
}

func truncateLabel(s string) string {
	runes := []rune(s)
	if len(runes) <= LabelMaxChars {
		return s
	}
	return string(runes[:LabelMaxChars-1]) + "…"
}
