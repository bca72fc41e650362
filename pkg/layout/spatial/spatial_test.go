package spatial

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/mhkang/flowscope/pkg/model"
)

func cyclicGraph() model.TransitionGraph {
	return model.TransitionGraph{
		Nodes: []model.Node{
			{ID: "a", Label: "Landing page", Value: 100},
			{ID: "b", Label: "Category", Value: 80},
			{ID: "c", Label: "Search", Value: 25},
		},
		Links: []model.Edge{
			{Source: "a", Target: "b", Value: 60},
			{Source: "b", Target: "c", Value: 30},
			{Source: "c", Target: "a", Value: 20}, // cycle is fine here
		},
	}
}

func TestSimulation_CooldownStopsIteration(t *testing.T) {
	s := New(Config{CooldownTicks: 5})
	defer s.Close()
	s.SetGraph(cyclicGraph())

	for i := 0; i < 50; i++ {
		s.Step()
	}
	if !s.Cooled() {
		t.Fatal("Simulation did not cool down")
	}

	before := s.Bodies()
	s.Step() // must be a no-op now
	after := s.Bodies()
	for i := range before {
		if before[i].Pos != after[i].Pos {
			t.Errorf("Body %q moved after cooldown", before[i].ID)
		}
	}
}

func TestSimulation_SetGraphPreservesSurvivingPositions(t *testing.T) {
	s := New(Config{CooldownTicks: 100})
	defer s.Close()
	s.SetGraph(cyclicGraph())
	for i := 0; i < 20; i++ {
		s.Step()
	}

	var posA struct {
		found bool
		x, y  float64
	}
	for _, b := range s.Bodies() {
		if b.ID == "a" {
			posA.found, posA.x, posA.y = true, b.Pos.X, b.Pos.Y
		}
	}
	if !posA.found {
		t.Fatal("node a missing")
	}

	// Replace wholesale: a survives, b/c vanish, d is new.
	s.SetGraph(model.TransitionGraph{
		Nodes: []model.Node{{ID: "a", Value: 100}, {ID: "d", Value: 5}},
		Links: []model.Edge{{Source: "a", Target: "d", Value: 5}},
	})

	bodies := s.Bodies()
	if len(bodies) != 2 {
		t.Fatalf("Expected 2 bodies after replace, got %d", len(bodies))
	}
	for _, b := range bodies {
		switch b.ID {
		case "a":
			if b.Pos.X != posA.x || b.Pos.Y != posA.y {
				t.Error("Surviving node a lost its position")
			}
		case "b", "c":
			t.Errorf("Vanished node %q still present", b.ID)
		}
	}
	if s.Cooled() {
		t.Error("Cooldown should restart on data change")
	}
}

func TestSimulation_SeedsAreDeterministic(t *testing.T) {
	a := New(Config{})
	b := New(Config{})
	defer a.Close()
	defer b.Close()
	a.SetGraph(cyclicGraph())
	b.SetGraph(cyclicGraph())

	ba, bb := a.Bodies(), b.Bodies()
	for i := range ba {
		if ba[i].Pos != bb[i].Pos {
			t.Errorf("Seed position for %q differs across runs", ba[i].ID)
		}
	}
}

func TestZoom_BoundsAndReset(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	for i := 0; i < 50; i++ {
		s.ZoomIn()
	}
	if z := s.Zoom(); z != MaxZoom {
		t.Errorf("Zoom-in not clamped: %f", z)
	}
	for i := 0; i < 50; i++ {
		s.ZoomOut()
	}
	if z := s.Zoom(); z != MinZoom {
		t.Errorf("Zoom-out not clamped: %f", z)
	}

	s.ResetView()
	if z := s.Zoom(); z != 1.0 {
		t.Errorf("ResetView left zoom at %f", z)
	}
}

func TestZoom_MapsToCameraDistance(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	base := s.CameraDistance()
	s.ZoomIn()
	if s.CameraDistance() >= base {
		t.Error("Zooming in should decrease camera distance")
	}
	s.ResetView()
	s.ZoomOut()
	if s.CameraDistance() <= base {
		t.Error("Zooming out should increase camera distance")
	}
}

func TestVisualSizeRules(t *testing.T) {
	if got := NodeRadius(0); got != 2 {
		t.Errorf("NodeRadius(0) = %f, want floor 2", got)
	}
	if got := NodeRadius(100); got != 10 {
		t.Errorf("NodeRadius(100) = %f, want 10", got)
	}
	if got := EdgeThickness(0); got != 0.4 {
		t.Errorf("EdgeThickness(0) = %f, want floor 0.4", got)
	}
	want := math.Log1p(50)
	if got := EdgeThickness(50); math.Abs(got-want) > 1e-9 {
		t.Errorf("EdgeThickness(50) = %f, want %f", got, want)
	}
}

func TestProject_LabelsTruncated(t *testing.T) {
	s := New(Config{})
	defer s.Close()
	s.SetGraph(model.TransitionGraph{
		Nodes: []model.Node{{ID: "n", Label: "a very long page title", Value: 10}},
	})

	p := s.Project(800, 600)
	if len(p.Nodes) != 1 {
		t.Fatalf("Expected 1 projected node, got %d", len(p.Nodes))
	}
	if got := []rune(p.Nodes[0].Label); len(got) > LabelMaxChars {
		t.Errorf("Label %q longer than %d chars", p.Nodes[0].Label, LabelMaxChars)
	}
}

func TestProject_SynthesizesDanglingEndpoints(t *testing.T) {
	s := New(Config{})
	defer s.Close()
	s.SetGraph(model.TransitionGraph{
		Links: []model.Edge{{Source: "x", Target: "y", Value: 3}},
	})

	p := s.Project(400, 400)
	if len(p.Nodes) != 2 || len(p.Edges) != 1 {
		t.Errorf("Expected 2 nodes / 1 edge, got %d / %d", len(p.Nodes), len(p.Edges))
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	s := New(Config{})
	s.SetGraph(cyclicGraph())
	s.Close()
	s.Close()
	s.Step() // must not panic on released state
	if got := s.Bodies(); len(got) != 0 {
		t.Errorf("Bodies retained after Close: %d", len(got))
	}
}

func TestSettle_CompletesCooldown(t *testing.T) {
	s := New(Config{CooldownTicks: 40})
	defer s.Close()
	s.SetGraph(cyclicGraph())

	s.Settle()
	if !s.Cooled() {
		t.Fatal("Settle returned before the cooldown completed")
	}
}

func TestRun_StopsWhenCooled(t *testing.T) {
	s := New(Config{CooldownTicks: 10})
	defer s.Close()
	s.SetGraph(cyclicGraph())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Run(ctx, time.Millisecond)

	if ctx.Err() != nil {
		t.Fatal("Run did not return on its own before the context deadline")
	}
	if !s.Cooled() {
		t.Error("Run returned without finishing the cooldown")
	}
}
