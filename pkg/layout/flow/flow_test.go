package flow

import (
	"testing"

	"github.com/mhkang/flowscope/pkg/model"
	"github.com/mhkang/flowscope/pkg/sanitize"
)

func funnelGraph() model.FlowGraph {
	nodes := []model.Node{
		{ID: "landing", Label: "Landing", Value: 1800},
		{ID: "category", Label: "Category", Value: 1520},
		{ID: "product", Label: "Product Detail", Value: 870},
		{ID: "checkout", Label: "Checkout", Value: 640},
	}
	links := []model.Edge{
		{Source: "landing", Target: "category", Value: 1800},
		{Source: "category", Target: "product", Value: 1520},
		{Source: "product", Target: "checkout", Value: 640},
		{Source: "landing", Target: "product", Value: 430},
	}
	return sanitize.Sanitize(nodes, links, 50)
}

func TestCompute_EmptyGraph(t *testing.T) {
	l, err := Compute(model.FlowGraph{}, 800, 400)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(l.Nodes) != 0 || len(l.Bands) != 0 {
		t.Errorf("Expected empty layout, got %d nodes, %d bands", len(l.Nodes), len(l.Bands))
	}
	if l.Width != 800 {
		t.Errorf("Width should follow container, got %d", l.Width)
	}
}

func TestCompute_ChainOrdersLayersLeftToRight(t *testing.T) {
	l, err := Compute(funnelGraph(), 1000, 400)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	pos := make(map[string]NodeBox, len(l.Nodes))
	for _, n := range l.Nodes {
		pos[n.ID] = n
	}

	if !(pos["landing"].X < pos["category"].X && pos["category"].X < pos["product"].X && pos["product"].X < pos["checkout"].X) {
		t.Errorf("Funnel stages not ordered left to right: %+v", pos)
	}
}

func TestCompute_HeightGrowsWithNodeCount(t *testing.T) {
	nodes := make([]model.Node, 0, 40)
	links := make([]model.Edge, 0, 39)
	prev := ""
	for i := 0; i < 40; i++ {
		id := string(rune('a' + i%26)) + string(rune('0'+i/26))
		nodes = append(nodes, model.Node{ID: id, Value: 10})
		if prev != "" {
			links = append(links, model.Edge{Source: prev, Target: id, Value: 10})
		}
		prev = id
	}
	g := sanitize.Sanitize(nodes, links, 200)

	l, err := Compute(g, 800, 100)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if l.Height < len(g.Nodes)*PerNodeHeight {
		t.Errorf("Canvas height %d below %d nodes * %d", l.Height, len(g.Nodes), PerNodeHeight)
	}
}

func TestCompute_LabelSideFollowsCanvasHalf(t *testing.T) {
	l, err := Compute(funnelGraph(), 1000, 400)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	for _, n := range l.Nodes {
		inRightHalf := n.X+n.W/2 > 500
		if n.LabelLeft != inRightHalf {
			t.Errorf("Node %q at x=%.0f: LabelLeft=%v, want %v", n.ID, n.X, n.LabelLeft, inRightHalf)
		}
	}
}

func TestCompute_BandThicknessTracksValue(t *testing.T) {
	l, err := Compute(funnelGraph(), 1000, 600)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	var heavy, light float64
	for _, b := range l.Bands {
		if b.SourceID == "landing" && b.TargetID == "category" {
			heavy = b.Thickness
		}
		if b.SourceID == "landing" && b.TargetID == "product" {
			light = b.Thickness
		}
	}
	if heavy == 0 || light == 0 {
		t.Fatalf("Expected both bands present, got %+v", l.Bands)
	}
	if heavy <= light {
		t.Errorf("Heavier transition got thinner band: %.1f vs %.1f", heavy, light)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	a, err := Compute(funnelGraph(), 900, 500)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	b, err := Compute(funnelGraph(), 900, 500)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if len(a.Nodes) != len(b.Nodes) {
		t.Fatalf("Node counts differ: %d vs %d", len(a.Nodes), len(b.Nodes))
	}
	for i := range a.Nodes {
		if a.Nodes[i] != b.Nodes[i] {
			t.Errorf("Node %d differs: %+v vs %+v", i, a.Nodes[i], b.Nodes[i])
		}
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 24, "short"},
		{"this label is far too long for a node", 10, "this la..."},
		{"abc", 2, "ab"},
		{"anything", 0, ""},
	}
	for _, c := range cases {
		if got := Truncate(c.in, c.max); got != c.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", c.in, c.max, got, c.want)
		}
	}
}
