// Package flow computes layered flow-diagram geometry for a sanitized,
// acyclic transition graph: node rectangles in topological columns and flow
// bands whose thickness is proportional to the transition weight.
package flow

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/mhkang/flowscope/pkg/colorid"
	"github.com/mhkang/flowscope/pkg/model"
)

const (
	// PerNodeHeight drives canvas growth: the canvas is tall enough that
	// node bands never visually overlap regardless of the container.
	PerNodeHeight = 28

	// MinHeight is the smallest canvas the layout will produce.
	MinHeight = 320

	// LabelMaxChars is the truncation limit for node labels.
	LabelMaxChars = 24

	nodeWidth    = 16.0
	padding      = 24.0
	nodeGap      = 10.0
	minNodePx    = 6.0
	minBandPx    = 1.0
	maxBandShare = 0.9 // band bundle may use at most this share of a node box
)

// NodeBox is a positioned node rectangle ready to draw.
type NodeBox struct {
	ID        string
	Label     string
	X, Y      float64
	W, H      float64
	Color     string
	LabelLeft bool // label anchored to the left of the box (node in right half)
}

// Band is a flow ribbon between two node boxes. The renderer derives the
// curve control points from the straight segment.
type Band struct {
	SourceID  string
	TargetID  string
	X0, Y0    float64
	X1, Y1    float64
	Thickness float64
	Color     string
}

// Layout is the computed geometry for one canvas size.
type Layout struct {
	Width  int
	Height int
	Nodes  []NodeBox
	Bands  []Band
}

// Compute lays out a FlowGraph for the given container size. The container
// width is followed as-is; the height grows with the node count so bands
// stay readable. Degenerate graphs produce an empty layout, never an error;
// a cyclic input (which Sanitize can never emit) is the only failure mode.
func Compute(g model.FlowGraph, width, height int) (*Layout, error) {
	if width <= 0 {
		width = 640
	}
	canvasH := height
	if min := len(g.Nodes) * PerNodeHeight; canvasH < min {
		canvasH = min
	}
	if canvasH < MinHeight {
		canvasH = MinHeight
	}

	if len(g.Nodes) == 0 {
		return &Layout{Width: width, Height: canvasH}, nil
	}

	layers, err := assignLayers(g)
	if err != nil {
		return nil, err
	}

	maxLayer := 0
	for _, l := range layers {
		if l > maxLayer {
			maxLayer = l
		}
	}

	throughput := nodeThroughput(g)

	// Group nodes into layer buckets, ordered by descending throughput with
	// input order breaking ties, so the layout is deterministic.
	order := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		order[n.ID] = i
	}
	buckets := make([][]model.Node, maxLayer+1)
	for _, n := range g.Nodes {
		l := layers[n.ID]
		buckets[l] = append(buckets[l], n)
	}
	for _, bucket := range buckets {
		sort.SliceStable(bucket, func(i, j int) bool {
			ti, tj := throughput[bucket[i].ID], throughput[bucket[j].ID]
			if ti != tj {
				return ti > tj
			}
			return order[bucket[i].ID] < order[bucket[j].ID]
		})
	}

	// One pixel scale for the whole diagram: the busiest layer must fit.
	scale := math.Inf(1)
	avail := float64(canvasH) - 2*padding
	for _, bucket := range buckets {
		sum := 0.0
		for _, n := range bucket {
			sum += math.Max(throughput[n.ID], 1)
		}
		gaps := float64(len(bucket)-1) * nodeGap
		if sum > 0 && avail-gaps > 0 {
			if s := (avail - gaps) / sum; s < scale {
				scale = s
			}
		}
	}
	if math.IsInf(scale, 1) {
		scale = 1
	}

	span := float64(width) - 2*padding - nodeWidth
	step := 0.0
	if maxLayer > 0 {
		step = span / float64(maxLayer)
	}

	boxes := make([]NodeBox, 0, len(g.Nodes))
	byID := make(map[string]*NodeBox, len(g.Nodes))
	for l, bucket := range buckets {
		y := padding
		for _, n := range bucket {
			h := math.Max(throughput[n.ID], 1) * scale
			if h < minNodePx {
				h = minNodePx
			}
			x := padding + float64(l)*step
			boxes = append(boxes, NodeBox{
				ID:        n.ID,
				Label:     Truncate(displayLabel(n), LabelMaxChars),
				X:         x,
				Y:         y,
				W:         nodeWidth,
				H:         h,
				Color:     colorid.Hex(n.ID),
				LabelLeft: x+nodeWidth/2 > float64(width)/2,
			})
			byID[n.ID] = &boxes[len(boxes)-1]
			y += h + nodeGap
		}
	}

	bands := buildBands(g, byID, scale)

	return &Layout{Width: width, Height: canvasH, Nodes: boxes, Bands: bands}, nil
}

// assignLayers computes longest-path layers over the acyclic edge set.
func assignLayers(g model.FlowGraph) (map[string]int, error) {
	ids := make(map[string]int64, len(g.Nodes))
	names := make([]string, len(g.Nodes))
	dg := simple.NewDirectedGraph()
	for i, n := range g.Nodes {
		ids[n.ID] = int64(i)
		names[i] = n.ID
		dg.AddNode(simple.Node(int64(i)))
	}
	for _, e := range g.Links {
		from, okF := ids[e.Source]
		to, okT := ids[e.Target]
		if !okF || !okT || from == to {
			continue
		}
		if !dg.HasEdgeFromTo(from, to) {
			dg.SetEdge(dg.NewEdge(dg.Node(from), dg.Node(to)))
		}
	}

	sorted, err := topo.Sort(dg)
	if err != nil {
		return nil, fmt.Errorf("flow layout requires an acyclic graph: %w", err)
	}

	layers := make(map[string]int, len(g.Nodes))
	for _, gn := range sorted {
		id := names[gn.ID()]
		layer := 0
		preds := dg.To(gn.ID())
		for preds.Next() {
			if l := layers[names[preds.Node().ID()]] + 1; l > layer {
				layer = l
			}
		}
		layers[id] = layer
	}
	return layers, nil
}

// nodeThroughput sizes a node by the larger of its declared value and the
// flow actually passing through it in the sanitized graph.
func nodeThroughput(g model.FlowGraph) map[string]float64 {
	in := make(map[string]float64)
	out := make(map[string]float64)
	for _, e := range g.Links {
		out[e.Source] += e.Value
		in[e.Target] += e.Value
	}
	th := make(map[string]float64, len(g.Nodes))
	for _, n := range g.Nodes {
		th[n.ID] = math.Max(n.Value, math.Max(in[n.ID], out[n.ID]))
	}
	return th
}

// buildBands stacks each node's outgoing and incoming bands so ribbons fan
// out instead of overlapping at the attachment point.
func buildBands(g model.FlowGraph, byID map[string]*NodeBox, scale float64) []Band {
	outOffset := make(map[string]float64)
	inOffset := make(map[string]float64)

	bands := make([]Band, 0, len(g.Links))
	for _, e := range g.Links {
		src, okS := byID[e.Source]
		dst, okT := byID[e.Target]
		if !okS || !okT {
			continue
		}
		th := e.Value * scale
		if max := src.H * maxBandShare; th > max {
			th = max
		}
		if th < minBandPx {
			th = minBandPx
		}

		y0 := src.Y + outOffset[e.Source] + th/2
		if y0 > src.Y+src.H {
			y0 = src.Y + src.H
		}
		y1 := dst.Y + inOffset[e.Target] + th/2
		if y1 > dst.Y+dst.H {
			y1 = dst.Y + dst.H
		}
		outOffset[e.Source] += th
		inOffset[e.Target] += th

		bands = append(bands, Band{
			SourceID:  e.Source,
			TargetID:  e.Target,
			X0:        src.X + src.W,
			Y0:        y0,
			X1:        dst.X,
			Y1:        y1,
			Thickness: th,
			Color:     colorid.Hex(e.Source),
		})
	}
	return bands
}

func displayLabel(n model.Node) string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// Truncate shortens s to max characters, ellipsis-terminated.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
