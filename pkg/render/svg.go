// Package render draws computed layouts to SVG and PNG. It owns no layout
// logic: the flow and spatial adapters hand it finished geometry.
package render

import (
	"fmt"
	"io"
	"sort"

	svg "github.com/ajstarks/svgo"

	"github.com/mhkang/flowscope/pkg/layout/flow"
	"github.com/mhkang/flowscope/pkg/layout/spatial"
)

const (
	backdrop   = "#1e1e2e"
	textColor  = "#f8f8f2"
	mutedColor = "#a0a0b0"
)

// FlowSVG renders a flow layout as an SVG document.
func FlowSVG(w io.Writer, l *flow.Layout) error {
	canvas := svg.New(w)
	canvas.Start(l.Width, l.Height)
	canvas.Rect(0, 0, l.Width, l.Height, "fill:"+backdrop)

	if len(l.Nodes) == 0 {
		drawNoDataSVG(canvas, l.Width, l.Height)
		canvas.End()
		return nil
	}

	// Bands first so node boxes sit on top of the ribbons.
	for _, b := range l.Bands {
		mx := (b.X0 + b.X1) / 2
		path := fmt.Sprintf("M%.1f,%.1f C%.1f,%.1f %.1f,%.1f %.1f,%.1f",
			b.X0, b.Y0, mx, b.Y0, mx, b.Y1, b.X1, b.Y1)
		canvas.Path(path, fmt.Sprintf("fill:none;stroke:%s;stroke-width:%.1f;stroke-opacity:0.45", b.Color, b.Thickness))
	}

	for _, n := range l.Nodes {
		canvas.Rect(int(n.X), int(n.Y), int(n.W), int(n.H),
			fmt.Sprintf("fill:%s;stroke:#11111b;stroke-width:1", n.Color))

		ty := int(n.Y + n.H/2 + 4)
		if n.LabelLeft {
			canvas.Text(int(n.X)-6, ty, n.Label,
				"fill:"+textColor+";font-size:12px;font-family:monospace;text-anchor:end")
		} else {
			canvas.Text(int(n.X+n.W)+6, ty, n.Label,
				"fill:"+textColor+";font-size:12px;font-family:monospace")
		}
	}

	canvas.End()
	return nil
}

// SpatialSVG renders a projected spatial frame as an SVG document. Nodes are
// painted far-to-near so nearer nodes overlap farther ones.
func SpatialSVG(w io.Writer, p spatial.Projection, width, height int) error {
	canvas := svg.New(w)
	canvas.Start(width, height)
	canvas.Rect(0, 0, width, height, "fill:"+backdrop)

	if len(p.Nodes) == 0 {
		drawNoDataSVG(canvas, width, height)
		canvas.End()
		return nil
	}

	for _, e := range p.Edges {
		canvas.Line(int(e.X0), int(e.Y0), int(e.X1), int(e.Y1),
			fmt.Sprintf("stroke:%s;stroke-width:%.1f;stroke-opacity:0.35", e.Color, e.Thickness))
	}

	nodes := make([]spatial.ProjectedNode, len(p.Nodes))
	copy(nodes, p.Nodes)
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Depth > nodes[j].Depth })

	for _, n := range nodes {
		canvas.Circle(int(n.X), int(n.Y), int(n.Radius+0.5),
			fmt.Sprintf("fill:%s;fill-opacity:0.9", n.Color))
		// Billboard label: screen-aligned text above the node.
		canvas.Text(int(n.X), int(n.Y-n.Radius)-4, n.Label,
			"fill:"+textColor+";font-size:11px;font-family:monospace;text-anchor:middle")
	}

	canvas.End()
	return nil
}

func drawNoDataSVG(canvas *svg.SVG, width, height int) {
	canvas.Text(width/2, height/2, "no data",
		"fill:"+mutedColor+";font-size:14px;font-family:monospace;text-anchor:middle")
}
