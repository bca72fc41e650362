package render

import (
	"image"
	"io"
	"sort"

	"git.sr.ht/~sbinet/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/mhkang/flowscope/pkg/layout/flow"
	"github.com/mhkang/flowscope/pkg/layout/spatial"
)

// FlowPNG renders a flow layout as a PNG image.
func FlowPNG(w io.Writer, l *flow.Layout) error {
	dc := gg.NewContext(l.Width, l.Height)
	dc.SetHexColor(backdrop)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	if len(l.Nodes) == 0 {
		drawNoDataPNG(dc, l.Width, l.Height)
		return dc.EncodePNG(w)
	}

	for _, b := range l.Bands {
		mx := (b.X0 + b.X1) / 2
		dc.MoveTo(b.X0, b.Y0)
		dc.CubicTo(mx, b.Y0, mx, b.Y1, b.X1, b.Y1)
		dc.SetHexColor(b.Color)
		dc.SetLineWidth(b.Thickness)
		dc.Stroke()
	}

	for _, n := range l.Nodes {
		dc.SetHexColor(n.Color)
		dc.DrawRectangle(n.X, n.Y, n.W, n.H)
		dc.Fill()

		dc.SetHexColor(textColor)
		if n.LabelLeft {
			dc.DrawStringAnchored(n.Label, n.X-6, n.Y+n.H/2, 1, 0.5)
		} else {
			dc.DrawStringAnchored(n.Label, n.X+n.W+6, n.Y+n.H/2, 0, 0.5)
		}
	}

	return dc.EncodePNG(w)
}

// SpatialPNG renders a projected spatial frame as a PNG image. Labels are
// rendered as small bitmap sprites composited above each node, so they stay
// screen-aligned like camera-facing billboards.
func SpatialPNG(w io.Writer, p spatial.Projection, width, height int) error {
	dc := gg.NewContext(width, height)
	dc.SetHexColor(backdrop)
	dc.Clear()

	if len(p.Nodes) == 0 {
		dc.SetFontFace(basicfont.Face7x13)
		drawNoDataPNG(dc, width, height)
		return dc.EncodePNG(w)
	}

	for _, e := range p.Edges {
		dc.SetHexColor(e.Color)
		dc.SetLineWidth(e.Thickness)
		dc.DrawLine(e.X0, e.Y0, e.X1, e.Y1)
		dc.Stroke()
	}

	nodes := make([]spatial.ProjectedNode, len(p.Nodes))
	copy(nodes, p.Nodes)
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Depth > nodes[j].Depth })

	for _, n := range nodes {
		dc.SetHexColor(n.Color)
		dc.DrawCircle(n.X, n.Y, n.Radius)
		dc.Fill()

		if n.Label != "" {
			sprite := labelSprite(n.Label)
			dc.DrawImageAnchored(sprite, int(n.X), int(n.Y-n.Radius)-8, 0.5, 0.5)
		}
	}

	return dc.EncodePNG(w)
}

// labelSprite renders a label into its own small bitmap, the billboard that
// the spatial view composites per node.
func labelSprite(label string) image.Image {
	face := basicfont.Face7x13
	w := len([]rune(label))*face.Advance + 4
	h := face.Height + 4

	sc := gg.NewContext(w, h)
	sc.SetFontFace(face)
	sc.SetHexColor(textColor)
	sc.DrawStringAnchored(label, float64(w)/2, float64(h)/2, 0.5, 0.5)
	return sc.Image()
}

func drawNoDataPNG(dc *gg.Context, width, height int) {
	dc.SetHexColor(mutedColor)
	dc.DrawStringAnchored("no data", float64(width)/2, float64(height)/2, 0.5, 0.5)
}
