package monitor

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/houghtrack/internal/hough/l1axes"
	"github.com/banshee-data/houghtrack/internal/hough/l3tree"
	"github.com/banshee-data/houghtrack/internal/hough/l4peaks"
)

// PlotOptions labels a rendering.
type PlotOptions struct {
	Title  string
	XLabel string
	YLabel string
}

func (o PlotOptions) withDefaults() PlotOptions {
	if o.XLabel == "" {
		o.XLabel = "axis 0"
	}
	if o.YLabel == "" {
		o.YLabel = "axis 1"
	}
	return o
}

// PlaneFromLeaves builds an occupancy plane from accepted leaves, for
// searches that ran without a stored plane.
func PlaneFromLeaves(leaves []l3tree.Leaf, div l1axes.Divider) *l3tree.Grid {
	g := l3tree.NewGrid(div.Cells(0), div.Cells(1))
	for _, l := range leaves {
		if l.Weight > g.At(l.Cell[0], l.Cell[1]) {
			g.Set(l.Cell[0], l.Cell[1], l.Weight)
		}
	}
	return g
}

// planeXYZ adapts a Grid to plotter.GridXYZ. Columns of the heat map follow
// axis 0 (grid rows), heat map rows follow axis 1.
type planeXYZ struct {
	g      *l3tree.Grid
	x0, dx float64
	y0, dy float64
}

func newPlaneXYZ(g *l3tree.Grid, div l1axes.Divider) planeXYZ {
	root := div.Root()
	return planeXYZ{
		g:  g,
		x0: root.Lower(0),
		dx: (root.Upper(0) - root.Lower(0)) / float64(max(g.Rows(), 1)),
		y0: root.Lower(1),
		dy: (root.Upper(1) - root.Lower(1)) / float64(max(g.Cols(), 1)),
	}
}

func (p planeXYZ) Dims() (c, r int)   { return p.g.Rows(), p.g.Cols() }
func (p planeXYZ) Z(c, r int) float64 { return p.g.At(c, r) }
func (p planeXYZ) X(c int) float64    { return p.x0 + (float64(c)+0.5)*p.dx }
func (p planeXYZ) Y(r int) float64    { return p.y0 + (float64(r)+0.5)*p.dy }

// heatmapPlot builds the heat map plot of g with the candidate centres
// marked as crosses.
func heatmapPlot(g *l3tree.Grid, div l1axes.Divider, cands []l4peaks.Candidate, o PlotOptions) (*plot.Plot, error) {
	if g.Rows() == 0 || g.Cols() == 0 {
		return nil, fmt.Errorf("empty plane %dx%d", g.Rows(), g.Cols())
	}
	o = o.withDefaults()

	p := plot.New()
	p.Title.Text = o.Title
	p.X.Label.Text = o.XLabel
	p.Y.Label.Text = o.YLabel

	hm := plotter.NewHeatMap(newPlaneXYZ(g, div), palette.Heat(12, 1))
	if hm.Max <= hm.Min {
		hm.Max = hm.Min + 1
	}
	p.Add(hm)

	if len(cands) > 0 {
		pts := make(plotter.XYs, len(cands))
		for i, c := range cands {
			pts[i] = plotter.XY{X: c.Params[0], Y: c.Params[1]}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create candidate scatter: %w", err)
		}
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Color = color.RGBA{R: 0, G: 160, B: 255, A: 255}
		sc.GlyphStyle.Radius = vg.Points(5)
		p.Add(sc)
	}
	return p, nil
}

// WriteHeatmapPNG renders g to path. The image format follows the file
// extension (png, svg, pdf).
func WriteHeatmapPNG(path string, g *l3tree.Grid, div l1axes.Divider, cands []l4peaks.Candidate, o PlotOptions) error {
	p, err := heatmapPlot(g, div, cands, o)
	if err != nil {
		return err
	}
	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save heat map: %w", err)
	}
	return nil
}
