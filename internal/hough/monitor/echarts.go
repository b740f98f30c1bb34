package monitor

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/houghtrack/internal/hough/l1axes"
	"github.com/banshee-data/houghtrack/internal/hough/l3tree"
	"github.com/banshee-data/houghtrack/internal/hough/l4peaks"
)

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// WritePlaneHTML renders the occupied cells of g as an interactive scatter
// coloured by weight, with the candidate centres as a second series.
func WritePlaneHTML(w io.Writer, g *l3tree.Grid, div l1axes.Divider, cands []l4peaks.Candidate, o PlotOptions) error {
	o = o.withDefaults()
	xyz := newPlaneXYZ(g, div)

	cells := make([]opts.ScatterData, 0)
	maxWeight := 0.0
	for c := 0; c < g.Rows(); c++ {
		for r := 0; r < g.Cols(); r++ {
			v := g.At(c, r)
			if v <= 0 {
				continue
			}
			maxWeight = max(maxWeight, v)
			cells = append(cells, opts.ScatterData{Value: []interface{}{xyz.X(c), xyz.Y(r), v}})
		}
	}
	if maxWeight == 0 {
		maxWeight = 1
	}

	peaks := make([]opts.ScatterData, len(cands))
	for i, c := range cands {
		peaks[i] = opts.ScatterData{
			Name:  fmt.Sprintf("candidate %d", i),
			Value: []interface{}{c.Params[0], c.Params[1], c.Weight},
		}
	}

	root := div.Root()
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Hough plane", Theme: "dark", Width: "1000px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: o.Title, Subtitle: fmt.Sprintf("cells=%d candidates=%d", len(cells), len(cands))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: root.Lower(0), Max: root.Upper(0), Name: o.XLabel, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: root.Lower(1), Max: root.Upper(1), Name: o.YLabel, NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxWeight),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("cells", cells, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	scatter.AddSeries("candidates", peaks, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
