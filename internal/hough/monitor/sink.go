package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/houghtrack/internal/hough/l1axes"
	"github.com/banshee-data/houghtrack/internal/hough/pipeline"
)

// Formats written by PlaneSink.
const (
	FormatHeatmap = "heatmap"
	FormatHTML    = "html"
	FormatRaw     = "raw"
)

// PlaneSink writes the parameter plane of every event into a directory.
// Events without a stored plane are drawn from their accepted leaves.
type PlaneSink struct {
	dir     string
	div     l1axes.Divider
	formats []string
	options PlotOptions
	scale   int
}

// NewPlaneSink creates dir and returns a sink writing the given formats
// (all of them when none are named).
func NewPlaneSink(dir string, div l1axes.Divider, o PlotOptions, formats ...string) (*PlaneSink, error) {
	if len(formats) == 0 {
		formats = []string{FormatHeatmap, FormatHTML, FormatRaw}
	}
	for _, f := range formats {
		switch f {
		case FormatHeatmap, FormatHTML, FormatRaw:
		default:
			return nil, fmt.Errorf("unknown plot format %q", f)
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &PlaneSink{dir: dir, div: div, formats: formats, options: o, scale: 8}, nil
}

// Dir returns the output directory.
func (s *PlaneSink) Dir() string { return s.dir }

func (s *PlaneSink) Write(ctx context.Context, res *pipeline.Result) error {
	g := res.Plane
	if g == nil {
		g = PlaneFromLeaves(res.Leaves, s.div)
	}
	o := s.options
	if o.Title == "" {
		o.Title = fmt.Sprintf("event %d", res.Event)
	}
	cands := res.Candidates

	for _, f := range s.formats {
		if err := ctx.Err(); err != nil {
			return err
		}
		base := filepath.Join(s.dir, fmt.Sprintf("event_%06d", res.Event))
		var err error
		switch f {
		case FormatHeatmap:
			err = WriteHeatmapPNG(base+"_plane.png", g, s.div, cands, o)
		case FormatRaw:
			err = WriteRawPNG(base+"_raw.png", g, s.scale)
		case FormatHTML:
			err = writeHTMLFile(base+".html", func(f *os.File) error {
				return WritePlaneHTML(f, g, s.div, cands, o)
			})
		}
		if err != nil {
			return fmt.Errorf("event %d: %s: %w", res.Event, f, err)
		}
	}
	return nil
}

func writeHTMLFile(path string, render func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
