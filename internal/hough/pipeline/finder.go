package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/houghtrack/internal/hough/debug"
	"github.com/banshee-data/houghtrack/internal/hough/l2hits"
	"github.com/banshee-data/houghtrack/internal/hough/l3tree"
	"github.com/banshee-data/houghtrack/internal/hough/l4peaks"
	"github.com/banshee-data/houghtrack/internal/hough/l5refine"
	"github.com/banshee-data/houghtrack/internal/monitoring"
)

// Sink receives the result of every processed event.
type Sink interface {
	Write(ctx context.Context, res *Result) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, res *Result) error

func (f SinkFunc) Write(ctx context.Context, res *Result) error { return f(ctx, res) }

// Result is the outcome of one event.
type Result struct {
	Event int64
	// Hits is the event hit slice; candidate hit indices refer to it.
	Hits       []l2hits.Hit
	Leaves     []l3tree.Leaf
	Candidates []l4peaks.Candidate
	// Tracks holds the refined candidates when a refiner is configured.
	Tracks  []l5refine.Track
	Refined bool

	TreeStats   l3tree.Stats
	PeakStats   l4peaks.Stats
	RefineStats l5refine.Stats
	// Plane is the finder's occupancy plane when one is stored. It is
	// overwritten by the next event.
	Plane *l3tree.Grid
	// Trace is set when a debug collector is attached and enabled.
	Trace *debug.EventTrace
}

// Output returns the final tracks. Unrefined candidates are wrapped with a
// zero fit and charge.
func (r *Result) Output() []l5refine.Track {
	if r.Refined {
		return r.Tracks
	}
	out := make([]l5refine.Track, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = l5refine.Track{Candidate: c}
	}
	return out
}

// Option configures a Finder.
type Option func(*Finder)

// WithSink appends a sink. Sinks run in the order they were added.
func WithSink(s Sink) Option {
	return func(f *Finder) { f.sinks = append(f.sinks, s) }
}

// WithCollector attaches a debug collector as the tree observer.
func WithCollector(c *debug.Collector) Option {
	return func(f *Finder) { f.collector = c }
}

// WithMetrics reports every event to m.
func WithMetrics(m *monitoring.SearchMetrics) Option {
	return func(f *Finder) { f.metrics = m }
}

// Finder is the caller-owned search context: one tree, one extractor, an
// optional refiner and its sinks. It is not safe for concurrent use.
type Finder struct {
	cfg       Config
	tree      *l3tree.Tree
	sinks     []Sink
	collector *debug.Collector
	metrics   *monitoring.SearchMetrics
	events    int
}

// NewFinder validates cfg and builds the tree. Nothing is searched yet.
func NewFinder(cfg Config, opts ...Option) (*Finder, error) {
	f := &Finder{}
	for _, opt := range opts {
		opt(f)
	}
	if err := f.build(cfg); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Finder) build(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	topts := l3tree.Options{
		Divider:    cfg.Divider,
		Projection: cfg.Projection,
		Plane:      cfg.Plane,
	}
	if f.collector != nil {
		topts.Observer = f.collector
	}
	tree, err := l3tree.New(topts)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	f.cfg = cfg
	f.tree = tree
	f.events = 0
	return nil
}

// Config returns the active configuration.
func (f *Finder) Config() Config { return f.cfg }

// Tree exposes the search tree for inspection.
func (f *Finder) Tree() *l3tree.Tree { return f.tree }

// Grid returns the occupancy plane of the last event, or nil when off.
func (f *Finder) Grid() *l3tree.Grid { return f.tree.Grid() }

// Events returns the number of events processed since the last build.
func (f *Finder) Events() int { return f.events }

// Rebuild razes the tree. A non-nil cfg replaces the configuration; the
// old one stays active when the new one is invalid.
func (f *Finder) Rebuild(cfg *Config) error {
	if cfg == nil {
		f.tree.Raze()
		f.events = 0
		return nil
	}
	old := f.tree
	if err := f.build(*cfg); err != nil {
		return err
	}
	old.Raze()
	return nil
}

// Process runs the search over one event. The hit slice is referenced by
// the result and must not be modified while the result is in use.
func (f *Finder) Process(ctx context.Context, ev l2hits.Event) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	res := Result{Event: ev.Number, Hits: ev.Hits}
	if f.collector != nil {
		f.collector.BeginEvent(ev.Number)
	}

	start := time.Now()
	if f.events > 0 {
		f.tree.Fell()
	}
	f.tree.Seed(ev.Hits)
	f.observe(monitoring.StageSeed, &start)

	res.Leaves = f.tree.Find(f.cfg.Acceptance)
	res.TreeStats = f.tree.Stats()
	res.Plane = f.tree.Grid()
	f.observe(monitoring.StageFind, &start)
	f.record(monitoring.StageFind, len(res.Leaves))

	src := l4peaks.Source{Hits: ev.Hits, Projection: f.cfg.Projection, Divider: f.cfg.Divider}
	res.Candidates, res.PeakStats = f.cfg.Extractor.Extract(res.Leaves, src)
	f.observe(monitoring.StageExtract, &start)
	f.record(monitoring.StageExtract, len(res.Candidates))

	if f.cfg.Refiner != nil {
		res.Tracks, res.RefineStats = f.cfg.Refiner.Refine(res.Candidates, ev.Hits)
		res.Refined = true
		f.observe(monitoring.StageRefine, &start)
		f.record(monitoring.StageRefine, len(res.Tracks))
	}

	f.events++
	if f.metrics != nil {
		f.metrics.ObserveEvent(res.TreeStats.Seeded, res.TreeStats.Dropped, len(res.Leaves), f.tree.NodeCount())
	}
	if f.collector != nil {
		res.Trace = f.collector.Emit()
	}
	diagf("event %d: %d hits, %d leaves, %d candidates, %d tracks",
		ev.Number, len(ev.Hits), len(res.Leaves), len(res.Candidates), len(res.Tracks))

	for i, s := range f.sinks {
		if err := s.Write(ctx, &res); err != nil {
			opsf("event %d: sink %d failed: %v", ev.Number, i, err)
			return res, fmt.Errorf("event %d: sink %d: %w", ev.Number, i, err)
		}
	}
	f.observe(monitoring.StageSink, &start)
	return res, nil
}

// observe reports the time since *start for stage and restarts the clock.
func (f *Finder) observe(stage string, start *time.Time) {
	if f.metrics == nil {
		return
	}
	now := time.Now()
	f.metrics.ObserveStage(stage, now.Sub(*start))
	*start = now
}

func (f *Finder) record(stage string, n int) {
	if f.collector != nil {
		f.collector.RecordStage(stage, n)
	}
	if f.metrics != nil {
		f.metrics.ObserveCandidates(stage, n)
	}
}
