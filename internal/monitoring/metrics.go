package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Search stages reported in the stage label.
const (
	StageSeed    = "seed"
	StageFind    = "find"
	StageExtract = "extract"
	StageRefine  = "refine"
	StageSink    = "sink"
)

// SearchMetrics holds the prometheus collectors of the hough search. One
// value is shared by every Finder of a process; the collectors are safe for
// concurrent use.
type SearchMetrics struct {
	events     prometheus.Counter
	hits       prometheus.Counter
	dropped    prometheus.Counter
	leaves     prometheus.Histogram
	candidates *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	arena      prometheus.Gauge
}

// NewSearchMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewSearchMetrics(reg prometheus.Registerer) *SearchMetrics {
	m := &SearchMetrics{
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "houghtrack_events_total",
			Help: "Events processed.",
		}),
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "houghtrack_hits_total",
			Help: "Hits seeded into the search tree.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "houghtrack_hits_dropped_total",
			Help: "Hits outside the root box or with an invalid stratum.",
		}),
		leaves: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "houghtrack_accepted_leaves",
			Help:    "Accepted leaves per event.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "houghtrack_candidates_total",
			Help: "Candidates leaving each stage.",
		}, []string{"stage"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "houghtrack_stage_duration_seconds",
			Help:    "Time spent per search stage.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
		}, []string{"stage"}),
		arena: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "houghtrack_tree_nodes",
			Help: "Node arena size of the last tree that reported.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.hits, m.dropped, m.leaves, m.candidates, m.duration, m.arena)
	}
	return m
}

// ObserveStage records the duration of one stage.
func (m *SearchMetrics) ObserveStage(stage string, d time.Duration) {
	m.duration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveCandidates adds n candidates leaving stage.
func (m *SearchMetrics) ObserveCandidates(stage string, n int) {
	m.candidates.WithLabelValues(stage).Add(float64(n))
}

// ObserveEvent records the per-event tree counters.
func (m *SearchMetrics) ObserveEvent(seeded, dropped, leaves, nodes int) {
	m.events.Inc()
	m.hits.Add(float64(seeded))
	m.dropped.Add(float64(dropped))
	m.leaves.Observe(float64(leaves))
	m.arena.Set(float64(nodes))
}
