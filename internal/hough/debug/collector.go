// Package debug provides instrumentation for the hough search. The
// Collector captures tree decisions (visited boxes, weights, acceptance)
// and per-stage candidate counts of one event for plotting and tuning.
package debug

import (
	"github.com/banshee-data/houghtrack/internal/hough/l1axes"
	"github.com/banshee-data/houghtrack/internal/hough/l3tree"
)

// DefaultMaxNodes bounds the node records kept per event. Deeper searches
// still update the per-level counters.
const DefaultMaxNodes = 1 << 16

// Collector accumulates debug artifacts during a single event. It
// implements l3tree.Observer.
//
// The collector is stateful: call BeginEvent, let the tree and the finder
// record, then Emit at event completion. Reset drops a pending trace.
type Collector struct {
	enabled  bool
	maxNodes int
	current  *EventTrace
}

// EventTrace contains all debug artifacts for one event.
type EventTrace struct {
	Event int64

	// Nodes holds visited nodes in visit order, up to the node cap.
	Nodes     []NodeRecord
	Truncated int

	// Levels[l] counts visits and acceptances at tree level l.
	Levels []LevelCount

	// Stages records candidate counts after each pipeline stage.
	Stages []StageRecord
}

// NodeRecord is one visited node.
type NodeRecord struct {
	Level    int
	Cell     [l1axes.MaxDims]int
	Lower    [l1axes.MaxDims]float64
	Upper    [l1axes.MaxDims]float64
	Weight   float64
	Items    int
	Accepted bool
	Leaf     bool
}

// LevelCount summarises one tree level.
type LevelCount struct {
	Visited  int
	Accepted int
}

// StageRecord is the candidate count leaving one stage.
type StageRecord struct {
	Stage      string
	Candidates int
}

// NewCollector creates a collector that's initially disabled.
func NewCollector() *Collector {
	return &Collector{maxNodes: DefaultMaxNodes}
}

// SetEnabled controls whether the collector records artifacts.
// When disabled, all recording calls are no-ops.
func (c *Collector) SetEnabled(enabled bool) { c.enabled = enabled }

func (c *Collector) IsEnabled() bool { return c.enabled }

// SetMaxNodes changes the node record cap; n <= 0 keeps no node records.
func (c *Collector) SetMaxNodes(n int) { c.maxNodes = n }

// BeginEvent starts collection for a new event.
func (c *Collector) BeginEvent(event int64) {
	if !c.enabled {
		return
	}
	c.current = &EventTrace{Event: event}
}

// OnNode records a node visit.
func (c *Collector) OnNode(ev l3tree.NodeEvent) {
	if !c.enabled || c.current == nil {
		return
	}
	tr := c.current
	for len(tr.Levels) <= ev.Level {
		tr.Levels = append(tr.Levels, LevelCount{})
	}
	tr.Levels[ev.Level].Visited++
	if ev.Accepted {
		tr.Levels[ev.Level].Accepted++
	}

	if len(tr.Nodes) >= c.maxNodes {
		tr.Truncated++
		return
	}
	rec := NodeRecord{
		Level:    ev.Level,
		Cell:     ev.Box.Cell(),
		Weight:   ev.Weight,
		Items:    ev.Items,
		Accepted: ev.Accepted,
		Leaf:     ev.Leaf,
	}
	for i := 0; i < ev.Box.N; i++ {
		rec.Lower[i] = ev.Box.Lower(i)
		rec.Upper[i] = ev.Box.Upper(i)
	}
	tr.Nodes = append(tr.Nodes, rec)
}

// RecordStage captures the candidate count leaving a pipeline stage.
func (c *Collector) RecordStage(stage string, candidates int) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Stages = append(c.current.Stages, StageRecord{Stage: stage, Candidates: candidates})
}

// Emit returns the accumulated trace and prepares for the next event.
// Returns nil if collection is disabled or no event was begun.
func (c *Collector) Emit() *EventTrace {
	if !c.enabled || c.current == nil {
		return nil
	}
	tr := c.current
	c.current = nil
	return tr
}

// Reset clears any pending artifacts without emitting them.
func (c *Collector) Reset() {
	c.current = nil
}
