package l3tree

import "github.com/banshee-data/houghtrack/internal/hough/l1axes"

// NodeEvent describes one node visit during Find.
type NodeEvent struct {
	Level    int
	Box      l1axes.Box
	Weight   float64
	Strata   uint64
	Items    int
	Accepted bool
	Leaf     bool
}

// Observer receives every node visit. Observers must not retain or modify
// tree state; they exist for debug collection only.
type Observer interface {
	OnNode(ev NodeEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev NodeEvent)

func (f ObserverFunc) OnNode(ev NodeEvent) { f(ev) }
