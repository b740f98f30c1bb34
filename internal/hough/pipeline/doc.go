// Package pipeline provides the per-event hough search that orchestrates
// the layers from L3 Tree through L5 Refine.
//
// This package is the composition root: it imports from the layer
// packages (l1axes .. l5refine) and the debug collector, but none of those
// packages import pipeline/. Sinks (storage, publish, event files) plug in
// through the Sink interface.
//
// A Finder is the caller-owned search context. It keeps its tree arena
// across events (fell and reseed) and is not safe for concurrent use; run
// one Finder per goroutine.
package pipeline
