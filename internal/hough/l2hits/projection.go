package l2hits

import (
	"math"

	"github.com/banshee-data/houghtrack/internal/hough/l1axes"
)

// Eps widens every box bound during compatibility tests so that curves
// passing exactly through a corner are not lost to rounding.
const Eps = 1e-10

// Projection decides whether a hit is compatible with some point of a box.
// It must be monotone: a hit incompatible with a box is incompatible with
// every sub-box, which is what allows the tree to prune.
type Projection interface {
	Intersects(h *Hit, b l1axes.Box) bool
}

// LeafFilter is an optional extra test applied only at the deepest level.
type LeafFilter interface {
	AcceptAtLeaf(h *Hit, b l1axes.Box) bool
}

// sinusoidRange returns the extrema of amp*sin(x - phase) over [x1, x2].
// amp must be non-negative.
func sinusoidRange(amp, phase, x1, x2 float64) (lo, hi float64) {
	a := amp * math.Sin(x1-phase)
	b := amp * math.Sin(x2-phase)
	lo, hi = math.Min(a, b), math.Max(a, b)
	if x2-x1 >= 2*math.Pi {
		return -amp, amp
	}
	if hasTurningPoint(phase+math.Pi/2, x1, x2) {
		hi = amp
	}
	if hasTurningPoint(phase-math.Pi/2, x1, x2) {
		lo = -amp
	}
	return lo, hi
}

// hasTurningPoint reports whether t0 + 2*pi*k lies in [x1, x2] for some k.
func hasTurningPoint(t0, x1, x2 float64) bool {
	k := math.Ceil((x1 - t0) / (2 * math.Pi))
	return t0+2*math.Pi*k <= x2
}

// overlaps reports whether [lo, hi] meets [b1, b2] with tolerance Eps.
func overlaps(lo, hi, b1, b2 float64) bool {
	return hi >= b1-Eps && lo <= b2+Eps
}
