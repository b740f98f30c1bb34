package l2hits

import (
	"math"

	"github.com/banshee-data/houghtrack/internal/hough/l1axes"
)

// LegendreProjection maps drift circles to the conformal (theta, r) plane.
// The wire at (x, y) with drift radius d becomes
//
//	x' = 2x/(x^2+y^2-d^2), y' = 2y/(x^2+y^2-d^2), d' = 2d/(x^2+y^2-d^2)
//
// (the image circle of the drift circle), and the hit is compatible with
// every (theta, r) on r = x' cos(theta) + y' sin(theta) +/- d'. A right tag
// selects +d', a left tag -d', an unknown tag both branches.
type LegendreProjection struct{}

// Conformal returns the conformal wire position and drift radius. ok is
// false when the drift circle encloses the origin.
func (LegendreProjection) Conformal(h *Hit) (xc, yc, dc float64, ok bool) {
	r2 := h.X*h.X + h.Y*h.Y
	den := r2 - h.DriftLength*h.DriftLength
	if r2 == 0 || den <= 0 {
		return 0, 0, 0, false
	}
	return 2 * h.X / den, 2 * h.Y / den, 2 * h.DriftLength / den, true
}

func (p LegendreProjection) Intersects(h *Hit, b l1axes.Box) bool {
	if b.N < 2 {
		return false
	}
	xc, yc, dc, ok := p.Conformal(h)
	if !ok {
		return false
	}
	// x' cos t + y' sin t == rho sin(t + alpha)
	rho := math.Hypot(xc, yc)
	alpha := math.Atan2(xc, yc)
	lo, hi := sinusoidRange(rho, -alpha, b.Lower(0)-Eps, b.Upper(0)+Eps)

	r1, r2 := b.Lower(1), b.Upper(1)
	switch h.RL {
	case RLRight:
		return overlaps(lo+dc, hi+dc, r1, r2)
	case RLLeft:
		return overlaps(lo-dc, hi-dc, r1, r2)
	default:
		return overlaps(lo+dc, hi+dc, r1, r2) || overlaps(lo-dc, hi-dc, r1, r2)
	}
}
