package l2hits

import (
	"math"

	"github.com/banshee-data/houghtrack/internal/hough/l1axes"
)

// SineProjection is the trigger projection over the (azimuth, half
// curvature) plane. A hit at polar position (r, phi_h) maps to the curve
//
//	y(x) = sin(x - phi_h) / r
//
// where x is the track azimuth at the origin and y = omega/2, with omega
// positive for clockwise tracks.
type SineProjection struct {
	// RejectCurlBack drops, at the deepest level, hits on the falling half
	// of their curve (the back-curling half of the track).
	RejectCurlBack bool
}

func (p SineProjection) Intersects(h *Hit, b l1axes.Box) bool {
	r := h.R()
	if r == 0 || b.N < 2 {
		return false
	}
	lo, hi := sinusoidRange(1/r, h.Phi(), b.Lower(0)-Eps, b.Upper(0)+Eps)
	return overlaps(lo, hi, b.Lower(1), b.Upper(1))
}

// AcceptAtLeaf implements LeafFilter.
func (p SineProjection) AcceptAtLeaf(h *Hit, b l1axes.Box) bool {
	if !p.RejectCurlBack {
		return true
	}
	r := h.R()
	phi := h.Phi()
	y1 := math.Sin(b.Lower(0)-Eps-phi) / r
	y2 := math.Sin(b.Upper(0)+Eps-phi) / r
	return y1 <= y2
}

// Curve evaluates the hit curve at azimuth x.
func (p SineProjection) Curve(h *Hit, x float64) float64 {
	return math.Sin(x-h.Phi()) / h.R()
}
