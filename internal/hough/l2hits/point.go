package l2hits

import "github.com/banshee-data/houghtrack/internal/hough/l1axes"

// PointProjection treats Hit.Params as a fixed point in parameter space.
type PointProjection struct{}

func (PointProjection) Intersects(h *Hit, b l1axes.Box) bool {
	return b.Contains(h.Params, Eps)
}
