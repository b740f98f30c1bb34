package pipeline

import (
	"errors"
	"fmt"

	"github.com/banshee-data/houghtrack/internal/hough/l1axes"
	"github.com/banshee-data/houghtrack/internal/hough/l2hits"
	"github.com/banshee-data/houghtrack/internal/hough/l3tree"
	"github.com/banshee-data/houghtrack/internal/hough/l4peaks"
	"github.com/banshee-data/houghtrack/internal/hough/l5refine"
)

// ErrInvalidConfig is returned for configurations that cannot run a search.
var ErrInvalidConfig = errors.New("invalid search config")

// Config is the complete description of one search variant.
type Config struct {
	Divider    l1axes.Divider
	Projection l2hits.Projection
	Acceptance l2hits.Acceptance
	Plane      l3tree.PlaneMode
	Extractor  l4peaks.Extractor
	// Refiner is optional; nil leaves candidates unrefined.
	Refiner *l5refine.Refiner
}

// Validate checks every component before any search runs.
func (c Config) Validate() error {
	if c.Divider == nil {
		return fmt.Errorf("%w: divider is required", ErrInvalidConfig)
	}
	if c.Projection == nil {
		return fmt.Errorf("%w: projection is required", ErrInvalidConfig)
	}
	if c.Extractor == nil {
		return fmt.Errorf("%w: extractor is required", ErrInvalidConfig)
	}
	if err := c.Extractor.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Acceptance.MinWeight < 0 {
		return fmt.Errorf("%w: min weight must be non-negative, got %g", ErrInvalidConfig, c.Acceptance.MinWeight)
	}
	if c.Acceptance.RequireInnermost && (c.Acceptance.Innermost < 0 || c.Acceptance.Innermost >= l2hits.MaxStrata) {
		return fmt.Errorf("%w: innermost stratum %d out of range", ErrInvalidConfig, c.Acceptance.Innermost)
	}
	for _, s := range c.Acceptance.ShortStrata {
		if s < 0 || s >= l2hits.MaxStrata {
			return fmt.Errorf("%w: short stratum %d out of range", ErrInvalidConfig, s)
		}
	}
	switch c.Plane {
	case l3tree.PlaneOff, l3tree.PlaneAccepted, l3tree.PlaneFull:
	default:
		return fmt.Errorf("%w: unknown plane mode %d", ErrInvalidConfig, c.Plane)
	}
	return nil
}
