package l2hits

import (
	"fmt"
	"math"

	"github.com/banshee-data/houghtrack/internal/hough/l1axes"
)

// MaxStrata is the number of distinct strata a stratum mask can hold.
const MaxStrata = 64

// RLTag is the left/right drift ambiguity of a hit.
type RLTag int8

const (
	RLUnknown RLTag = 0
	RLRight   RLTag = 1
	RLLeft    RLTag = -1
)

func (t RLTag) String() string {
	switch t {
	case RLRight:
		return "right"
	case RLLeft:
		return "left"
	default:
		return "unknown"
	}
}

// Hit is one detector measurement. The search never copies hits; it refers
// to them by their index in the caller's slice.
type Hit struct {
	ID      uint64 `json:"id"`
	Stratum int    `json:"stratum"`

	// Wire or space point position in the transverse plane.
	X float64 `json:"x"`
	Y float64 `json:"y"`

	DriftLength float64 `json:"drift,omitempty"`
	RL          RLTag   `json:"rl,omitempty"`

	// Weight overrides the stratum contribution; zero or negative means 1.
	Weight   float64 `json:"weight,omitempty"`
	Priority int     `json:"priority,omitempty"`

	// Params is an already projected parameter point, used by PointProjection.
	Params [l1axes.MaxDims]float64 `json:"params,omitzero"`
}

// Event is the hit collection of one detector readout.
type Event struct {
	Number int64 `json:"event"`
	Hits   []Hit `json:"hits"`
}

// EffectiveWeight returns the hit weight with the default applied.
func (h *Hit) EffectiveWeight() float64 {
	if h.Weight <= 0 {
		return 1
	}
	return h.Weight
}

// R returns the transverse distance of the hit from the origin.
func (h *Hit) R() float64 { return math.Hypot(h.X, h.Y) }

// Phi returns the azimuth of the hit position.
func (h *Hit) Phi() float64 { return math.Atan2(h.Y, h.X) }

// ValidStratum reports whether the stratum fits in a stratum mask.
func (h *Hit) ValidStratum() bool { return h.Stratum >= 0 && h.Stratum < MaxStrata }

// StratumBit returns the mask bit of the hit stratum, or 0 when invalid.
func (h *Hit) StratumBit() uint64 {
	if !h.ValidStratum() {
		return 0
	}
	return 1 << uint(h.Stratum)
}

func (h *Hit) String() string {
	return fmt.Sprintf("Hit{id=%d sl=%d x=%.4g y=%.4g d=%.3g %s}", h.ID, h.Stratum, h.X, h.Y, h.DriftLength, h.RL)
}
