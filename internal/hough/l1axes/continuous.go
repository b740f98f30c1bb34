package l1axes

import (
	"fmt"
	"math"
)

// ContinuousAxis is an axis without discretisation. Children split the
// parent into equal sub-intervals, each widened on both sides by Overlap
// times the sub-interval width and clipped to the parent.
type ContinuousAxis struct {
	lower   float64
	upper   float64
	overlap float64
}

// NewContinuousAxis validates and returns a continuous axis. Overlap is a
// fraction of the child width in [0, 1).
func NewContinuousAxis(lower, upper, overlap float64) (*ContinuousAxis, error) {
	if math.IsNaN(lower) || math.IsNaN(upper) || !(lower < upper) {
		return nil, fmt.Errorf("%w: lower bound %g must be below upper bound %g", ErrInvalidAxis, lower, upper)
	}
	if overlap < 0 || overlap >= 1 {
		return nil, fmt.Errorf("%w: continuous overlap must be in [0, 1), got %g", ErrInvalidAxis, overlap)
	}
	return &ContinuousAxis{lower: lower, upper: upper, overlap: overlap}, nil
}

func (a *ContinuousAxis) Lower() float64 { return a.lower }
func (a *ContinuousAxis) Upper() float64 { return a.upper }
func (a *ContinuousAxis) Overlap() float64 { return a.overlap }
func (a *ContinuousAxis) Discrete() bool { return false }

func (a *ContinuousAxis) Root() Range {
	return Range{Lower: a.lower, Upper: a.upper}
}

func (a *ContinuousAxis) Split(parent Range, divisions int) []Range {
	step := (parent.Upper - parent.Lower) / float64(divisions)
	pad := a.overlap * step
	out := make([]Range, divisions)
	for i := 0; i < divisions; i++ {
		lo := parent.Lower + float64(i)*step - pad
		hi := parent.Lower + float64(i+1)*step + pad
		if i == divisions-1 {
			hi = parent.Upper + pad
		}
		out[i] = Range{
			Lower: math.Max(lo, parent.Lower),
			Upper: math.Min(hi, parent.Upper),
			Cell:  parent.Cell*divisions + i,
		}
	}
	return out
}

func (a *ContinuousAxis) Validate(divisions []int) error {
	for level, d := range divisions {
		if d < 1 {
			return fmt.Errorf("%w: divisions at level %d must be positive, got %d", ErrInvalidAxis, level, d)
		}
	}
	return nil
}
