package l1axes

import (
	"errors"
	"fmt"
)

// ErrInvalidAxis is returned for axis definitions that cannot produce a
// uniform bin layout.
var ErrInvalidAxis = errors.New("invalid axis")

// Axis is one coordinate of the parameter space.
type Axis interface {
	// Root returns the full range of the axis (cell 0).
	Root() Range
	// Split divides parent into `divisions` children in cell order.
	Split(parent Range, divisions int) []Range
	// Validate checks that the axis can be divided by the given per-level
	// division counts down to the leaves.
	Validate(divisions []int) error
	// Discrete reports whether the axis is backed by a bin array.
	Discrete() bool
}

// BinSpec is a discrete axis: an ordered sequence of bin boundaries where
// every leaf spans Width bins and neighbouring leaves share Overlap bins.
//
// The boundary count always satisfies
//
//	len(values) == leaves*width - (leaves-1)*overlap + 1
//
// so that every granularity level has uniform bin width.
type BinSpec struct {
	values  []float64
	width   int
	overlap int
	leaves  int
}

// binCount returns the number of bins needed for leaves cells of the given
// width and overlap.
func binCount(leaves, width, overlap int) int {
	return leaves*width - (leaves-1)*overlap
}

func checkLayout(leaves, width, overlap int) error {
	if leaves <= 0 {
		return fmt.Errorf("%w: leaf count must be positive, got %d", ErrInvalidAxis, leaves)
	}
	if width <= 0 {
		return fmt.Errorf("%w: bin width must be positive, got %d", ErrInvalidAxis, width)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap must be non-negative, got %d", ErrInvalidAxis, overlap)
	}
	if overlap >= width {
		return fmt.Errorf("%w: overlap %d must be smaller than width %d", ErrInvalidAxis, overlap, width)
	}
	return nil
}

// ConstructArray builds a uniformly spaced boundary array between lower and
// upper for the requested leaf count, leaf width and overlap.
func ConstructArray(lower, upper float64, leaves, width, overlap int) (*BinSpec, error) {
	if err := checkLayout(leaves, width, overlap); err != nil {
		return nil, err
	}
	if !(lower < upper) {
		return nil, fmt.Errorf("%w: lower bound %g must be below upper bound %g", ErrInvalidAxis, lower, upper)
	}

	nBins := binCount(leaves, width, overlap)
	values := make([]float64, nBins+1)
	step := (upper - lower) / float64(nBins)
	for i := range values {
		values[i] = lower + float64(i)*step
	}
	// Pin the last boundary so rounding never shrinks the axis.
	values[nBins] = upper

	return &BinSpec{values: values, width: width, overlap: overlap, leaves: leaves}, nil
}

// AssignArray accepts an externally supplied, strictly increasing boundary
// array (for example geometry-derived, non-uniform boundaries) and infers the
// leaf width from the invariant.
func AssignArray(values []float64, leaves, overlap int) (*BinSpec, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("%w: need at least two boundaries, got %d", ErrInvalidAxis, len(values))
	}
	if leaves <= 0 {
		return nil, fmt.Errorf("%w: leaf count must be positive, got %d", ErrInvalidAxis, leaves)
	}
	for i := 1; i < len(values); i++ {
		if !(values[i-1] < values[i]) {
			return nil, fmt.Errorf("%w: boundaries must increase strictly (index %d)", ErrInvalidAxis, i)
		}
	}

	nBins := len(values) - 1
	num := nBins + (leaves-1)*overlap
	if num%leaves != 0 {
		return nil, fmt.Errorf("%w: %d bins cannot be split into %d leaves with overlap %d",
			ErrInvalidAxis, nBins, leaves, overlap)
	}
	width := num / leaves
	if err := checkLayout(leaves, width, overlap); err != nil {
		return nil, err
	}

	cp := make([]float64, len(values))
	copy(cp, values)
	return &BinSpec{values: cp, width: width, overlap: overlap, leaves: leaves}, nil
}

// Values returns a copy of the boundary array.
func (s *BinSpec) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Value returns boundary i.
func (s *BinSpec) Value(i int) float64 { return s.values[i] }

func (s *BinSpec) Width() int { return s.width }
func (s *BinSpec) Overlap() int { return s.overlap }
func (s *BinSpec) Leaves() int { return s.leaves }

// NBins returns the number of bins (boundaries - 1).
func (s *BinSpec) NBins() int { return len(s.values) - 1 }

func (s *BinSpec) Discrete() bool { return true }

func (s *BinSpec) Root() Range {
	last := len(s.values) - 1
	return Range{
		Lower: s.values[0],
		Upper: s.values[last],
		First: 0,
		Last:  last,
	}
}

// Split divides a parent spanning w bins into children of width
// w' = (w + (d-1)*overlap) / d, child i starting at First + i*(w'-overlap).
// Children are congruent, their union is the parent, and neighbours share
// exactly Overlap bins.
func (s *BinSpec) Split(parent Range, divisions int) []Range {
	w := parent.Last - parent.First
	wc := (w + (divisions-1)*s.overlap) / divisions
	out := make([]Range, divisions)
	for i := 0; i < divisions; i++ {
		first := parent.First + i*(wc-s.overlap)
		last := first + wc
		out[i] = Range{
			Lower: s.values[first],
			Upper: s.values[last],
			First: first,
			Last:  last,
			Cell:  parent.Cell*divisions + i,
		}
	}
	return out
}

// Validate checks that the per-level divisions multiply up to the leaf count
// the array was built for.
func (s *BinSpec) Validate(divisions []int) error {
	product := 1
	for level, d := range divisions {
		if d < 1 {
			return fmt.Errorf("%w: divisions at level %d must be positive, got %d", ErrInvalidAxis, level, d)
		}
		product *= d
	}
	if product != s.leaves {
		return fmt.Errorf("%w: divisions produce %d leaves but bin array was built for %d",
			ErrInvalidAxis, product, s.leaves)
	}
	return nil
}
