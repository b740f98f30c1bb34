package l1axes

import (
	"errors"
	"fmt"
)

// ErrInvalidDivision is returned when a division strategy is misconfigured.
var ErrInvalidDivision = errors.New("invalid box division")

// Divider produces the child boxes of a parent box for the next level.
// Implementations must be deterministic: the same parent and level always
// yield the same children in the same order.
type Divider interface {
	Root() Box
	Divide(parent Box, level int) []Box
	MaxLevel() int
	// Cells returns the number of leaf cells along axis.
	Cells(axis int) int
}

// BoxDivision divides boxes axis by axis with a runtime-configured
// branching factor per axis per level. Children are the cartesian product
// of the per-axis splits, axis 0 outermost.
type BoxDivision struct {
	axes      []Axis
	divisions [][MaxDims]int
	maxLevel  int
	cells     [MaxDims]int
}

// NewBoxDivision validates the axes against the division table. Row l of
// divisions holds the branching factor of every axis at level l; the last
// row repeats for deeper levels.
func NewBoxDivision(axes []Axis, divisions [][]int, maxLevel int) (*BoxDivision, error) {
	if len(axes) == 0 || len(axes) > MaxDims {
		return nil, fmt.Errorf("%w: need 1..%d axes, got %d", ErrInvalidDivision, MaxDims, len(axes))
	}
	if maxLevel < 0 {
		return nil, fmt.Errorf("%w: max level must be non-negative, got %d", ErrInvalidDivision, maxLevel)
	}
	if len(divisions) == 0 {
		return nil, fmt.Errorf("%w: division table is empty", ErrInvalidDivision)
	}

	bd := &BoxDivision{axes: axes, maxLevel: maxLevel}
	for l, row := range divisions {
		if len(row) != len(axes) {
			return nil, fmt.Errorf("%w: level %d has %d entries for %d axes", ErrInvalidDivision, l, len(row), len(axes))
		}
		var r [MaxDims]int
		copy(r[:], row)
		bd.divisions = append(bd.divisions, r)
	}

	for i, ax := range axes {
		perLevel := make([]int, maxLevel)
		cells := 1
		for l := 0; l < maxLevel; l++ {
			perLevel[l] = bd.row(l)[i]
			cells *= perLevel[l]
		}
		if err := ax.Validate(perLevel); err != nil {
			return nil, fmt.Errorf("%w: axis %d: %w", ErrInvalidDivision, i, err)
		}
		bd.cells[i] = cells
	}
	return bd, nil
}

func (bd *BoxDivision) row(level int) [MaxDims]int {
	if level >= len(bd.divisions) {
		return bd.divisions[len(bd.divisions)-1]
	}
	return bd.divisions[level]
}

// Divisions returns the branching factor of every axis at level.
func (bd *BoxDivision) Divisions(level int) []int {
	r := bd.row(level)
	return append([]int(nil), r[:len(bd.axes)]...)
}

func (bd *BoxDivision) Axes() []Axis { return bd.axes }
func (bd *BoxDivision) MaxLevel() int { return bd.maxLevel }
func (bd *BoxDivision) Cells(axis int) int { return bd.cells[axis] }

func (bd *BoxDivision) Root() Box {
	b := Box{N: len(bd.axes)}
	for i, ax := range bd.axes {
		b.Ranges[i] = ax.Root()
	}
	return b
}

// Divide returns the children of parent, which sits at the given level.
func (bd *BoxDivision) Divide(parent Box, level int) []Box {
	row := bd.row(level)
	var split [MaxDims][]Range
	total := 1
	for i, ax := range bd.axes {
		split[i] = ax.Split(parent.Ranges[i], row[i])
		total *= len(split[i])
	}

	out := make([]Box, 0, total)
	var idx [MaxDims]int
	for n := 0; n < total; n++ {
		child := Box{N: parent.N}
		for i := range bd.axes {
			child.Ranges[i] = split[i][idx[i]]
		}
		out = append(out, child)
		// Odometer increment, last axis fastest.
		for i := len(bd.axes) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(split[i]) {
				break
			}
			idx[i] = 0
		}
	}
	return out
}
