package l1axes

import (
	"fmt"
	"strings"
)

// MaxDims is the largest parameter space a Box can describe.
const MaxDims = 3

// Range is the extent of a box along one axis.
//
// Discrete axes fill First/Last with boundary indices into the axis bin
// array and copy the matching boundary values into Lower/Upper.
// Continuous axes only use Lower/Upper. Cell is the integer coordinate of
// the range at its division level (child cell = parent cell * divisions + i).
type Range struct {
	Lower float64
	Upper float64
	First int
	Last  int
	Cell  int
}

// Center returns the midpoint of the range.
func (r Range) Center() float64 { return 0.5 * (r.Lower + r.Upper) }

// Width returns Upper - Lower.
func (r Range) Width() float64 { return r.Upper - r.Lower }

// Bins returns the number of discrete bins covered (zero for continuous ranges).
func (r Range) Bins() int { return r.Last - r.First }

// Box is one N-tuple of per-axis ranges.
type Box struct {
	N      int
	Ranges [MaxDims]Range
}

// Lower returns the lower bound along axis.
func (b Box) Lower(axis int) float64 { return b.Ranges[axis].Lower }

// Upper returns the upper bound along axis.
func (b Box) Upper(axis int) float64 { return b.Ranges[axis].Upper }

// Center returns the box midpoint, one value per axis.
func (b Box) Center() [MaxDims]float64 {
	var c [MaxDims]float64
	for i := 0; i < b.N; i++ {
		c[i] = b.Ranges[i].Center()
	}
	return c
}

// Cell returns the integer cell coordinate of the box at its level.
func (b Box) Cell() [MaxDims]int {
	var c [MaxDims]int
	for i := 0; i < b.N; i++ {
		c[i] = b.Ranges[i].Cell
	}
	return c
}

// Contains reports whether p lies inside the closed box, with tolerance eps
// on every bound.
func (b Box) Contains(p [MaxDims]float64, eps float64) bool {
	for i := 0; i < b.N; i++ {
		if p[i] < b.Ranges[i].Lower-eps || p[i] > b.Ranges[i].Upper+eps {
			return false
		}
	}
	return true
}

// Valid checks Lower <= Upper and First <= Last on every axis.
func (b Box) Valid() bool {
	if b.N < 1 || b.N > MaxDims {
		return false
	}
	for i := 0; i < b.N; i++ {
		r := b.Ranges[i]
		if r.Lower > r.Upper || r.First > r.Last {
			return false
		}
	}
	return true
}

func (b Box) String() string {
	var sb strings.Builder
	sb.WriteString("Box{")
	for i := 0; i < b.N; i++ {
		if i > 0 {
			sb.WriteString(" x ")
		}
		r := b.Ranges[i]
		fmt.Fprintf(&sb, "[%.6g, %.6g]#%d", r.Lower, r.Upper, r.Cell)
	}
	sb.WriteString("}")
	return sb.String()
}
