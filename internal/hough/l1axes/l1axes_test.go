package l1axes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructArray_Invariant(t *testing.T) {
	tests := []struct {
		name                   string
		leaves, width, overlap int
	}{
		{"no overlap", 8, 1, 0},
		{"width two overlap one", 16, 2, 1},
		{"wide leaves", 4, 5, 2},
		{"single leaf", 1, 3, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bs, err := ConstructArray(-1, 1, tc.leaves, tc.width, tc.overlap)
			require.NoError(t, err)
			want := tc.leaves*tc.width - (tc.leaves-1)*tc.overlap + 1
			assert.Len(t, bs.Values(), want)
			assert.Equal(t, -1.0, bs.Value(0))
			assert.Equal(t, 1.0, bs.Value(bs.NBins()))
		})
	}
}

func TestConstructArray_Errors(t *testing.T) {
	tests := []struct {
		name                   string
		lower, upper           float64
		leaves, width, overlap int
	}{
		{"overlap equals width", 0, 1, 4, 2, 2},
		{"negative overlap", 0, 1, 4, 2, -1},
		{"zero width", 0, 1, 4, 0, 0},
		{"zero leaves", 0, 1, 0, 1, 0},
		{"inverted bounds", 1, 0, 4, 1, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ConstructArray(tc.lower, tc.upper, tc.leaves, tc.width, tc.overlap)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidAxis))
		})
	}
}

func TestAssignArray(t *testing.T) {
	// 4 leaves of width 2 sharing 1 bin: 4*2-3*1 = 5 bins.
	values := []float64{0, 0.1, 0.3, 0.6, 1.0, 1.5}
	bs, err := AssignArray(values, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, bs.Width())

	values[0] = -10
	assert.Equal(t, 0.0, bs.Value(0), "AssignArray must copy its input")

	_, err = AssignArray([]float64{0, 1, 2, 3}, 2, 0)
	assert.ErrorIs(t, err, ErrInvalidAxis, "3 bins cannot form 2 equal leaves")

	_, err = AssignArray([]float64{0, 2, 1}, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidAxis, "non monotone boundaries")

	// 4 bins, 2 leaves, overlap 2 gives width 3: fine. Overlap 3 gives width 3.5: rejected.
	_, err = AssignArray([]float64{0, 1, 2, 3, 4}, 2, 2)
	assert.NoError(t, err)
	_, err = AssignArray([]float64{0, 1, 2, 3, 4}, 2, 3)
	assert.ErrorIs(t, err, ErrInvalidAxis)
}

func TestBinSpecSplit_CongruentAndCovering(t *testing.T) {
	bs, err := ConstructArray(0, 1, 16, 3, 1)
	require.NoError(t, err)

	parent := bs.Root()
	for level := 0; level < 4; level++ {
		children := bs.Split(parent, 2)
		require.Len(t, children, 2)
		assert.Equal(t, parent.First, children[0].First)
		assert.Equal(t, parent.Last, children[1].Last)
		assert.Equal(t, children[0].Bins(), children[1].Bins(), "children must be congruent")
		assert.Equal(t, bs.Overlap(), children[0].Last-children[1].First, "neighbours share overlap bins")
		parent = children[1]
	}
	assert.Equal(t, bs.Width(), parent.Bins(), "leaf spans width bins")
	assert.Equal(t, 15, parent.Cell)
}

func TestBinSpecSplit_NoOverlapSharesBoundary(t *testing.T) {
	bs, err := ConstructArray(0, 8, 8, 1, 0)
	require.NoError(t, err)
	children := bs.Split(bs.Root(), 2)
	assert.Equal(t, children[0].Upper, children[1].Lower)
	assert.Equal(t, 4.0, children[0].Upper)
}

func TestContinuousAxis(t *testing.T) {
	_, err := NewContinuousAxis(0, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidAxis)
	_, err = NewContinuousAxis(1, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidAxis)

	ax, err := NewContinuousAxis(0, 4, 0.25)
	require.NoError(t, err)
	children := ax.Split(ax.Root(), 4)
	require.Len(t, children, 4)
	assert.Equal(t, 0.0, children[0].Lower, "clipped to parent")
	assert.InDelta(t, 1.25, children[0].Upper, 1e-12)
	assert.InDelta(t, 0.75, children[1].Lower, 1e-12)
	assert.Equal(t, 4.0, children[3].Upper)
	for i, c := range children {
		assert.Equal(t, i, c.Cell)
	}
}

func TestBoxDivision(t *testing.T) {
	phi, err := ConstructArray(-3, 3, 8, 1, 0)
	require.NoError(t, err)
	curv, err := NewContinuousAxis(-1, 1, 0)
	require.NoError(t, err)

	bd, err := NewBoxDivision([]Axis{phi, curv}, [][]int{{2, 2}}, 3)
	require.NoError(t, err)
	assert.Equal(t, 8, bd.Cells(0))
	assert.Equal(t, 8, bd.Cells(1))

	root := bd.Root()
	require.True(t, root.Valid())
	children := bd.Divide(root, 0)
	require.Len(t, children, 4)
	// Axis 0 outermost, axis 1 fastest.
	assert.Equal(t, [MaxDims]int{0, 0, 0}, children[0].Cell())
	assert.Equal(t, [MaxDims]int{0, 1, 0}, children[1].Cell())
	assert.Equal(t, [MaxDims]int{1, 0, 0}, children[2].Cell())
	for _, c := range children {
		assert.True(t, c.Valid())
	}
}

func TestBoxDivision_PerLevelRows(t *testing.T) {
	phi, err := ConstructArray(0, 1, 12, 1, 0)
	require.NoError(t, err)
	bd, err := NewBoxDivision([]Axis{phi}, [][]int{{3}, {2}}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, bd.Divisions(0))
	assert.Equal(t, []int{2}, bd.Divisions(5), "last row repeats")
	assert.Equal(t, 12, bd.Cells(0))
}

func TestBoxDivision_Errors(t *testing.T) {
	phi, err := ConstructArray(0, 1, 8, 1, 0)
	require.NoError(t, err)

	_, err = NewBoxDivision([]Axis{phi}, [][]int{{2}}, 2)
	assert.ErrorIs(t, err, ErrInvalidDivision, "2 levels of halving give 4 leaves, not 8")

	_, err = NewBoxDivision([]Axis{phi}, [][]int{{2, 2}}, 3)
	assert.ErrorIs(t, err, ErrInvalidDivision, "row width must match axis count")

	_, err = NewBoxDivision(nil, [][]int{{2}}, 3)
	assert.ErrorIs(t, err, ErrInvalidDivision)
}

func TestBoxContains(t *testing.T) {
	b := Box{N: 2}
	b.Ranges[0] = Range{Lower: 0, Upper: 1}
	b.Ranges[1] = Range{Lower: -1, Upper: 1}
	assert.True(t, b.Contains([MaxDims]float64{1, 1}, 0))
	assert.False(t, b.Contains([MaxDims]float64{1.1, 0}, 0))
	assert.True(t, b.Contains([MaxDims]float64{1.1, 0}, 0.2))
	assert.Equal(t, [MaxDims]float64{0.5, 0}, b.Center())
	assert.Contains(t, b.String(), "Box{")
}
