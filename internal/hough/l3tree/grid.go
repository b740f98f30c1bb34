package l3tree

import "fmt"

// Grid is the dense occupancy plane: rows follow axis 0 leaf cells,
// columns axis 1 leaf cells. Cells hold the largest leaf weight seen.
type Grid struct {
	rows int
	cols int
	data []float64
}

// NewGrid allocates a zeroed rows x cols plane.
func NewGrid(rows, cols int) *Grid {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("l3tree: invalid grid size %dx%d", rows, cols))
	}
	return &Grid{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

func (g *Grid) Rows() int { return g.rows }
func (g *Grid) Cols() int { return g.cols }

// At returns the value at (row, col); out-of-range reads return 0.
func (g *Grid) At(row, col int) float64 {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		return 0
	}
	return g.data[row*g.cols+col]
}

// Set stores v at (row, col); out-of-range writes are ignored.
func (g *Grid) Set(row, col int, v float64) {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		return
	}
	g.data[row*g.cols+col] = v
}

// raise keeps the larger of the stored value and v.
func (g *Grid) raise(row, col int, v float64) {
	if v > g.At(row, col) {
		g.Set(row, col, v)
	}
}

// Reset zeroes every cell.
func (g *Grid) Reset() {
	clear(g.data)
}

// Max returns the largest cell value.
func (g *Grid) Max() float64 {
	m := 0.0
	for _, v := range g.data {
		if v > m {
			m = v
		}
	}
	return m
}

// Dense returns a copy of the plane as rows of columns.
func (g *Grid) Dense() [][]float64 {
	out := make([][]float64, g.rows)
	for r := range out {
		out[r] = append([]float64(nil), g.data[r*g.cols:(r+1)*g.cols]...)
	}
	return out
}
