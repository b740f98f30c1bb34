package l4peaks

import (
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/banshee-data/houghtrack/internal/hough/l1axes"
	"github.com/banshee-data/houghtrack/internal/hough/l3tree"
)

// CenterMode selects how a region's parameter point is estimated.
type CenterMode int

const (
	// CenterCentroid is the weight-averaged centre of the region cells.
	CenterCentroid CenterMode = iota
	// CenterPeak is the centre of the heaviest cell (lowest index on ties).
	CenterPeak
)

// ConnectedRegions merges adjacent accepted leaves into candidates.
//
// With OnlyLocalMax, a cell with a strictly heavier connected neighbour is
// dropped before grouping. Equal-weight neighbours never dominate each
// other, so adjacent maxima of the same weight are both kept and end up in
// one region.
type ConnectedRegions struct {
	Connect      Connectivity
	OnlyLocalMax bool
	MinCells     int
	// WrapX joins the first and last cell along axis 0 (azimuth).
	WrapX  bool
	Center CenterMode
	// Exclusive assigns every hit to a single candidate: the region with
	// the larger total weight wins, then the lower first cell.
	Exclusive        bool
	SelectPerStratum bool
}

func (cr ConnectedRegions) Validate() error {
	if !cr.Connect.Valid() {
		return fmt.Errorf("%w: connect must be 4, 6 or 8, got %d", ErrInvalidExtractor, cr.Connect)
	}
	if cr.MinCells < 0 {
		return fmt.Errorf("%w: min cells must be non-negative, got %d", ErrInvalidExtractor, cr.MinCells)
	}
	return nil
}

type cellKey [l1axes.MaxDims]int

// region is a transient group of leaf indices.
type region struct {
	leaves []int
	first  int // linear index of the lowest cell
	total  float64
	hits   *roaring.Bitmap
}

func (cr ConnectedRegions) Extract(leaves []l3tree.Leaf, src Source) ([]Candidate, Stats) {
	stats := Stats{Cells: len(leaves)}
	if len(leaves) == 0 {
		return nil, stats
	}

	order := make([]int, len(leaves))
	for i := range order {
		order[i] = i
	}
	g := newCellGrid(src.Divider, cr.WrapX)
	slices.SortFunc(order, func(a, b int) int { return g.linear(leaves[a].Cell) - g.linear(leaves[b].Cell) })

	byCell := make(map[cellKey]int, len(leaves))
	for _, i := range order {
		byCell[leaves[i].Cell] = i
	}
	offsets := cr.neighbourOffsets(src.Divider.Root().N)
	neighbours := func(i int, visit func(j int)) {
		for _, off := range offsets {
			if k, ok := g.shift(leaves[i].Cell, off); ok {
				if j, ok := byCell[k]; ok {
					visit(j)
				}
			}
		}
	}

	if cr.OnlyLocalMax {
		var shoulders []int
		for _, i := range order {
			dominated := false
			neighbours(i, func(j int) {
				if leaves[j].Weight > leaves[i].Weight {
					dominated = true
				}
			})
			if dominated {
				shoulders = append(shoulders, i)
			}
		}
		for _, i := range shoulders {
			tracef("cell %v weight %.3g dropped as shoulder", leaves[i].Cell, leaves[i].Weight)
			delete(byCell, leaves[i].Cell)
		}
		stats.Shoulders = len(shoulders)
	}
	regions := cr.group(leaves, order, byCell, g, neighbours, &stats)

	var cands []Candidate
	if cr.Exclusive {
		slices.SortStableFunc(regions, func(a, b *region) int {
			if a.total != b.total {
				if a.total > b.total {
					return -1
				}
				return 1
			}
			return a.first - b.first
		})
		claimed := roaring.New()
		for _, r := range regions {
			r.hits.AndNot(claimed)
			claimed.Or(r.hits)
		}
		slices.SortFunc(regions, func(a, b *region) int { return a.first - b.first })
	}
	for _, r := range regions {
		if r.hits.IsEmpty() {
			stats.Empty++
			continue
		}
		cands = append(cands, cr.candidate(leaves, r, src))
	}
	diagf("connected regions: %d cells, %d regions, %d candidates", stats.Cells, stats.Regions, len(cands))
	return cands, stats
}

// group forms connected components over the cells still in byCell, in
// increasing order of their lowest cell.
func (cr ConnectedRegions) group(leaves []l3tree.Leaf, order []int, byCell map[cellKey]int,
	g cellGrid, neighbours func(int, func(int)), stats *Stats) []*region {
	seen := make([]bool, len(leaves))
	var out []*region
	for _, i := range order {
		if _, ok := byCell[leaves[i].Cell]; !ok || seen[i] {
			continue
		}
		seen[i] = true
		comp := []int{i}
		for q := 0; q < len(comp); q++ {
			neighbours(comp[q], func(j int) {
				if !seen[j] {
					seen[j] = true
					comp = append(comp, j)
				}
			})
		}
		stats.Regions++
		if len(comp) < cr.MinCells {
			tracef("region at %v with %d cells below minimum %d", leaves[i].Cell, len(comp), cr.MinCells)
			stats.Small++
			continue
		}
		slices.SortFunc(comp, func(a, b int) int { return g.linear(leaves[a].Cell) - g.linear(leaves[b].Cell) })

		r := &region{leaves: comp, first: g.linear(leaves[i].Cell), hits: roaring.New()}
		for _, j := range comp {
			r.total += leaves[j].Weight
			for _, item := range leaves[j].Items {
				r.hits.Add(uint32(item))
			}
		}
		out = append(out, r)
	}
	return out
}

func (cr ConnectedRegions) candidate(leaves []l3tree.Leaf, r *region, src Source) Candidate {
	c := Candidate{TotalWeight: r.total}
	peak := -1
	for _, j := range r.leaves {
		l := leaves[j]
		c.Cells = append(c.Cells, Cell{Index: l.Cell, Box: l.Box, Weight: l.Weight})
		if peak < 0 || l.Weight > leaves[peak].Weight {
			peak = j
		}
	}
	c.Weight = leaves[peak].Weight
	c.Box = boundingBox(c.Cells)

	if cr.Center == CenterPeak {
		c.Params = leaves[peak].Box.Center()
	} else {
		c.Params = cr.centroid(c.Cells, src.Divider)
	}
	finish(&c, r.hits, src.Hits, cr.SelectPerStratum)
	return c
}

// centroid returns the weighted mean of the cell centres. With WrapX the
// axis 0 coordinate is unwrapped around the first cell and folded back.
func (cr ConnectedRegions) centroid(cells []Cell, div l1axes.Divider) [l1axes.MaxDims]float64 {
	lower, span := axisSpan(div)
	ref := cells[0].Box.Center()[0]

	var sum [l1axes.MaxDims]float64
	sumW := 0.0
	for _, c := range cells {
		sumW += c.Weight
	}
	for _, c := range cells {
		w := c.Weight
		if sumW <= 0 {
			w = 1
		}
		ctr := c.Box.Center()
		if cr.WrapX {
			if ctr[0]-ref > span/2 {
				ctr[0] -= span
			} else if ref-ctr[0] > span/2 {
				ctr[0] += span
			}
		}
		for d := range sum {
			sum[d] += w * ctr[d]
		}
	}
	if sumW <= 0 {
		sumW = float64(len(cells))
	}
	for d := range sum {
		sum[d] /= sumW
	}
	if cr.WrapX {
		sum[0] = wrapInto(sum[0], lower, span)
	}
	return sum
}

func (cr ConnectedRegions) neighbourOffsets(dims int) [][l1axes.MaxDims]int {
	var out [][l1axes.MaxDims]int
	if dims == 1 {
		return [][l1axes.MaxDims]int{{1, 0, 0}, {-1, 0, 0}}
	}
	for _, o := range cr.Connect.offsets() {
		out = append(out, [l1axes.MaxDims]int{o[0], o[1], 0})
	}
	if dims == 3 {
		out = append(out, [l1axes.MaxDims]int{0, 0, 1}, [l1axes.MaxDims]int{0, 0, -1})
	}
	return out
}

// cellGrid maps leaf cells to linear indices and neighbours.
type cellGrid struct {
	n    [l1axes.MaxDims]int
	wrap bool
}

func newCellGrid(div l1axes.Divider, wrap bool) cellGrid {
	g := cellGrid{wrap: wrap}
	dims := div.Root().N
	for d := range g.n {
		g.n[d] = 1
		if d < dims {
			g.n[d] = div.Cells(d)
		}
	}
	return g
}

func (g cellGrid) linear(c cellKey) int {
	return (c[0]*g.n[1]+c[1])*g.n[2] + c[2]
}

func (g cellGrid) shift(c cellKey, off [l1axes.MaxDims]int) (cellKey, bool) {
	var out cellKey
	for d := range out {
		v := c[d] + off[d]
		if d == 0 && g.wrap {
			v = ((v % g.n[0]) + g.n[0]) % g.n[0]
		} else if v < 0 || v >= g.n[d] {
			return out, false
		}
		out[d] = v
	}
	return out, true
}
