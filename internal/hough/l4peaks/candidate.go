package l4peaks

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/banshee-data/houghtrack/internal/hough/l1axes"
	"github.com/banshee-data/houghtrack/internal/hough/l2hits"
	"github.com/banshee-data/houghtrack/internal/hough/l3tree"
)

// ErrInvalidExtractor is returned by Validate for unusable settings.
var ErrInvalidExtractor = errors.New("invalid peak extractor")

// Connectivity is the adjacency rule between grid cells.
//
//	4: left, right, up, down
//	6: 4 plus the rising diagonal (+1,+1) and (-1,-1)
//	8: 6 plus the falling diagonal (+1,-1) and (-1,+1)
type Connectivity int

const (
	Connect4 Connectivity = 4
	Connect6 Connectivity = 6
	Connect8 Connectivity = 8
)

func (c Connectivity) Valid() bool { return c == Connect4 || c == Connect6 || c == Connect8 }

// offsets returns the neighbour offsets in the (axis 0, axis 1) plane.
func (c Connectivity) offsets() [][2]int {
	out := [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	if c >= Connect6 {
		out = append(out, [2]int{1, 1}, [2]int{-1, -1})
	}
	if c >= Connect8 {
		out = append(out, [2]int{1, -1}, [2]int{-1, 1})
	}
	return out
}

// Source is what an extractor may consult besides the leaves.
type Source struct {
	Hits       []l2hits.Hit
	Projection l2hits.Projection
	Divider    l1axes.Divider
}

// Cell is one leaf that ended up in a candidate.
type Cell struct {
	Index  [l1axes.MaxDims]int
	Box    l1axes.Box
	Weight float64
}

// Candidate is one extracted track candidate.
type Candidate struct {
	// Params is the estimated parameter point (region centre).
	Params [l1axes.MaxDims]float64
	// Box bounds the cells of the region (without wrap-around).
	Box   l1axes.Box
	Cells []Cell
	// Hits are indices into the seeded hit slice, ascending.
	Hits []int
	// Secondary holds hits of the region not selected by the one hit per
	// stratum rule.
	Secondary []int
	// Weight is the heaviest cell weight, TotalWeight the sum over cells.
	Weight      float64
	TotalWeight float64
	Strata      uint64
}

// AllHits returns Hits followed by Secondary.
func (c *Candidate) AllHits() []int {
	out := make([]int, 0, len(c.Hits)+len(c.Secondary))
	out = append(out, c.Hits...)
	return append(out, c.Secondary...)
}

func (c *Candidate) String() string {
	return fmt.Sprintf("Candidate{params=%.4g,%.4g cells=%d hits=%d+%d w=%.3g}",
		c.Params[0], c.Params[1], len(c.Cells), len(c.Hits), len(c.Secondary), c.Weight)
}

// Stats counts extractor decisions for one call.
type Stats struct {
	Cells     int // accepted leaves offered
	Shoulders int // cells dropped by the local maximum filter
	Regions   int // connected regions or pattern clusters formed
	Small     int // regions dropped by the cell count cut
	Empty     int // candidates dropped for lack of hits
	Ambiguous int // pattern corners that were not unique
	Overflow  int // pattern clusters extending beyond the window
}

// Extractor turns accepted leaves into candidates. Empty input yields no
// candidates.
type Extractor interface {
	Extract(leaves []l3tree.Leaf, src Source) ([]Candidate, Stats)
	Validate() error
}

// selectPerStratum keeps one hit per stratum (higher Priority, then higher
// ID) and returns the rest as secondary. Both lists keep input order.
func selectPerStratum(hits []l2hits.Hit, idx []int) (selected, secondary []int) {
	best := make(map[int]int, len(idx))
	for _, i := range idx {
		s := hits[i].Stratum
		j, ok := best[s]
		if !ok || better(&hits[i], &hits[j]) {
			best[s] = i
		}
	}
	for _, i := range idx {
		if best[hits[i].Stratum] == i {
			selected = append(selected, i)
		} else {
			secondary = append(secondary, i)
		}
	}
	return selected, secondary
}

func better(a, b *l2hits.Hit) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID > b.ID
}

// finish fills the hit lists and stratum mask of c from bm.
func finish(c *Candidate, bm *roaring.Bitmap, hits []l2hits.Hit, perStratum bool) {
	idx := make([]int, 0, bm.GetCardinality())
	var strata uint64
	bm.Iterate(func(i uint32) bool {
		idx = append(idx, int(i))
		strata |= hits[i].StratumBit()
		return true
	})
	c.Strata = strata
	if perStratum {
		c.Hits, c.Secondary = selectPerStratum(hits, idx)
		return
	}
	c.Hits = idx
}

// boundingBox returns the smallest box holding every cell box.
func boundingBox(cells []Cell) l1axes.Box {
	b := cells[0].Box
	for _, c := range cells[1:] {
		for d := 0; d < b.N; d++ {
			r := &b.Ranges[d]
			o := c.Box.Ranges[d]
			if o.Lower < r.Lower {
				r.Lower, r.First = o.Lower, o.First
			}
			if o.Upper > r.Upper {
				r.Upper, r.Last = o.Upper, o.Last
			}
		}
	}
	return b
}

// axisSpan returns the root extent of axis 0, used for wrap-around.
func axisSpan(div l1axes.Divider) (lower, span float64) {
	root := div.Root()
	return root.Lower(0), root.Upper(0) - root.Lower(0)
}

// wrapInto folds x into [lower, lower+span).
func wrapInto(x, lower, span float64) float64 {
	for x >= lower+span {
		x -= span
	}
	for x < lower {
		x += span
	}
	return x
}
