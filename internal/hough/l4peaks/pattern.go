package l4peaks

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/banshee-data/houghtrack/internal/hough/l1axes"
	"github.com/banshee-data/houghtrack/internal/hough/l2hits"
	"github.com/banshee-data/houghtrack/internal/hough/l3tree"
)

// PatternClustering is the hardware oriented peak finder. The leaf plane
// is folded into 2x2 squares, each holding a 4 bit pattern
//
//	2 3
//	0 1
//
// and clusters are grown from lower left corner squares inside a bounded
// ClusterSizeX x ClusterSizeY window of squares. The centre is the mean of
// the top right and bottom left corner cells. Only the first two axes are
// used.
type PatternClustering struct {
	ClusterSizeX int
	ClusterSizeY int
	Connect      Connectivity
	// MinCells > 1 skips clusters whose two corners coincide.
	MinCells int
	WrapX    bool
	// HitRelationsFromCorners takes the hits of the two corner cells.
	// Otherwise every hit crossing the corner-to-corner window is related.
	HitRelationsFromCorners bool
	SelectPerStratum        bool
}

func (pc PatternClustering) Validate() error {
	if pc.ClusterSizeX < 1 || pc.ClusterSizeY < 1 {
		return fmt.Errorf("%w: cluster size must be positive, got %dx%d", ErrInvalidExtractor, pc.ClusterSizeX, pc.ClusterSizeY)
	}
	if !pc.Connect.Valid() {
		return fmt.Errorf("%w: connect must be 4, 6 or 8, got %d", ErrInvalidExtractor, pc.Connect)
	}
	return nil
}

// squarePlane is the folded 2x2 plane.
type squarePlane struct {
	nx, ny int // squares per axis
	wrap   bool
	bits   []uint8
}

func (p *squarePlane) at(ix, iy int) uint8 {
	if iy < 0 || iy >= p.ny {
		return 0
	}
	if p.wrap {
		ix = ((ix % p.nx) + p.nx) % p.nx
	} else if ix < 0 || ix >= p.nx {
		return 0
	}
	return p.bits[ix*p.ny+iy]
}

func bit(p uint8, i uint) bool { return (p>>i)&1 == 1 }

// connectedLR reports whether square l connects to square r on its right.
func (pc PatternClustering) connectedLR(l, r uint8) bool {
	direct := (bit(l, 3) && bit(r, 2)) || (bit(l, 1) && bit(r, 0))
	rise := bit(l, 1) && bit(r, 2)
	fall := bit(l, 3) && bit(r, 0)
	return pc.combine(direct, rise, fall)
}

// connectedUD reports whether square d connects to square u above it.
func (pc PatternClustering) connectedUD(d, u uint8) bool {
	direct := (bit(u, 0) && bit(d, 2)) || (bit(u, 1) && bit(d, 3))
	rise := bit(u, 1) && bit(d, 2)
	fall := bit(u, 0) && bit(d, 3)
	return pc.combine(direct, rise, fall)
}

// connectedDiag reports whether square ld connects to square ru at its
// upper right.
func (pc PatternClustering) connectedDiag(ld, ru uint8) bool {
	if pc.Connect == Connect4 {
		return false
	}
	return bit(ru, 0) && bit(ld, 3)
}

func (pc PatternClustering) combine(direct, rise, fall bool) bool {
	switch pc.Connect {
	case Connect4:
		return direct
	case Connect8:
		return direct || rise || fall
	default:
		return direct || rise
	}
}

func (pc PatternClustering) Extract(leaves []l3tree.Leaf, src Source) ([]Candidate, Stats) {
	stats := Stats{Cells: len(leaves)}
	if len(leaves) == 0 {
		return nil, stats
	}
	if src.Divider.Root().N < 2 {
		opsf("pattern clustering needs two axes, got %d", src.Divider.Root().N)
		return nil, stats
	}
	ncx, ncy := src.Divider.Cells(0), src.Divider.Cells(1)
	plane := &squarePlane{nx: (ncx + 1) / 2, ny: (ncy + 1) / 2, wrap: pc.WrapX}
	plane.bits = make([]uint8, plane.nx*plane.ny)
	leafAt := make(map[[2]int]int, len(leaves))
	for i, l := range leaves {
		ix, iy := l.Cell[0], l.Cell[1]
		plane.bits[(ix/2)*plane.ny+iy/2] |= 1 << uint(ix%2+2*(iy%2))
		leafAt[[2]int{ix, iy}] = i
	}

	rX, rY := pc.ClusterSizeX, pc.ClusterSizeY
	var cands []Candidate
	for ix := 0; ix < plane.nx; ix++ {
		for iy := 0; iy < plane.ny; iy++ {
			p := plane.at(ix, iy)
			if p == 0 {
				continue
			}
			// Only lower left corners start a cluster.
			if pc.connectedLR(plane.at(ix-1, iy), p) ||
				(iy > 0 && pc.connectedUD(plane.at(ix, iy-1), p)) ||
				(iy > 0 && pc.connectedDiag(plane.at(ix-1, iy-1), p)) {
				continue
			}
			pattern := pc.grow(plane, ix, iy)
			stats.Regions++
			if pc.overflows(plane, pattern, ix, iy) {
				tracef("cluster at square %d,%d extends beyond %dx%d", ix, iy, rX, rY)
				stats.Overflow++
			}

			tr2, amb := pc.topRightSquare(pattern)
			tr, amb2 := topRightCorner(pattern[tr2])
			bl, amb3 := bottomLeftCorner(pattern[0])
			if amb || amb2 || amb3 {
				stats.Ambiguous++
			}
			ixTR := 2*(tr2%rX) + tr%2
			iyTR := 2*(tr2/rX) + tr/2
			ixBL := bl % 2
			iyBL := bl / 2
			if pc.MinCells > 1 && ixTR == ixBL && iyTR == iyBL {
				tracef("cluster at square %d,%d has a single cell", ix, iy)
				stats.Small++
				continue
			}

			c, ok := pc.candidate(leaves, leafAt, src, pattern, ix, iy,
				[2]int{2*ix + ixTR, 2*iy + iyTR}, [2]int{2*ix + ixBL, 2*iy + iyBL})
			if !ok {
				stats.Empty++
				continue
			}
			cands = append(cands, c)
		}
	}
	diagf("pattern clustering: %d cells, %d clusters, %d candidates", stats.Cells, stats.Regions, len(cands))
	return cands, stats
}

// grow collects the squares connected to the corner square inside the window.
func (pc PatternClustering) grow(plane *squarePlane, ix, iy int) []uint8 {
	rX, rY := pc.ClusterSizeX, pc.ClusterSizeY
	pattern := make([]uint8, rX*rY)
	pattern[0] = plane.at(ix, iy)
	for ix2 := 0; ix2 < rX; ix2++ {
		for iy2 := 0; iy2 < rY; iy2++ {
			y := iy + iy2
			if y >= plane.ny {
				continue
			}
			ip := ix2 + rX*iy2
			right := ix + ix2
			left := right - 1
			if (ix2 > 0 && pattern[ip-1] != 0 && pc.connectedLR(plane.at(left, y), plane.at(right, y))) ||
				(iy2 > 0 && pattern[ip-rX] != 0 && pc.connectedUD(plane.at(right, y-1), plane.at(right, y))) ||
				(ix2 > 0 && iy2 > 0 && pattern[ip-rX-1] != 0 && pc.connectedDiag(plane.at(left, y-1), plane.at(right, y))) {
				pattern[ip] = plane.at(right, y)
			}
		}
	}
	return pattern
}

// overflows reports whether the cluster continues right of or above the window.
func (pc PatternClustering) overflows(plane *squarePlane, pattern []uint8, ix, iy int) bool {
	rX, rY := pc.ClusterSizeX, pc.ClusterSizeY
	for iy2 := 0; iy2 < rY; iy2++ {
		if pattern[rX-1+rX*iy2] == 0 {
			continue
		}
		right := ix + rX
		y := iy + iy2
		if pc.connectedLR(plane.at(right-1, y), plane.at(right, y)) ||
			(y+1 < plane.ny && pc.connectedDiag(plane.at(right-1, y), plane.at(right, y+1))) {
			return true
		}
	}
	if iy+rY < plane.ny {
		for ix2 := 0; ix2 < rX; ix2++ {
			if pattern[ix2+rX*(rY-1)] == 0 {
				continue
			}
			left := ix + ix2
			if pc.connectedUD(plane.at(left, iy+rY-1), plane.at(left, iy+rY)) ||
				pc.connectedDiag(plane.at(left, iy+rY-1), plane.at(left+1, iy+rY)) {
				return true
			}
		}
	}
	return false
}

// topRightSquare scans from the top right of the window for an active
// square. ambiguous is set when another square lies lower and further right.
func (pc PatternClustering) topRightSquare(pattern []uint8) (index int, ambiguous bool) {
	rX := pc.ClusterSizeX
	for index = len(pattern) - 1; index > 0; index-- {
		if pattern[index] == 0 {
			continue
		}
		ix, iy := index%rX, index/rX
		if ix < rX-1 && iy > 0 {
			for i2 := index - 1; i2 > 0; i2-- {
				if pattern[i2] != 0 && i2/rX < iy && i2%rX > ix {
					ambiguous = true
					break
				}
			}
		}
		return index, ambiguous
	}
	return 0, false
}

func topRightCorner(p uint8) (corner int, ambiguous bool) {
	switch {
	case bit(p, 3):
		return 3, false
	case bit(p, 1):
		return 1, bit(p, 2)
	case bit(p, 2):
		return 2, false
	}
	return 0, false
}

func bottomLeftCorner(p uint8) (corner int, ambiguous bool) {
	switch {
	case bit(p, 0):
		return 0, false
	case bit(p, 2):
		return 2, bit(p, 1)
	case bit(p, 1):
		return 1, false
	}
	return 3, false
}

func (pc PatternClustering) candidate(leaves []l3tree.Leaf, leafAt map[[2]int]int, src Source,
	pattern []uint8, ix, iy int, trCell, blCell [2]int) (Candidate, bool) {
	ncx := src.Divider.Cells(0)
	lower, span := axisSpan(src.Divider)

	wrapped := false
	if pc.WrapX && trCell[0] >= ncx {
		trCell[0] -= ncx
		wrapped = true
	}
	ti, ok1 := leafAt[trCell]
	bi, ok2 := leafAt[blCell]
	if !ok1 || !ok2 {
		opsf("pattern corner without leaf: tr %v bl %v", trCell, blCell)
		return Candidate{}, false
	}
	trBox, blBox := leaves[ti].Box, leaves[bi].Box
	shift := 0.0
	if wrapped {
		shift = span
	}

	var c Candidate
	trC, blC := trBox.Center(), blBox.Center()
	trC[0] += shift
	for d := 0; d < 2; d++ {
		c.Params[d] = 0.5 * (trC[d] + blC[d])
	}
	if pc.WrapX {
		c.Params[0] = wrapInto(c.Params[0], lower, span)
	}

	for ip, sq := range pattern {
		for b := uint(0); b < 4; b++ {
			if !bit(sq, b) {
				continue
			}
			cx := 2*(ix+ip%pc.ClusterSizeX) + int(b%2)
			cy := 2*(iy+ip/pc.ClusterSizeX) + int(b/2)
			if pc.WrapX {
				cx %= ncx
			}
			if li, ok := leafAt[[2]int{cx, cy}]; ok {
				l := leaves[li]
				c.Cells = append(c.Cells, Cell{Index: l.Cell, Box: l.Box, Weight: l.Weight})
				c.TotalWeight += l.Weight
				c.Weight = math.Max(c.Weight, l.Weight)
			}
		}
	}
	c.Box = boundingBox(c.Cells)

	bm := roaring.New()
	if pc.HitRelationsFromCorners {
		for _, li := range []int{ti, bi} {
			for _, item := range leaves[li].Items {
				bm.Add(uint32(item))
			}
		}
	} else {
		window := l1axes.Box{N: 2}
		for d := 0; d < 2; d++ {
			s := 0.0
			if d == 0 {
				s = shift
			}
			window.Ranges[d] = l1axes.Range{
				Lower: math.Min(trBox.Lower(d)+s, blBox.Lower(d)),
				Upper: math.Max(trBox.Upper(d)+s, blBox.Upper(d)),
			}
		}
		lf, _ := src.Projection.(l2hits.LeafFilter)
		for i := range src.Hits {
			h := &src.Hits[i]
			if !h.ValidStratum() || !src.Projection.Intersects(h, window) {
				continue
			}
			if lf != nil && !lf.AcceptAtLeaf(h, window) {
				continue
			}
			bm.Add(uint32(i))
		}
	}
	if bm.IsEmpty() {
		return Candidate{}, false
	}
	finish(&c, bm, src.Hits, pc.SelectPerStratum)
	return c, true
}
