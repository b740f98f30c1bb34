package l3tree

import (
	"errors"
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/banshee-data/houghtrack/internal/hough/l1axes"
	"github.com/banshee-data/houghtrack/internal/hough/l2hits"
)

// ErrInvalidOptions is returned by New for incomplete tree options.
var ErrInvalidOptions = errors.New("invalid tree options")

// PlaneMode selects how much of the occupancy plane Find writes.
type PlaneMode int

const (
	// PlaneOff writes nothing.
	PlaneOff PlaneMode = iota
	// PlaneAccepted writes the weight of accepted leaves.
	PlaneAccepted
	// PlaneFull also descends rejected nodes with non-zero weight so that
	// every populated leaf appears in the plane. It never adds leaves to
	// the Find result.
	PlaneFull
)

func (m PlaneMode) String() string {
	switch m {
	case PlaneAccepted:
		return "accepted"
	case PlaneFull:
		return "full"
	default:
		return "off"
	}
}

// Options configures a Tree.
type Options struct {
	Divider    l1axes.Divider
	Projection l2hits.Projection
	Plane      PlaneMode
	Observer   Observer
}

// Leaf is an accepted node at the deepest level.
type Leaf struct {
	Box    l1axes.Box
	Cell   [l1axes.MaxDims]int
	Weight float64
	Strata uint64
	// Items are indices into the seeded hit slice, ascending.
	Items []int
}

// Stats counts tree work since the last Seed.
type Stats struct {
	Seeded   int // hits assigned to the root
	Dropped  int // hits never assigned (invalid stratum or outside root)
	Visited  int
	Pruned   int
	Expanded int // nodes allocated in the arena
	Tests    int // hit-to-box compatibility tests
	Leaves   int
}

type node struct {
	box        l1axes.Box
	level      int
	items      *roaring.Bitmap
	strata     uint64
	weight     float64
	firstChild int
	nChildren  int
}

// Tree is a weighted search tree. It is not safe for concurrent use; each
// goroutine owns its own Tree.
type Tree struct {
	div        l1axes.Divider
	proj       l2hits.Projection
	leafFilter l2hits.LeafFilter
	plane      PlaneMode
	observer   Observer

	nodes  []node
	hits   []l2hits.Hit
	grid   *Grid
	stats  Stats
	seeded bool

	// scratch for per-stratum max weight
	stratumMax [l2hits.MaxStrata]float64
}

// New returns an empty tree. The arena is built lazily by Seed.
func New(opts Options) (*Tree, error) {
	if opts.Divider == nil {
		return nil, fmt.Errorf("%w: divider is required", ErrInvalidOptions)
	}
	if opts.Projection == nil {
		return nil, fmt.Errorf("%w: projection is required", ErrInvalidOptions)
	}
	t := &Tree{
		div:      opts.Divider,
		proj:     opts.Projection,
		plane:    opts.Plane,
		observer: opts.Observer,
	}
	if lf, ok := opts.Projection.(l2hits.LeafFilter); ok {
		t.leafFilter = lf
	}
	if opts.Plane != PlaneOff {
		rows := opts.Divider.Cells(0)
		cols := 1
		if opts.Divider.Root().N > 1 {
			cols = opts.Divider.Cells(1)
		}
		t.grid = NewGrid(rows, cols)
	}
	return t, nil
}

func (t *Tree) Divider() l1axes.Divider { return t.div }
func (t *Tree) Projection() l2hits.Projection { return t.proj }
func (t *Tree) Hits() []l2hits.Hit { return t.hits }
func (t *Tree) Stats() Stats { return t.stats }

// NodeCount returns the arena size.
func (t *Tree) NodeCount() int { return len(t.nodes) }

// SetObserver replaces the node observer; nil disables it.
func (t *Tree) SetObserver(o Observer) { t.observer = o }

// Grid returns the occupancy plane, or nil when the plane is off.
func (t *Tree) Grid() *Grid { return t.grid }

// Seed assigns every compatible hit to the root box. The tree keeps a
// reference to hits until the next Seed, Fell or Raze; the caller must not
// modify the slice in between.
func (t *Tree) Seed(hits []l2hits.Hit) {
	if len(t.nodes) == 0 {
		t.nodes = append(t.nodes, node{
			box:        t.div.Root(),
			items:      roaring.New(),
			firstChild: -1,
		})
	} else if t.seeded {
		diagf("seed without fell: resetting previous event")
		t.Fell()
	}
	t.hits = hits
	t.stats = Stats{}
	t.seeded = true

	root := &t.nodes[0]
	leaf := t.div.MaxLevel() == 0
	clear(t.stratumMax[:])
	for i := range hits {
		h := &hits[i]
		if !h.ValidStratum() {
			opsf("hit %d: stratum %d outside [0, %d), dropped", h.ID, h.Stratum, l2hits.MaxStrata)
			t.stats.Dropped++
			continue
		}
		t.stats.Tests++
		if !t.compatible(h, root.box, leaf) {
			t.stats.Dropped++
			continue
		}
		root.items.Add(uint32(i))
		t.account(h)
		t.stats.Seeded++
	}
	root.strata, root.weight = t.collect()
	diagf("seeded %d of %d hits, root weight %.3g", t.stats.Seeded, len(hits), root.weight)
}

// Fell drops all item sets and weights but keeps the arena for reuse.
func (t *Tree) Fell() {
	for i := range t.nodes {
		n := &t.nodes[i]
		n.items.Clear()
		n.strata = 0
		n.weight = 0
	}
	if t.grid != nil {
		t.grid.Reset()
	}
	t.hits = nil
	t.seeded = false
}

// Raze drops the arena. The next Seed rebuilds the root.
func (t *Tree) Raze() {
	t.nodes = nil
	t.hits = nil
	t.seeded = false
	if t.grid != nil {
		t.grid.Reset()
	}
}

// Find returns every accepted leaf, sorted by cell (axis 0 outermost).
// The search is exhaustive: rejected nodes are pruned with their subtree,
// accepted nodes are expanded down to the deepest level.
func (t *Tree) Find(acc l2hits.Acceptance) []Leaf {
	if !t.seeded || len(t.nodes) == 0 {
		return nil
	}
	if t.grid != nil {
		t.grid.Reset()
	}
	var out []Leaf
	t.visit(0, acc, false, &out)
	slices.SortFunc(out, func(a, b Leaf) int {
		for d := 0; d < l1axes.MaxDims; d++ {
			if a.Cell[d] != b.Cell[d] {
				return a.Cell[d] - b.Cell[d]
			}
		}
		return 0
	})
	t.stats.Leaves += len(out)
	diagf("find: %d leaves, %d visited, %d pruned, %d nodes", len(out), t.stats.Visited, t.stats.Pruned, len(t.nodes))
	return out
}

// visit walks the subtree at idx. planeOnly marks a descent below a
// rejected node that only fills the occupancy plane.
func (t *Tree) visit(idx int, acc l2hits.Acceptance, planeOnly bool, out *[]Leaf) {
	n := t.nodes[idx]
	t.stats.Visited++
	accepted := !planeOnly && acc.Accept(n.weight, n.strata)
	isLeaf := n.level == t.div.MaxLevel()

	if t.observer != nil {
		t.observer.OnNode(NodeEvent{
			Level:    n.level,
			Box:      n.box,
			Weight:   n.weight,
			Strata:   n.strata,
			Items:    int(n.items.GetCardinality()),
			Accepted: accepted,
			Leaf:     isLeaf,
		})
	}
	tracef("node %d level %d %s weight %.3g accepted %t", idx, n.level, n.box, n.weight, accepted)

	if !accepted {
		if !planeOnly {
			t.stats.Pruned++
		}
		if t.plane != PlaneFull || n.weight <= 0 {
			return
		}
		planeOnly = true
	}

	if isLeaf {
		if t.grid != nil && (accepted || t.plane == PlaneFull) {
			cell := n.box.Cell()
			t.grid.raise(cell[0], cell[1], n.weight)
		}
		if accepted {
			*out = append(*out, t.leafOf(n))
		}
		return
	}

	first, count := t.expand(idx)
	for c := first; c < first+count; c++ {
		t.fill(c, idx)
		t.visit(c, acc, planeOnly, out)
	}
}

// expand returns the child range of idx, allocating it on first use.
func (t *Tree) expand(idx int) (first, count int) {
	if t.nodes[idx].nChildren > 0 {
		return t.nodes[idx].firstChild, t.nodes[idx].nChildren
	}
	parent := t.nodes[idx]
	boxes := t.div.Divide(parent.box, parent.level)
	first = len(t.nodes)
	for _, b := range boxes {
		t.nodes = append(t.nodes, node{
			box:        b,
			level:      parent.level + 1,
			items:      roaring.New(),
			firstChild: -1,
		})
	}
	t.nodes[idx].firstChild = first
	t.nodes[idx].nChildren = len(boxes)
	t.stats.Expanded += len(boxes)
	return first, len(boxes)
}

// fill re-tests every item of the parent against the child box.
func (t *Tree) fill(child, parent int) {
	c := &t.nodes[child]
	c.items.Clear()
	leaf := c.level == t.div.MaxLevel()
	clear(t.stratumMax[:])
	t.nodes[parent].items.Iterate(func(i uint32) bool {
		h := &t.hits[i]
		t.stats.Tests++
		if t.compatible(h, c.box, leaf) {
			c.items.Add(i)
			t.account(h)
		}
		return true
	})
	c.strata, c.weight = t.collect()
}

func (t *Tree) compatible(h *l2hits.Hit, b l1axes.Box, leaf bool) bool {
	if !t.proj.Intersects(h, b) {
		return false
	}
	if leaf && t.leafFilter != nil {
		return t.leafFilter.AcceptAtLeaf(h, b)
	}
	return true
}

func (t *Tree) account(h *l2hits.Hit) {
	if w := h.EffectiveWeight(); w > t.stratumMax[h.Stratum] {
		t.stratumMax[h.Stratum] = w
	}
}

// collect turns the scratch per-stratum maxima into a mask and weight.
func (t *Tree) collect() (strata uint64, weight float64) {
	for s, w := range t.stratumMax {
		if w > 0 {
			strata |= 1 << uint(s)
			weight += w
		}
	}
	return strata, weight
}

func (t *Tree) leafOf(n node) Leaf {
	items := make([]int, 0, n.items.GetCardinality())
	n.items.Iterate(func(i uint32) bool {
		items = append(items, int(i))
		return true
	})
	return Leaf{
		Box:    n.box,
		Cell:   n.box.Cell(),
		Weight: n.weight,
		Strata: n.strata,
		Items:  items,
	}
}
