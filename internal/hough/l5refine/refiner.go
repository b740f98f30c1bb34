package l5refine

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/banshee-data/houghtrack/internal/hough/l2hits"
	"github.com/banshee-data/houghtrack/internal/hough/l4peaks"
)

// ErrInvalidRefiner is returned by NewRefiner for unusable settings.
var ErrInvalidRefiner = errors.New("invalid refiner config")

// Config holds the post-processing thresholds.
type Config struct {
	// OutlierFactors are successive rejection passes: a hit is dropped when
	// its residual exceeds factor * max(drift, ResidualFloor).
	OutlierFactors []float64
	ResidualFloor  float64
	// MinHits is the smallest hit count a track keeps.
	MinHits int
	// MergeOverlap is the shared hit fraction (of the smaller track) above
	// which two tracks merge. Zero disables overlap merging.
	MergeOverlap float64
	// MinMergeProbability merges two tracks whose combined fit reaches this
	// chi2 probability and holds more hits than either. Zero disables it.
	MinMergeProbability float64
	// MinMergeHits is the smallest combined hit count a probability merge
	// accepts.
	MinMergeHits int
	// LeftoverFactor offers unused hits to the closest track when their
	// residual is below factor * max(drift, ResidualFloor). Zero disables it.
	LeftoverFactor float64
}

// DefaultConfig returns the standard refinement thresholds.
func DefaultConfig() Config {
	return Config{
		OutlierFactors:      []float64{5, 3, 1, 1},
		ResidualFloor:       0.05,
		MinHits:             5,
		MergeOverlap:        0.5,
		MinMergeProbability: 0.01,
		MinMergeHits:        15,
		LeftoverFactor:      1,
	}
}

func (c Config) Validate() error {
	for i, f := range c.OutlierFactors {
		if !(f > 0) {
			return fmt.Errorf("%w: outlier factor %d must be positive, got %g", ErrInvalidRefiner, i, f)
		}
	}
	if c.ResidualFloor < 0 {
		return fmt.Errorf("%w: residual floor must be non-negative, got %g", ErrInvalidRefiner, c.ResidualFloor)
	}
	if c.MinHits < minFitHits {
		return fmt.Errorf("%w: min hits must be at least %d, got %d", ErrInvalidRefiner, minFitHits, c.MinHits)
	}
	if c.MergeOverlap < 0 || c.MergeOverlap > 1 {
		return fmt.Errorf("%w: merge overlap must be in [0, 1], got %g", ErrInvalidRefiner, c.MergeOverlap)
	}
	if c.MinMergeProbability < 0 || c.MinMergeProbability > 1 {
		return fmt.Errorf("%w: merge probability must be in [0, 1], got %g", ErrInvalidRefiner, c.MinMergeProbability)
	}
	if c.MinMergeHits < 0 {
		return fmt.Errorf("%w: min merge hits must be non-negative, got %d", ErrInvalidRefiner, c.MinMergeHits)
	}
	if c.LeftoverFactor < 0 {
		return fmt.Errorf("%w: leftover factor must be non-negative, got %g", ErrInvalidRefiner, c.LeftoverFactor)
	}
	return nil
}

// Track is a refined candidate.
type Track struct {
	l4peaks.Candidate
	Fit    Fit
	Charge int
}

// Stats counts refinement decisions for one call.
type Stats struct {
	Input      int
	Degenerate int // dropped because a fit failed
	TooFew     int // dropped below MinHits
	Outliers   int // hits removed by outlier passes
	Merged     int
	Resolved   int // shared hits removed from all but one track
	Leftovers  int // unused hits attached to a track
	Output     int
}

// Refiner post-processes candidates. It holds no per-event state and may be
// shared by Finders running in separate goroutines.
type Refiner struct {
	cfg    Config
	fitter Fitter
}

// NewRefiner validates cfg. A nil fitter selects Karimaki.
func NewRefiner(cfg Config, fitter Fitter) (*Refiner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fitter == nil {
		fitter = Karimaki{}
	}
	return &Refiner{cfg: cfg, fitter: fitter}, nil
}

func (r *Refiner) Config() Config { return r.cfg }

// work is a track under construction.
type work struct {
	cand l4peaks.Candidate
	hits []int // ascending
	fit  Fit
	dead bool
}

func (r *Refiner) tolerance(h *l2hits.Hit, factor float64) float64 {
	return factor * math.Max(h.DriftLength, r.cfg.ResidualFloor)
}

// Refine fits every candidate and applies outlier removal, merging, shared
// hit resolution and leftover assignment. Candidates that become too small
// or cannot be fitted are dropped; the result never holds a track with
// fewer than MinHits hits.
func (r *Refiner) Refine(cands []l4peaks.Candidate, hits []l2hits.Hit) ([]Track, Stats) {
	stats := Stats{Input: len(cands)}
	ws := make([]*work, 0, len(cands))
	for _, c := range cands {
		idx := c.AllHits()
		slices.Sort(idx)
		idx = slices.Compact(idx)
		w := &work{cand: c, hits: idx}
		if r.settle(w, hits, r.cfg.OutlierFactors, &stats) {
			ws = append(ws, w)
		}
	}

	r.merge(&ws, hits, &stats)
	r.resolveShared(ws, hits, &stats)
	r.assignLeftovers(ws, hits, &stats)

	out := make([]Track, 0, len(ws))
	for _, w := range ws {
		if w.dead {
			continue
		}
		c := w.cand
		c.Hits = w.hits
		c.Secondary = nil
		c.Strata = 0
		for _, i := range w.hits {
			c.Strata |= hits[i].StratumBit()
		}
		out = append(out, Track{Candidate: c, Fit: w.fit, Charge: w.fit.Charge()})
	}
	stats.Output = len(out)
	diagf("refine: %d in, %d out, %d merged, %d outliers, %d leftovers",
		stats.Input, stats.Output, stats.Merged, stats.Outliers, stats.Leftovers)
	return out, stats
}

// settle fits w and runs the given outlier passes, refitting after each.
// It reports false (and marks w dead) when the track cannot survive.
func (r *Refiner) settle(w *work, hits []l2hits.Hit, factors []float64, stats *Stats) bool {
	if !r.refit(w, hits, stats) {
		return false
	}
	for _, factor := range factors {
		kept := w.hits[:0:0]
		for _, i := range w.hits {
			if w.fit.Residual(&hits[i]) <= r.tolerance(&hits[i], factor) {
				kept = append(kept, i)
			}
		}
		if removed := len(w.hits) - len(kept); removed > 0 {
			stats.Outliers += removed
			w.hits = kept
			if !r.refit(w, hits, stats) {
				return false
			}
		}
	}
	return true
}

// refit fits w.hits, marking w dead on failure or when too small.
func (r *Refiner) refit(w *work, hits []l2hits.Hit, stats *Stats) bool {
	if len(w.hits) < r.cfg.MinHits {
		stats.TooFew++
		w.dead = true
		return false
	}
	f, err := r.fitter.Fit(hits, w.hits)
	if err != nil {
		opsf("dropping candidate %s: %v", &w.cand, err)
		stats.Degenerate++
		w.dead = true
		return false
	}
	w.fit = f
	return true
}

func bitmapOf(idx []int) *roaring.Bitmap {
	bm := roaring.New()
	for _, i := range idx {
		bm.Add(uint32(i))
	}
	return bm
}

func indices(bm *roaring.Bitmap) []int {
	out := make([]int, 0, bm.GetCardinality())
	bm.Iterate(func(i uint32) bool {
		out = append(out, int(i))
		return true
	})
	return out
}

// merge joins pairs of tracks until no pair qualifies. A pair is only
// replaced by its union when the union survives the last outlier pass with
// more hits than either track; otherwise both stay as they are.
func (r *Refiner) merge(ws *[]*work, hits []l2hits.Hit, stats *Stats) {
	for changed := true; changed; {
		changed = false
		list := *ws
		for i := 0; i < len(list) && !changed; i++ {
			for j := i + 1; j < len(list) && !changed; j++ {
				a, b := list[i], list[j]
				if a.dead || b.dead {
					continue
				}
				merged, trial, ok := r.tryMerge(a, b, hits)
				if !ok {
					continue
				}
				tracef("merging %s into %s", &b.cand, &a.cand)
				stats.Merged++
				stats.Outliers += trial.Outliers
				b.dead = true
				list[i] = merged
				changed = true
			}
		}
		*ws = slices.DeleteFunc(list, func(w *work) bool { return w.dead })
	}
}

// tryMerge builds the settled union of a and b when the pair qualifies.
// The returned stats hold the outliers the union dropped.
func (r *Refiner) tryMerge(a, b *work, hits []l2hits.Hit) (*work, Stats, bool) {
	union, ok := r.shouldMerge(a, b, hits)
	if !ok {
		return nil, Stats{}, false
	}
	lastPass := r.cfg.OutlierFactors
	if n := len(lastPass); n > 0 {
		lastPass = lastPass[n-1:]
	}
	merged := &work{cand: a.cand, hits: union}
	merged.cand.Cells = append(slices.Clone(a.cand.Cells), b.cand.Cells...)
	merged.cand.TotalWeight += b.cand.TotalWeight
	merged.cand.Weight = math.Max(a.cand.Weight, b.cand.Weight)
	var trial Stats
	if !r.settle(merged, hits, lastPass, &trial) || len(merged.hits) <= max(len(a.hits), len(b.hits)) {
		return nil, Stats{}, false
	}
	return merged, trial, true
}

func (r *Refiner) shouldMerge(a, b *work, hits []l2hits.Hit) ([]int, bool) {
	ba, bb := bitmapOf(a.hits), bitmapOf(b.hits)
	shared := ba.AndCardinality(bb)
	union := roaring.Or(ba, bb)
	smaller := min(len(a.hits), len(b.hits))
	if r.cfg.MergeOverlap > 0 && smaller > 0 && float64(shared)/float64(smaller) >= r.cfg.MergeOverlap {
		return indices(union), true
	}
	if r.cfg.MinMergeProbability <= 0 {
		return nil, false
	}
	idx := indices(union)
	if len(idx) <= max(len(a.hits), len(b.hits)) || len(idx) < r.cfg.MinMergeHits {
		return nil, false
	}
	f, err := r.fitter.Fit(hits, idx)
	if err != nil || f.Probability < r.cfg.MinMergeProbability {
		return nil, false
	}
	return idx, true
}

// resolveShared keeps every hit in the track it fits best (ties go to the
// earlier track) and refits the tracks that lost hits.
func (r *Refiner) resolveShared(ws []*work, hits []l2hits.Hit, stats *Stats) {
	owner := make(map[int]int)
	for t, w := range ws {
		for _, i := range w.hits {
			best, seen := owner[i]
			if !seen || w.fit.Residual(&hits[i]) < ws[best].fit.Residual(&hits[i]) {
				owner[i] = t
			}
		}
	}
	for t, w := range ws {
		kept := w.hits[:0:0]
		for _, i := range w.hits {
			if owner[i] == t {
				kept = append(kept, i)
			}
		}
		if len(kept) == len(w.hits) {
			continue
		}
		stats.Resolved += len(w.hits) - len(kept)
		w.hits = kept
		r.refit(w, hits, stats)
	}
}

// assignLeftovers offers every hit not used by a live track to the track
// with the smallest residual.
func (r *Refiner) assignLeftovers(ws []*work, hits []l2hits.Hit, stats *Stats) {
	if r.cfg.LeftoverFactor <= 0 {
		return
	}
	used := roaring.New()
	for _, w := range ws {
		if !w.dead {
			for _, i := range w.hits {
				used.Add(uint32(i))
			}
		}
	}
	gained := make(map[int]bool)
	for i := range hits {
		h := &hits[i]
		if used.Contains(uint32(i)) || !h.ValidStratum() {
			continue
		}
		best, bestRes := -1, math.Inf(1)
		for t, w := range ws {
			if w.dead {
				continue
			}
			if res := w.fit.Residual(h); res < bestRes {
				best, bestRes = t, res
			}
		}
		if best >= 0 && bestRes <= r.tolerance(h, r.cfg.LeftoverFactor) {
			ws[best].hits = append(ws[best].hits, i)
			gained[best] = true
			stats.Leftovers++
		}
	}
	for t := range ws {
		if gained[t] {
			slices.Sort(ws[t].hits)
			r.refit(ws[t], hits, stats)
		}
	}
}
