package l5refine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/houghtrack/internal/hough/l2hits"
	"github.com/banshee-data/houghtrack/internal/hough/l4peaks"
)

// arc returns n hits on a track leaving the origin at phi0 with signed
// curvature kappa (positive counter-clockwise), one every 5 units of
// radius from 20 on.
func arc(phi0, kappa float64, n int, idBase uint64) []l2hits.Hit {
	hits := make([]l2hits.Hit, 0, n)
	for i := 0; i < n; i++ {
		r := 20 + 5*float64(i)
		phi := phi0 + math.Asin(kappa*r/2)
		hits = append(hits, l2hits.Hit{
			ID:      idBase + uint64(i),
			Stratum: i % 9,
			X:       r * math.Cos(phi),
			Y:       r * math.Sin(phi),
		})
	}
	return hits
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

func cand(hits ...int) l4peaks.Candidate { return l4peaks.Candidate{Hits: hits} }

func TestFitters_RecoverTrack(t *testing.T) {
	tests := []struct {
		name        string
		phi0, kappa float64
		charge      int
	}{
		{"counter-clockwise", 0.7, 1.0 / 200, -1},
		{"clockwise", -2.0, -1.0 / 150, 1},
		{"across the seam", 3.1, 1.0 / 80, -1},
	}
	fitters := map[string]Fitter{"karimaki": Karimaki{}, "algebraic": Algebraic{}}
	for _, tc := range tests {
		for name, fitter := range fitters {
			t.Run(tc.name+"/"+name, func(t *testing.T) {
				hits := arc(tc.phi0, tc.kappa, 12, 0)
				f, err := fitter.Fit(hits, seq(0, len(hits)))
				require.NoError(t, err)
				assert.False(t, f.Line)
				assert.InDelta(t, tc.kappa, f.Curvature, 1e-6*math.Abs(tc.kappa)+1e-9)
				assert.InDelta(t, 0, math.Remainder(f.Phi0-tc.phi0, 2*math.Pi), 1e-6)
				assert.InDelta(t, 0, f.D0, 1e-6)
				assert.Equal(t, 9, f.NDF)
				assert.Less(t, f.Chi2, 1e-6)
				assert.InDelta(t, 1, f.Probability, 1e-9)
				assert.Equal(t, tc.charge, f.Charge())
			})
		}
	}
}

func TestFit_TooFewHits(t *testing.T) {
	hits := arc(0, 0.01, 2, 0)
	_, err := Karimaki{}.Fit(hits, seq(0, 2))
	assert.ErrorIs(t, err, ErrDegenerateFit)
	_, err = Algebraic{}.Fit(hits, seq(0, 2))
	assert.ErrorIs(t, err, ErrDegenerateFit)
}

// ring returns hits at radius 50 exactly. The drift length makes every
// weight exactly one.
func ring() []l2hits.Hit {
	var hits []l2hits.Hit
	for _, p := range [][2]float64{{50, 0}, {0, 50}, {-50, 0}, {30, 40}, {40, 30}} {
		hits = append(hits, l2hits.Hit{X: p[0], Y: p[1], DriftLength: 1 - DefaultSigma})
	}
	return hits
}

func TestKarimaki_SameRadiusIsDegenerate(t *testing.T) {
	_, err := Karimaki{}.Fit(ring(), seq(0, 5))
	assert.ErrorIs(t, err, ErrDegenerateFit)
}

func TestKarimaki_DriftCircles(t *testing.T) {
	const phi0, kappa = 0.4, 1.0 / 200
	truth := circleFit(-math.Sin(phi0)/kappa, math.Cos(phi0)/kappa, 1/kappa, 1, 1)
	hits := arc(phi0, kappa, 20, 0)
	for i := range hits {
		h := &hits[i]
		side := 1.0
		if i%2 == 1 {
			side = -1
		}
		dx, dy := h.X-truth.CenterX, h.Y-truth.CenterY
		norm := math.Hypot(dx, dy)
		h.DriftLength = 0.3
		h.X += side * 0.3 * dx / norm
		h.Y += side * 0.3 * dy / norm
		assert.InDelta(t, 0, truth.Residual(h), 1e-9, "drift circle touches the track")
	}
	f, err := Karimaki{}.Fit(hits, seq(0, len(hits)))
	require.NoError(t, err)
	assert.InEpsilon(t, kappa, f.Curvature, 0.15)
	assert.InDelta(t, phi0, f.Phi0, 0.05)
}

func TestFit_LineDistance(t *testing.T) {
	f := Fit{Phi0: 0, D0: -2, Line: true}
	assert.InDelta(t, 0, f.Distance(5, 2), 1e-12)
	assert.InDelta(t, 1, f.Distance(5, 3), 1e-12)
	assert.Contains(t, f.String(), "Fit{")
}

func testConfig() Config {
	return Config{
		OutlierFactors: []float64{5, 1},
		ResidualFloor:  0.1,
		MinHits:        5,
	}
}

func newRefiner(t *testing.T, cfg Config) *Refiner {
	t.Helper()
	r, err := NewRefiner(cfg, nil)
	require.NoError(t, err)
	return r
}

func TestRefine_RemovesOutlier(t *testing.T) {
	const phi0, kappa = 0.7, 1.0 / 200
	hits := arc(phi0, kappa, 20, 0)
	// Push hit 10 one unit outwards from the track centre.
	cx, cy := -math.Sin(phi0)/kappa, math.Cos(phi0)/kappa
	dx, dy := hits[10].X-cx, hits[10].Y-cy
	norm := math.Hypot(dx, dy)
	hits[10].X += dx / norm
	hits[10].Y += dy / norm
	tracks, stats := newRefiner(t, testConfig()).Refine([]l4peaks.Candidate{cand(seq(0, 20)...)}, hits)
	require.Len(t, tracks, 1)
	assert.Equal(t, 1, stats.Outliers)
	assert.Len(t, tracks[0].Hits, 19)
	assert.NotContains(t, tracks[0].Hits, 10)
	assert.Equal(t, -1, tracks[0].Charge)
	assert.Less(t, tracks[0].Fit.Chi2, 1e-6)
}

func TestRefine_DropsSmallAndDegenerate(t *testing.T) {
	hits := append(arc(0.7, 1.0/200, 4, 0), ring()...)
	tracks, stats := newRefiner(t, testConfig()).Refine([]l4peaks.Candidate{
		cand(0, 1, 2, 3),
		cand(4, 5, 6, 7, 8),
	}, hits)
	assert.Empty(t, tracks)
	assert.Equal(t, 1, stats.TooFew)
	assert.Equal(t, 1, stats.Degenerate)
}

func TestRefine_MergeByOverlap(t *testing.T) {
	hits := arc(0.7, 1.0/200, 20, 0)
	cfg := testConfig()
	cfg.MergeOverlap = 0.3
	tracks, stats := newRefiner(t, cfg).Refine([]l4peaks.Candidate{cand(seq(0, 12)...), cand(seq(8, 20)...)}, hits)
	require.Len(t, tracks, 1)
	assert.Equal(t, 1, stats.Merged)
	assert.Equal(t, seq(0, 20), tracks[0].Hits)
}

func TestRefine_MergeByProbability(t *testing.T) {
	hits := arc(0.7, 1.0/200, 20, 0)
	cfg := testConfig()
	cfg.MinMergeProbability = 0.01
	tracks, stats := newRefiner(t, cfg).Refine([]l4peaks.Candidate{cand(seq(0, 10)...), cand(seq(10, 20)...)}, hits)
	require.Len(t, tracks, 1)
	assert.Equal(t, 1, stats.Merged)
	assert.Len(t, tracks[0].Hits, 20)
}

func TestRefine_DistinctTracksStaySeparate(t *testing.T) {
	hits := append(arc(0.7, 1.0/200, 12, 0), arc(-2.0, -1.0/150, 12, 100)...)
	cfg := testConfig()
	cfg.MergeOverlap = 0.5
	cfg.MinMergeProbability = 0.01
	cfg.LeftoverFactor = 1
	tracks, stats := newRefiner(t, cfg).Refine([]l4peaks.Candidate{cand(seq(0, 12)...), cand(seq(12, 24)...)}, hits)
	require.Len(t, tracks, 2)
	assert.Zero(t, stats.Merged)
	assert.Equal(t, -1, tracks[0].Charge)
	assert.Equal(t, 1, tracks[1].Charge)
}

// crossingCircle returns n hits on a radius-30 circle through hits p and q,
// starting with p and q themselves.
func crossingCircle(p, q l2hits.Hit, n int, idBase uint64) []l2hits.Hit {
	const radius = 30.0
	mx, my := (p.X+q.X)/2, (p.Y+q.Y)/2
	dx, dy := q.X-p.X, q.Y-p.Y
	half := math.Hypot(dx, dy) / 2
	offset := math.Sqrt(radius*radius - half*half)
	cx, cy := mx-dy/(2*half)*offset, my+dx/(2*half)*offset
	start := math.Atan2(p.Y-cy, p.X-cx)
	out := []l2hits.Hit{p, q}
	for k := 0; len(out) < n; k++ {
		a := start + 0.8 + 0.6*float64(k)
		out = append(out, l2hits.Hit{
			ID:      idBase + uint64(k),
			Stratum: k % 9,
			X:       cx + radius*math.Cos(a),
			Y:       cy + radius*math.Sin(a),
		})
	}
	return out
}

func TestRefine_OverlapMergeKeepsTracksWhenUnionFails(t *testing.T) {
	hits := arc(0.7, 1.0/200, 12, 0)
	second := crossingCircle(hits[4], hits[6], 8, 100)
	hits = append(hits, second[2:]...)

	cfg := testConfig()
	cfg.MinHits = 4
	cfg.MergeOverlap = 0.25
	b := append([]int{4, 6}, seq(12, 18)...)
	tracks, stats := newRefiner(t, cfg).Refine([]l4peaks.Candidate{cand(seq(0, 12)...), cand(b...)}, hits)

	require.Len(t, tracks, 2)
	assert.Zero(t, stats.Merged)
	assert.Zero(t, stats.Outliers)
	assert.Equal(t, 18, len(tracks[0].Hits)+len(tracks[1].Hits))
	assert.InDelta(t, 1.0/200, math.Abs(tracks[0].Fit.Curvature), 1e-6)
	assert.InDelta(t, 1.0/30, math.Abs(tracks[1].Fit.Curvature), 1e-6)
}

func TestRefine_ProbabilityMergeNeedsMinimumHits(t *testing.T) {
	hits := arc(0.7, 1.0/200, 12, 0)
	cands := []l4peaks.Candidate{cand(seq(0, 6)...), cand(seq(6, 12)...)}
	cfg := testConfig()
	cfg.MinMergeProbability = 0.01

	cfg.MinMergeHits = 15
	tracks, stats := newRefiner(t, cfg).Refine(cands, hits)
	assert.Len(t, tracks, 2)
	assert.Zero(t, stats.Merged)

	cfg.MinMergeHits = 12
	tracks, stats = newRefiner(t, cfg).Refine(cands, hits)
	require.Len(t, tracks, 1)
	assert.Equal(t, 1, stats.Merged)
	assert.Equal(t, seq(0, 12), tracks[0].Hits)
}

func TestRefine_ResolvesSharedHits(t *testing.T) {
	hits := append(arc(0.7, 1.0/200, 10, 0), arc(-2.0, -1.0/150, 10, 100)...)
	cfg := testConfig()
	cfg.OutlierFactors = nil
	// Hit 15 belongs to the second track but was also claimed by the first.
	tracks, stats := newRefiner(t, cfg).Refine([]l4peaks.Candidate{
		cand(append(seq(0, 10), 15)...),
		cand(seq(10, 20)...),
	}, hits)
	require.Len(t, tracks, 2)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, seq(0, 10), tracks[0].Hits)
	assert.Contains(t, tracks[1].Hits, 15)
}

func TestRefine_AssignsLeftovers(t *testing.T) {
	hits := arc(0.7, 1.0/200, 12, 0)
	hits = append(hits, l2hits.Hit{ID: 99, X: -40, Y: -40})
	cfg := testConfig()
	cfg.LeftoverFactor = 1
	tracks, stats := newRefiner(t, cfg).Refine([]l4peaks.Candidate{cand(seq(0, 10)...)}, hits)
	require.Len(t, tracks, 1)
	assert.Equal(t, 2, stats.Leftovers)
	assert.Equal(t, seq(0, 12), tracks[0].Hits)
}

func TestRefine_Idempotent(t *testing.T) {
	hits := append(arc(0.7, 1.0/200, 16, 0), arc(-2.0, -1.0/150, 16, 100)...)
	cfg := DefaultConfig()
	r := newRefiner(t, cfg)
	first, _ := r.Refine([]l4peaks.Candidate{
		cand(seq(0, 10)...), cand(seq(6, 16)...), cand(seq(16, 32)...),
	}, hits)
	require.Len(t, first, 2)

	again := make([]l4peaks.Candidate, 0, len(first))
	for _, tr := range first {
		again = append(again, tr.Candidate)
	}
	second, stats := r.Refine(again, hits)
	require.Len(t, second, len(first))
	assert.Zero(t, stats.Merged)
	for i := range first {
		assert.Equal(t, first[i].Hits, second[i].Hits)
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	bad := []func(*Config){
		func(c *Config) { c.OutlierFactors = []float64{5, 0} },
		func(c *Config) { c.ResidualFloor = -1 },
		func(c *Config) { c.MinHits = 2 },
		func(c *Config) { c.MergeOverlap = 1.5 },
		func(c *Config) { c.MinMergeProbability = -0.1 },
		func(c *Config) { c.MinMergeHits = -1 },
		func(c *Config) { c.LeftoverFactor = -1 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err := NewRefiner(cfg, nil)
		assert.ErrorIs(t, err, ErrInvalidRefiner, "case %d", i)
	}
}
