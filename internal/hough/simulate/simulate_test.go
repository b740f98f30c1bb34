package simulate

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/houghtrack/internal/hough/l1axes"
	"github.com/banshee-data/houghtrack/internal/hough/l2hits"
)

func TestTrack_HitAt(t *testing.T) {
	tr := Track{Phi0: 0.3, Curvature: 0.01}
	cx, cy := tr.Center()
	for _, r := range []float64{10, 50, 150} {
		x, y, ok := tr.HitAt(r)
		require.True(t, ok)
		assert.InDelta(t, r, math.Hypot(x, y), 1e-9)
		assert.InDelta(t, 100, math.Hypot(x-cx, y-cy), 1e-9, "hit on the circle")
	}
	_, _, ok := tr.HitAt(201)
	assert.False(t, ok, "a circle of radius 100 never reaches r = 201")
}

func TestExact_StopsAtCurlBack(t *testing.T) {
	geom := TriggerGeometry()
	hits := Exact(geom, Track{Phi0: 1, Curvature: 1.0 / 40}, 10)
	require.Len(t, hits, 3, "2R = 80 stops before the fourth super layer")
	for i, h := range hits {
		assert.Equal(t, i, h.Stratum)
		assert.Equal(t, uint64(10+i), h.ID)
	}
}

func TestGenerator_Reproducible(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Noise = 5
	cfg.Seed = 42
	g1, err := New(cfg)
	require.NoError(t, err)
	g2, err := New(cfg)
	require.NoError(t, err)

	for n := int64(0); n < 3; n++ {
		ev1, tr1 := g1.Event(n)
		ev2, tr2 := g2.Event(n)
		assert.Empty(t, cmp.Diff(ev1, ev2))
		assert.Equal(t, tr1, tr2)
		assert.Equal(t, n, ev1.Number)
	}

	fresh, err := New(cfg)
	require.NoError(t, err)
	want, _ := fresh.Event(0)
	cfg.Seed = 43
	other, err := New(cfg)
	require.NoError(t, err)
	got, _ := other.Event(0)
	assert.NotEmpty(t, cmp.Diff(want, got), "a different seed gives a different event")
}

func TestGenerator_TrackHits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tracks = 3
	g, err := New(cfg)
	require.NoError(t, err)
	ev, tracks := g.Event(1)
	require.Len(t, tracks, 3)

	// Curvature at most 0.015 keeps 2R above the outer layer.
	assert.Len(t, ev.Hits, 3*len(cfg.Geometry.Radii))
	for i, h := range ev.Hits {
		assert.Equal(t, uint64(i), h.ID, "ids follow slice order")
		tr := tracks[i/len(cfg.Geometry.Radii)]
		cx, cy := tr.Center()
		assert.InDelta(t, 1/math.Abs(tr.Curvature), math.Hypot(h.X-cx, h.Y-cy), 1e-6)
		assert.GreaterOrEqual(t, math.Abs(tr.Curvature), cfg.MinCurvature)
		assert.LessOrEqual(t, math.Abs(tr.Curvature), cfg.MaxCurvature)
	}
}

func TestGenerator_Drift(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Geometry = WireGeometry()
	cfg.Tracks = 1
	cfg.MaxDrift = 0.5
	cfg.KnownRL = 1
	g, err := New(cfg)
	require.NoError(t, err)
	ev, tracks := g.Event(0)
	require.NotEmpty(t, ev.Hits)

	tr := tracks[0]
	cx, cy := tr.Center()
	radius := 1 / math.Abs(tr.Curvature)
	for _, h := range ev.Hits {
		assert.InDelta(t, h.DriftLength, math.Abs(math.Hypot(h.X-cx, h.Y-cy)-radius), 1e-9)
		assert.NotEqual(t, l2hits.RLUnknown, h.RL)
	}
}

func TestRLTag_MatchesLegendreBranch(t *testing.T) {
	proj := l2hits.LegendreProjection{}
	for _, tr := range []Track{{Phi0: 0.4, Curvature: 0.01}, {Phi0: 2.5, Curvature: -0.008}, {Phi0: -1.2, Curvature: 0.005}} {
		cx, cy := tr.Center()
		dc := math.Hypot(cx, cy)
		theta, rho := math.Atan2(cy, cx), 1/dc
		if theta < 0 {
			theta, rho = theta+math.Pi, -rho
		}
		b := l1axes.Box{N: 2}
		b.Ranges[0] = l1axes.Range{Lower: theta - 1e-7, Upper: theta + 1e-7}
		b.Ranges[1] = l1axes.Range{Lower: rho - 1e-7, Upper: rho + 1e-7}

		for _, r := range []float64{30, 60, 90} {
			x, y, ok := tr.HitAt(r)
			require.True(t, ok)
			for _, side := range []float64{1, -1} {
				ux, uy := (x-cx)*math.Abs(tr.Curvature), (y-cy)*math.Abs(tr.Curvature)
				h := l2hits.Hit{X: x + side*0.8*ux, Y: y + side*0.8*uy, DriftLength: 0.8}
				h.RL = RLTag(tr, h.X, h.Y)
				assert.True(t, proj.Intersects(&h, b), "tagged branch reaches the track")
				h.RL = -h.RL
				assert.False(t, proj.Intersects(&h, b), "opposite branch misses it")
			}
		}
	}
}

func TestGenerator_Noise(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tracks = 0
	cfg.Noise = 50
	g, err := New(cfg)
	require.NoError(t, err)
	total := 0
	for n := int64(0); n < 10; n++ {
		ev, _ := g.Event(n)
		total += len(ev.Hits)
		for _, h := range ev.Hits {
			assert.True(t, h.ValidStratum())
			assert.InDelta(t, cfg.Geometry.Radii[h.Stratum], h.R(), 1e-9)
		}
	}
	assert.InDelta(t, 500, total, 150)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	bad := []func(*Config){
		func(c *Config) { c.Geometry = Geometry{} },
		func(c *Config) { c.Geometry = Geometry{Radii: []float64{10, 5}} },
		func(c *Config) { c.Tracks = -1 },
		func(c *Config) { c.MinCurvature = 0.1 },
		func(c *Config) { c.Efficiency = 1.5 },
		func(c *Config) { c.KnownRL = -0.1 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err := New(cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig, "case %d", i)
	}
}
