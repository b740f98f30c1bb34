// Package simulate generates synthetic events: circular tracks from the
// origin crossing concentric detector layers, plus uniform noise.
package simulate

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/houghtrack/internal/hough/l2hits"
)

// ErrInvalidConfig is returned by New for unusable generator settings.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Geometry lists the layer radii; the layer index is the hit stratum.
type Geometry struct {
	Radii []float64
}

// TriggerGeometry is the five axial super layers of the Belle II drift
// chamber (cm), one hit per super layer.
func TriggerGeometry() Geometry {
	return Geometry{Radii: []float64{19.8, 40.16, 62.0, 83.84, 105.68}}
}

// WireGeometry is a dense stack of 40 layers between 18 and 110 cm for
// drift circle searches.
func WireGeometry() Geometry {
	radii := make([]float64, 40)
	for i := range radii {
		radii[i] = 18 + 2.3*float64(i)
	}
	return Geometry{Radii: radii}
}

// Track is a circle through the origin. Phi0 is the initial direction and
// Curvature is 1/R, positive for counter-clockwise tracks.
type Track struct {
	Phi0      float64 `json:"phi0"`
	Curvature float64 `json:"curvature"`
}

// HitAt returns the crossing of the track with the circle of radius r.
// ok is false once the track has curled back inside r.
func (t Track) HitAt(r float64) (x, y float64, ok bool) {
	s := t.Curvature * r / 2
	if math.Abs(s) > 1 {
		return 0, 0, false
	}
	phi := t.Phi0 + math.Asin(s)
	return r * math.Cos(phi), r * math.Sin(phi), true
}

// Center returns the track circle centre.
func (t Track) Center() (x, y float64) {
	return -math.Sin(t.Phi0) / t.Curvature, math.Cos(t.Phi0) / t.Curvature
}

// Config controls the generator.
type Config struct {
	Geometry Geometry
	// Tracks per event.
	Tracks int
	// Curvature magnitudes are drawn uniformly from [MinCurvature, MaxCurvature]
	// with a random sign.
	MinCurvature float64
	MaxCurvature float64
	// Efficiency is the probability that a layer records a track crossing.
	Efficiency float64
	// Noise is the mean number of random hits per event (Poisson).
	Noise float64
	// MaxDrift > 0 moves every hit off the track by a drift length drawn
	// from [0, MaxDrift] and records it in DriftLength.
	MaxDrift float64
	// KnownRL is the probability that the left/right tag is filled in.
	KnownRL float64
	// Smear is the Gaussian sigma added to the drift length.
	Smear float64
	Seed  uint64
}

// DefaultConfig returns a trigger-like setup.
func DefaultConfig() Config {
	return Config{
		Geometry:     TriggerGeometry(),
		Tracks:       2,
		MinCurvature: 0.001,
		MaxCurvature: 0.015,
		Efficiency:   1,
		Seed:         1,
	}
}

func (c Config) Validate() error {
	if len(c.Geometry.Radii) == 0 || len(c.Geometry.Radii) > l2hits.MaxStrata {
		return fmt.Errorf("%w: need 1..%d layers, got %d", ErrInvalidConfig, l2hits.MaxStrata, len(c.Geometry.Radii))
	}
	for i, r := range c.Geometry.Radii {
		if !(r > 0) || (i > 0 && r <= c.Geometry.Radii[i-1]) {
			return fmt.Errorf("%w: layer radii must be positive and increasing (layer %d)", ErrInvalidConfig, i)
		}
	}
	if c.Tracks < 0 || c.Noise < 0 || c.MaxDrift < 0 || c.Smear < 0 {
		return fmt.Errorf("%w: counts, drift and smear must be non-negative", ErrInvalidConfig)
	}
	if !(c.MinCurvature >= 0 && c.MinCurvature <= c.MaxCurvature) {
		return fmt.Errorf("%w: curvature range [%g, %g]", ErrInvalidConfig, c.MinCurvature, c.MaxCurvature)
	}
	if c.Efficiency < 0 || c.Efficiency > 1 || c.KnownRL < 0 || c.KnownRL > 1 {
		return fmt.Errorf("%w: probabilities must be in [0, 1]", ErrInvalidConfig)
	}
	return nil
}

// Generator produces reproducible events from a seed. It is not safe for
// concurrent use.
type Generator struct {
	cfg       Config
	uniform   distuv.Uniform
	curvature distuv.Uniform
	noise     distuv.Poisson
	smear     distuv.Normal
}

// New validates cfg and seeds the generator.
func New(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	g := &Generator{
		cfg:       cfg,
		uniform:   distuv.Uniform{Min: 0, Max: 1, Src: src},
		curvature: distuv.Uniform{Min: cfg.MinCurvature, Max: cfg.MaxCurvature, Src: src},
		smear:     distuv.Normal{Mu: 0, Sigma: 1, Src: src},
	}
	if cfg.Noise > 0 {
		g.noise = distuv.Poisson{Lambda: cfg.Noise, Src: src}
	}
	return g, nil
}

// Event draws one event. The returned tracks are the generated truth.
func (g *Generator) Event(number int64) (l2hits.Event, []Track) {
	ev := l2hits.Event{Number: number}
	tracks := make([]Track, 0, g.cfg.Tracks)
	for i := 0; i < g.cfg.Tracks; i++ {
		t := Track{
			Phi0:      (2*g.uniform.Rand() - 1) * math.Pi,
			Curvature: g.curvature.Rand(),
		}
		if g.uniform.Rand() < 0.5 {
			t.Curvature = -t.Curvature
		}
		tracks = append(tracks, t)
		ev.Hits = append(ev.Hits, g.trackHits(t, uint64(len(ev.Hits)))...)
	}
	if g.cfg.Noise > 0 {
		n := int(g.noise.Rand())
		for i := 0; i < n; i++ {
			layer := int(g.uniform.Rand() * float64(len(g.cfg.Geometry.Radii)))
			layer = min(layer, len(g.cfg.Geometry.Radii)-1)
			r := g.cfg.Geometry.Radii[layer]
			phi := (2*g.uniform.Rand() - 1) * math.Pi
			h := l2hits.Hit{
				ID:      uint64(len(ev.Hits)),
				Stratum: layer,
				X:       r * math.Cos(phi),
				Y:       r * math.Sin(phi),
			}
			if g.cfg.MaxDrift > 0 {
				h.DriftLength = g.uniform.Rand() * g.cfg.MaxDrift
			}
			ev.Hits = append(ev.Hits, h)
		}
	}
	return ev, tracks
}

// trackHits samples the layer crossings of t.
func (g *Generator) trackHits(t Track, idBase uint64) []l2hits.Hit {
	var hits []l2hits.Hit
	cx, cy := t.Center()
	for layer, r := range g.cfg.Geometry.Radii {
		x, y, ok := t.HitAt(r)
		if !ok {
			break
		}
		if g.uniform.Rand() >= g.cfg.Efficiency {
			continue
		}
		h := l2hits.Hit{ID: idBase + uint64(len(hits)), Stratum: layer, X: x, Y: y}
		if g.cfg.MaxDrift > 0 {
			drift := g.uniform.Rand() * g.cfg.MaxDrift
			side := 1.0
			if g.uniform.Rand() < 0.5 {
				side = -1
			}
			// Move the wire off the track, normal to the circle.
			dx, dy := x-cx, y-cy
			norm := math.Hypot(dx, dy)
			h.X += side * drift * dx / norm
			h.Y += side * drift * dy / norm
			h.DriftLength = math.Abs(drift + g.cfg.Smear*g.smear.Rand())
			if g.uniform.Rand() < g.cfg.KnownRL {
				h.RL = RLTag(t, h.X, h.Y)
			}
		}
		hits = append(hits, h)
	}
	return hits
}

// RLTag returns the drift branch of the legendre projection that a wire
// at (x, y) lies on for track t, with theta in [0, pi).
func RLTag(t Track, x, y float64) l2hits.RLTag {
	xc, yc, _, ok := l2hits.LegendreProjection{}.Conformal(&l2hits.Hit{X: x, Y: y})
	if !ok {
		return l2hits.RLUnknown
	}
	cx, cy := t.Center()
	dc := math.Hypot(cx, cy)
	nx, ny, rho := cx/dc, cy/dc, 1/dc
	if math.Atan2(ny, nx) < 0 {
		nx, ny, rho = -nx, -ny, -rho
	}
	if nx*xc+ny*yc < rho {
		return l2hits.RLRight
	}
	return l2hits.RLLeft
}

// Exact returns the hits of t on every layer without efficiency loss,
// drift or noise. IDs start at idBase.
func Exact(geom Geometry, t Track, idBase uint64) []l2hits.Hit {
	var hits []l2hits.Hit
	for layer, r := range geom.Radii {
		x, y, ok := t.HitAt(r)
		if !ok {
			break
		}
		hits = append(hits, l2hits.Hit{ID: idBase + uint64(len(hits)), Stratum: layer, X: x, Y: y})
	}
	return hits
}
