package l5refine

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/houghtrack/internal/hough/l2hits"
)

// ErrDegenerateFit is returned when a fit has too few hits or produces
// non-finite parameters.
var ErrDegenerateFit = errors.New("degenerate fit")

// minFitHits is the smallest hit count a circle fit accepts.
const minFitHits = 3

// Fit is a circle (or straight line) in the transverse plane.
//
// Phi0 is the track direction at the point of closest approach to the
// origin, Curvature is 1/R, positive for counter-clockwise tracks, and D0
// is the distance of closest approach, positive when the origin lies
// outside the circle.
type Fit struct {
	Phi0      float64
	Curvature float64
	D0        float64

	CenterX float64
	CenterY float64
	Radius  float64
	// Line is set for fits without measurable curvature; the line is
	// -sin(Phi0) x + cos(Phi0) y + D0 = 0.
	Line bool

	Chi2        float64
	NDF         int
	Probability float64
}

// Charge is the particle charge sign for a solenoid field along +z:
// counter-clockwise tracks are negative.
func (f *Fit) Charge() int {
	if f.Curvature > 0 {
		return -1
	}
	return 1
}

// Distance returns the unsigned distance of (x, y) from the circle or line.
func (f *Fit) Distance(x, y float64) float64 {
	if f.Line {
		return math.Abs(-math.Sin(f.Phi0)*x + math.Cos(f.Phi0)*y + f.D0)
	}
	return math.Abs(math.Hypot(x-f.CenterX, y-f.CenterY) - f.Radius)
}

// Residual is the distance between the fitted trajectory and the drift
// circle of h, independent of the left/right tag.
func (f *Fit) Residual(h *l2hits.Hit) float64 {
	return math.Abs(f.Distance(h.X, h.Y) - h.DriftLength)
}

func (f *Fit) String() string {
	return fmt.Sprintf("Fit{phi0=%.4f curv=%.4g d0=%.4g chi2=%.3g/%d p=%.3g}",
		f.Phi0, f.Curvature, f.D0, f.Chi2, f.NDF, f.Probability)
}

// Fitter fits a trajectory to the hits selected by idx.
type Fitter interface {
	Fit(hits []l2hits.Hit, idx []int) (Fit, error)
}

// circleFit orients a circle given by centre and radius. The direction at
// closest approach is chosen to point towards the hit centroid (mx, my).
func circleFit(cx, cy, r, mx, my float64) Fit {
	dc := math.Hypot(cx, cy)
	f := Fit{CenterX: cx, CenterY: cy, Radius: r, D0: dc - r}

	// Counter-clockwise motion around the centre heads this way at the
	// point of closest approach.
	phi := math.Atan2(cy, cx) - math.Pi/2
	px, py := cx, cy
	if dc > 0 {
		px, py = cx-r*cx/dc, cy-r*cy/dc
	}
	if math.Cos(phi)*(mx-px)+math.Sin(phi)*(my-py) >= 0 {
		f.Phi0 = phi
		f.Curvature = 1 / r
	} else {
		f.Phi0 = phi + math.Pi
		f.Curvature = -1 / r
	}
	f.Phi0 = wrapPhi(f.Phi0)
	return f
}

func wrapPhi(phi float64) float64 {
	return math.Remainder(phi, 2*math.Pi)
}

// finishFit fills chi2 from the drift-aware residuals with resolution
// sigma and checks every parameter for finiteness.
func finishFit(f *Fit, hits []l2hits.Hit, idx []int, sigma float64) error {
	f.Chi2 = 0
	for _, i := range idx {
		r := f.Residual(&hits[i]) / sigma
		f.Chi2 += r * r
	}
	f.NDF = len(idx) - minFitHits
	f.Probability = 1
	if f.NDF > 0 {
		f.Probability = distuv.ChiSquared{K: float64(f.NDF)}.Survival(f.Chi2)
	}
	for _, v := range []float64{f.Phi0, f.Curvature, f.D0, f.Chi2, f.Probability, f.CenterX, f.CenterY, f.Radius} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite parameter in %s", ErrDegenerateFit, f)
		}
	}
	return nil
}
