package l5refine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/houghtrack/internal/hough/l2hits"
)

// curvatureEpsilon is the Karimaki kappa below which the fit is a line.
const curvatureEpsilon = 1e-12

// Karimaki is the non-iterative circle fit of V. Karimaki (NIM A305, 1991)
// on the wire positions. Hit weights are 1/(Sigma + drift)^2 so that wires
// far from the trajectory count less.
type Karimaki struct {
	// Sigma is the single hit resolution used for weights and chi2.
	Sigma float64
}

func (k Karimaki) sigma() float64 {
	if k.Sigma > 0 {
		return k.Sigma
	}
	return DefaultSigma
}

func (k Karimaki) Fit(hits []l2hits.Hit, idx []int) (Fit, error) {
	n := len(idx)
	if n < minFitHits {
		return Fit{}, fmt.Errorf("%w: %d hits", ErrDegenerateFit, n)
	}
	sigma := k.sigma()
	w := make([]float64, n)
	x := make([]float64, n)
	y := make([]float64, n)
	r2 := make([]float64, n)
	for j, i := range idx {
		h := &hits[i]
		s := sigma + h.DriftLength
		w[j] = 1 / (s * s)
		x[j], y[j] = h.X, h.Y
		r2[j] = h.X*h.X + h.Y*h.Y
	}

	sumW := floats.Sum(w)
	mean := func(a []float64) float64 { return floats.Dot(w, a) / sumW }
	cov := func(a, b []float64) float64 {
		ab := make([]float64, n)
		floats.MulTo(ab, a, b)
		return mean(ab) - mean(a)*mean(b)
	}
	meanX, meanY, meanR2 := mean(x), mean(y), mean(r2)
	covXX, covXY, covYY := cov(x, x), cov(x, y), cov(y, y)
	covXR2, covYR2, covR2R2 := cov(x, r2), cov(y, r2), cov(r2, r2)
	if covR2R2 <= 0 {
		return Fit{}, fmt.Errorf("%w: hits share one radius", ErrDegenerateFit)
	}

	q1 := covR2R2*covXY - covXR2*covYR2
	q2 := covR2R2*(covXX-covYY) - covXR2*covXR2 + covYR2*covYR2
	phi := 0.5 * math.Atan2(2*q1, q2)
	sin, cos := math.Sincos(phi)
	kappa := (sin*covXR2 - cos*covYR2) / covR2R2
	delta := -kappa*meanR2 + sin*meanX - cos*meanY

	var f Fit
	if math.Abs(kappa) < curvatureEpsilon {
		// kappa (x^2+y^2) - sin x + cos y + delta = 0 degenerates to a line.
		if cos*meanX+sin*meanY < 0 {
			phi, delta = phi+math.Pi, -delta
		}
		f = Fit{Phi0: wrapPhi(phi), D0: delta, Line: true}
	} else {
		root := 1 - 4*delta*kappa
		if root <= 0 {
			return Fit{}, fmt.Errorf("%w: 1-4*delta*kappa = %g", ErrDegenerateFit, root)
		}
		cx := sin / (2 * kappa)
		cy := -cos / (2 * kappa)
		radius := math.Sqrt(root) / (2 * math.Abs(kappa))
		f = circleFit(cx, cy, radius, meanX, meanY)
	}
	if err := finishFit(&f, hits, idx, sigma); err != nil {
		return Fit{}, err
	}
	tracef("karimaki: %d hits %s", n, &f)
	return f, nil
}
