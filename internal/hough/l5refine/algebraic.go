package l5refine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/houghtrack/internal/hough/l2hits"
)

// DefaultSigma is the hit resolution used when a fitter leaves it unset.
const DefaultSigma = 0.02

// Algebraic is the least squares (Kasa) circle fit
//
//	x^2 + y^2 + D x + E y + F = 0
//
// solved with a QR based least squares solve.
type Algebraic struct {
	Sigma float64
}

func (a Algebraic) Fit(hits []l2hits.Hit, idx []int) (Fit, error) {
	n := len(idx)
	if n < minFitHits {
		return Fit{}, fmt.Errorf("%w: %d hits", ErrDegenerateFit, n)
	}
	sigma := a.Sigma
	if sigma <= 0 {
		sigma = DefaultSigma
	}

	design := mat.NewDense(n, 3, nil)
	rhs := mat.NewVecDense(n, nil)
	mx, my := 0.0, 0.0
	for j, i := range idx {
		h := &hits[i]
		design.Set(j, 0, h.X)
		design.Set(j, 1, h.Y)
		design.Set(j, 2, 1)
		rhs.SetVec(j, -(h.X*h.X + h.Y*h.Y))
		mx += h.X
		my += h.Y
	}
	mx /= float64(n)
	my /= float64(n)

	var sol mat.VecDense
	if err := sol.SolveVec(design, rhs); err != nil {
		return Fit{}, fmt.Errorf("%w: %w", ErrDegenerateFit, err)
	}
	d, e, c := sol.AtVec(0), sol.AtVec(1), sol.AtVec(2)
	cx, cy := -d/2, -e/2
	r2 := cx*cx + cy*cy - c
	if !(r2 > 0) {
		return Fit{}, fmt.Errorf("%w: radius^2 = %g", ErrDegenerateFit, r2)
	}
	f := circleFit(cx, cy, math.Sqrt(r2), mx, my)
	if err := finishFit(&f, hits, idx, sigma); err != nil {
		return Fit{}, err
	}
	tracef("algebraic: %d hits %s", n, &f)
	return f, nil
}
