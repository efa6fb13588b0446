// Package trajectory fuses per-frame ball observations into competing arc
// hypotheses and selects the authoritative one.
package trajectory

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/shot-tracer/server/models"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrInsufficientPoints = errors.New("trajectory: at least three points are required")
	ErrDegenerateFit      = errors.New("trajectory: points do not determine a curve")
)

// FitQuadratic fits y = a*x^2 + b*x + c to the points by least squares and
// returns the coefficients with the root mean square residual. The fit is
// done in whatever convention the points are expressed in.
func FitQuadratic(points []models.TrackedPoint) (models.FitCoefficients, float64, error) {
	n := len(points)
	if n < 3 {
		return models.FitCoefficients{}, 0, ErrInsufficientPoints
	}
	if distinctX(points) < 3 {
		return models.FitCoefficients{}, 0, ErrDegenerateFit
	}

	design := mat.NewDense(n, 3, nil)
	obs := mat.NewVecDense(n, nil)
	for i, p := range points {
		x := p.Position.X
		design.Set(i, 0, x*x)
		design.Set(i, 1, x)
		design.Set(i, 2, 1)
		obs.SetVec(i, p.Position.Y)
	}

	var qr mat.QR
	qr.Factorize(design)
	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, obs); err != nil {
		return models.FitCoefficients{}, 0, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
	}

	fit := models.FitCoefficients{A: coef.AtVec(0), B: coef.AtVec(1), C: coef.AtVec(2)}
	if !finite(fit.A) || !finite(fit.B) || !finite(fit.C) {
		return models.FitCoefficients{}, 0, ErrDegenerateFit
	}

	var sumSq float64
	for _, p := range points {
		r := p.Position.Y - fit.Eval(p.Position.X)
		sumSq += r * r
	}
	return fit, math.Sqrt(sumSq / float64(n)), nil
}

// Project samples the fitted arc between the x positions of first and last.
// Timestamps are interpolated linearly between the two endpoints.
func Project(first, last models.TrackedPoint, fit models.FitCoefficients, samples int, confidence float64) []models.TrackedPoint {
	if samples < 2 {
		samples = 2
	}
	out := make([]models.TrackedPoint, samples)
	x0, x1 := first.Position.X, last.Position.X
	t0, t1 := first.Timestamp, last.Timestamp
	for i := range out {
		f := float64(i) / float64(samples-1)
		x := x0 + (x1-x0)*f
		out[i] = models.TrackedPoint{
			Position:   models.NormalizedPoint{X: x, Y: fit.Eval(x)},
			Timestamp:  t0 + time.Duration(float64(t1-t0)*f),
			Confidence: confidence,
		}
	}
	return out
}

func distinctX(points []models.TrackedPoint) int {
	const eps = 1e-9
	var seen [3]float64
	n := 0
	for _, p := range points {
		dup := false
		for i := 0; i < n; i++ {
			if math.Abs(seen[i]-p.Position.X) < eps {
				dup = true
				break
			}
		}
		if !dup {
			seen[n] = p.Position.X
			n++
			if n == len(seen) {
				return n
			}
		}
	}
	return n
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
