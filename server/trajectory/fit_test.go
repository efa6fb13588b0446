package trajectory

import (
	"testing"
	"time"

	"github.com/san-kum/shot-tracer/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// arcFit is the arc y = 2(x-0.5)^2 + 0.3 in top-left coordinates.
var arcFit = models.FitCoefficients{A: 2, B: -2, C: 0.8}

func arcPoint(x float64, ts time.Duration, conf float64) models.TrackedPoint {
	return models.TrackedPoint{
		Position:   models.NormalizedPoint{X: x, Y: arcFit.Eval(x)},
		Timestamp:  ts,
		Confidence: conf,
	}
}

func TestFitQuadratic_RecoversCoefficients(t *testing.T) {
	var points []models.TrackedPoint
	for i := 0; i < 9; i++ {
		points = append(points, arcPoint(0.1+0.1*float64(i), time.Duration(i)*time.Millisecond, 1))
	}

	fit, rmse, err := FitQuadratic(points)
	require.NoError(t, err)
	assert.InDelta(t, arcFit.A, fit.A, 1e-9)
	assert.InDelta(t, arcFit.B, fit.B, 1e-9)
	assert.InDelta(t, arcFit.C, fit.C, 1e-9)
	assert.InDelta(t, 0, rmse, 1e-9)
}

func TestFitQuadratic_ResidualReflectsNoise(t *testing.T) {
	var points []models.TrackedPoint
	for i := 0; i < 8; i++ {
		p := arcPoint(0.1+0.1*float64(i), 0, 1)
		if i%2 == 0 {
			p.Position.Y += 0.01
		} else {
			p.Position.Y -= 0.01
		}
		points = append(points, p)
	}

	_, rmse, err := FitQuadratic(points)
	require.NoError(t, err)
	assert.Greater(t, rmse, 0.001)
	assert.Less(t, rmse, 0.02)
}

func TestFitQuadratic_Degenerate(t *testing.T) {
	_, _, err := FitQuadratic([]models.TrackedPoint{arcPoint(0.1, 0, 1), arcPoint(0.2, 1, 1)})
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	same := []models.TrackedPoint{arcPoint(0.3, 0, 1), arcPoint(0.3, 1, 1), arcPoint(0.3, 2, 1), arcPoint(0.4, 3, 1)}
	_, _, err = FitQuadratic(same)
	assert.ErrorIs(t, err, ErrDegenerateFit)
}

func TestProject_SamplesBetweenEndpoints(t *testing.T) {
	first := arcPoint(0.2, 10*time.Millisecond, 1)
	last := arcPoint(0.6, 50*time.Millisecond, 1)

	out := Project(first, last, arcFit, 5, 0.7)
	require.Len(t, out, 5)
	for i, p := range out {
		x := 0.2 + 0.1*float64(i)
		assert.InDelta(t, x, p.Position.X, 1e-12)
		assert.InDelta(t, arcFit.Eval(x), p.Position.Y, 1e-12)
		assert.Equal(t, time.Duration(10+10*i)*time.Millisecond, p.Timestamp)
		assert.Equal(t, 0.7, p.Confidence)
	}

	assert.Len(t, Project(first, last, arcFit, 0, 1), 2)
}
