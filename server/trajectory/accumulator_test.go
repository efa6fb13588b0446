package trajectory

import (
	"testing"
	"time"

	"github.com/san-kum/shot-tracer/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_EmitsPendingPointsAndFullArc(t *testing.T) {
	acc := NewAccumulator("shot-1", 0)
	assert.Equal(t, "shot-1", acc.ID())

	_, ok := acc.Observation()
	assert.False(t, ok, "nothing added yet")

	acc.Add(arcPoint(0.1, 0, 0.8))
	acc.Add(arcPoint(0.15, time.Millisecond, 0.8))

	obs, ok := acc.Observation()
	require.True(t, ok)
	assert.Len(t, obs.Detected, 2)
	assert.Empty(t, obs.Projected, "two points cannot be fitted")
	assert.InDelta(t, 0.8, obs.Confidence, 1e-12)

	_, ok = acc.Observation()
	assert.False(t, ok, "no new points since last observation")

	for i := 2; i < 10; i++ {
		acc.Add(arcPoint(0.1+0.05*float64(i), time.Duration(i)*time.Millisecond, 0.8))
	}

	obs, ok = acc.Observation()
	require.True(t, ok)
	assert.Equal(t, "shot-1", obs.ID)
	assert.Len(t, obs.Detected, 8)
	assert.Len(t, obs.Projected, DefaultProjectionSamples)
	assert.Equal(t, models.ConventionTopLeft, obs.Convention)
	assert.InDelta(t, arcFit.A, obs.Fit.A, 1e-6)
	assert.InDelta(t, 0.8, obs.Confidence, 1e-6)
	assert.Equal(t, models.TimeRange{Start: 0, Duration: 9 * time.Millisecond}, obs.TimeRange)

	assert.InDelta(t, 0.1, obs.Projected[0].Position.X, 1e-12)
	assert.InDelta(t, 0.55, obs.Projected[len(obs.Projected)-1].Position.X, 1e-12)
}

func TestAccumulator_IgnoresOutOfOrderAndResets(t *testing.T) {
	acc := NewAccumulator("a", 10)
	acc.Add(arcPoint(0.2, 5*time.Millisecond, 1))
	acc.Add(arcPoint(0.1, time.Millisecond, 1))
	assert.Equal(t, 1, acc.Len())

	acc.Reset("b")
	assert.Equal(t, "b", acc.ID())
	assert.Zero(t, acc.Len())
	_, ok := acc.Observation()
	assert.False(t, ok)
}

func TestAccumulator_NoisyFitLowersConfidence(t *testing.T) {
	clean := NewAccumulator("clean", 10)
	noisy := NewAccumulator("noisy", 10)
	for i := 0; i < 8; i++ {
		p := arcPoint(0.1+0.1*float64(i), time.Duration(i)*time.Millisecond, 0.9)
		clean.Add(p)
		if i%2 == 0 {
			p.Position.Y += 0.02
		}
		noisy.Add(p)
	}

	c, ok := clean.Observation()
	require.True(t, ok)
	n, ok := noisy.Observation()
	require.True(t, ok)
	assert.Less(t, n.Confidence, c.Confidence)
}
