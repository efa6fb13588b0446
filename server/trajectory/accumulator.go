package trajectory

import (
	"slices"

	"github.com/san-kum/shot-tracer/server/models"
)

const (
	DefaultProjectionSamples = 30
	defaultAccumulatorPoints = 1024

	// rmsePenalty scales how quickly confidence decays with fit residual.
	rmsePenalty = 20
)

// Accumulator collects the confirmed points of one tracking segment and turns
// them into Observations for a Store. Points are top-left normalized.
type Accumulator struct {
	id        string
	samples   int
	maxPoints int

	points  []models.TrackedPoint
	pending int
	confSum float64
}

func NewAccumulator(id string, samples int) *Accumulator {
	if samples < 2 {
		samples = DefaultProjectionSamples
	}
	return &Accumulator{
		id:        id,
		samples:   samples,
		maxPoints: defaultAccumulatorPoints,
		points:    make([]models.TrackedPoint, 0, 64),
	}
}

func (a *Accumulator) ID() string {
	return a.id
}

func (a *Accumulator) Len() int {
	return len(a.points)
}

// Add appends a confirmed point. Points older than the last one are ignored.
func (a *Accumulator) Add(p models.TrackedPoint) {
	if n := len(a.points); n > 0 && p.Timestamp < a.points[n-1].Timestamp {
		return
	}
	if len(a.points) >= a.maxPoints {
		a.confSum -= a.points[0].Confidence
		a.points = slices.Delete(a.points, 0, 1)
		if a.pending > 0 {
			a.pending--
		}
	}
	a.points = append(a.points, p)
	a.confSum += p.Confidence
}

// Points returns a copy of everything added so far.
func (a *Accumulator) Points() []models.TrackedPoint {
	return slices.Clone(a.points)
}

// Observation returns the points added since the previous call together with
// the current full-arc fit. It reports false when nothing new was added.
// While fewer than three distinct points exist the observation carries only
// detected points.
func (a *Accumulator) Observation() (Observation, bool) {
	if a.pending >= len(a.points) {
		return Observation{}, false
	}
	obs := Observation{
		ID:         a.id,
		Detected:   slices.Clone(a.points[a.pending:]),
		Convention: models.ConventionTopLeft,
		TimeRange:  models.RangeOf(a.points),
	}
	a.pending = len(a.points)

	mean := a.confSum / float64(len(a.points))
	fit, rmse, err := FitQuadratic(a.points)
	if err != nil {
		obs.Confidence = mean
		return obs, true
	}

	obs.Fit = fit
	obs.Confidence = mean / (1 + rmsePenalty*rmse)
	obs.Projected = Project(a.points[0], a.points[len(a.points)-1], fit, a.samples, obs.Confidence)
	return obs, true
}

// Reset drops all points and starts a new segment under id.
func (a *Accumulator) Reset(id string) {
	a.id = id
	a.points = a.points[:0]
	a.pending = 0
	a.confSum = 0
}
