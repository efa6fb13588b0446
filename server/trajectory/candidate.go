package trajectory

import (
	"slices"
	"sort"
	"time"

	"github.com/san-kum/shot-tracer/server/models"
)

// DuplicateWindow is how close two timestamps must be for points at the
// same position to count as one observation.
const DuplicateWindow = 500 * time.Microsecond

// Observation is one update for a candidate, as produced by an Accumulator
// or an external trajectory source.
type Observation struct {
	ID         string                 `json:"id"`
	Detected   []models.TrackedPoint  `json:"detected_points"`
	Projected  []models.TrackedPoint  `json:"projected_points"`
	Fit        models.FitCoefficients `json:"fit"`
	Convention models.Convention      `json:"convention"`
	Confidence float64                `json:"confidence"`
	TimeRange  models.TimeRange       `json:"time_range"`
}

// Candidate is one trajectory hypothesis. Both point slices are kept sorted
// by timestamp.
type Candidate struct {
	ID         string
	Detected   []models.TrackedPoint
	Projected  []models.TrackedPoint
	Fit        models.FitCoefficients
	Convention models.Convention
	Confidence float64
	TimeRange  models.TimeRange
	Age        int

	seq uint64
}

func newCandidate(id string, seq uint64) *Candidate {
	return &Candidate{ID: id, Convention: models.ConventionTopLeft, seq: seq}
}

func (c *Candidate) merge(obs Observation, additive bool, maxPoints int) {
	c.Detected = mergePoints(c.Detected, obs.Detected, maxPoints)
	if additive {
		c.Projected = mergePoints(c.Projected, obs.Projected, maxPoints)
	} else {
		c.Projected = replacePoints(c.Projected, obs.Projected, maxPoints)
	}

	c.Fit = obs.Fit
	c.Confidence = obs.Confidence
	if obs.Convention != "" {
		c.Convention = obs.Convention
	}
	if obs.TimeRange != (models.TimeRange{}) {
		c.TimeRange = obs.TimeRange
	} else if len(c.Detected) > 0 {
		c.TimeRange = models.RangeOf(c.Detected)
	} else {
		c.TimeRange = models.RangeOf(c.Projected)
	}
	c.Age = 0
}

// FirstPoint is the earliest known point of the candidate in its own
// convention.
func (c *Candidate) FirstPoint() (models.TrackedPoint, bool) {
	if len(c.Detected) > 0 {
		return c.Detected[0], true
	}
	if len(c.Projected) > 0 {
		return c.Projected[0], true
	}
	return models.TrackedPoint{}, false
}

func (c *Candidate) trajectory(score float64) models.Trajectory {
	return models.Trajectory{
		ID:              c.ID,
		DetectedPoints:  slices.Clone(c.Detected),
		ProjectedPoints: slices.Clone(c.Projected),
		Fit:             c.Fit,
		Convention:      c.Convention,
		Confidence:      c.Confidence,
		TimeRange:       c.TimeRange,
		Score:           score,
	}
}

// mergePoints inserts src into the time-sorted dst, skipping duplicates.
// When the result exceeds maxPoints the oldest points are dropped.
func mergePoints(dst, src []models.TrackedPoint, maxPoints int) []models.TrackedPoint {
	for _, p := range src {
		if isDuplicate(dst, p) {
			continue
		}
		i := sort.Search(len(dst), func(i int) bool { return dst[i].Timestamp > p.Timestamp })
		if i == len(dst) {
			dst = append(dst, p)
		} else {
			dst = slices.Insert(dst, i, p)
		}
	}
	return trimOldest(dst, maxPoints)
}

// replacePoints overwrites dst with a deduplicated, time-sorted copy of src.
func replacePoints(dst, src []models.TrackedPoint, maxPoints int) []models.TrackedPoint {
	return mergePoints(dst[:0], src, maxPoints)
}

func isDuplicate(points []models.TrackedPoint, p models.TrackedPoint) bool {
	lo := sort.Search(len(points), func(i int) bool {
		return points[i].Timestamp >= p.Timestamp-DuplicateWindow
	})
	for i := lo; i < len(points) && points[i].Timestamp <= p.Timestamp+DuplicateWindow; i++ {
		if points[i].Position == p.Position {
			return true
		}
	}
	return false
}

func trimOldest(points []models.TrackedPoint, maxPoints int) []models.TrackedPoint {
	if maxPoints <= 0 || len(points) <= maxPoints {
		return points
	}
	drop := len(points) - maxPoints
	copy(points, points[drop:])
	return points[:maxPoints]
}
