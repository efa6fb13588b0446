package trajectory

import "github.com/san-kum/shot-tracer/server/models"

type Variant int

const (
	// CenterWeighted averages (1, 2, 1) / 4, suited to high sample rates.
	CenterWeighted Variant = iota
	// Uniform averages (1, 1, 1) / 3.
	Uniform
)

func (v Variant) String() string {
	if v == Uniform {
		return "uniform"
	}
	return "center_weighted"
}

// Smoother applies a three-point moving average to interior points. The
// endpoints pass through unchanged.
type Smoother struct {
	Variant Variant
}

// NewSmoother picks the variant that matches the capture source.
func NewSmoother(caps models.Capabilities) Smoother {
	if caps.HighFrameRate {
		return Smoother{Variant: CenterWeighted}
	}
	return Smoother{Variant: Uniform}
}

func (s Smoother) Smooth(points []models.TrackedPoint) []models.TrackedPoint {
	return s.SmoothInto(nil, points)
}

// SmoothInto writes the smoothed sequence into dst, reusing its capacity.
// dst must not share memory with points.
func (s Smoother) SmoothInto(dst, points []models.TrackedPoint) []models.TrackedPoint {
	n := len(points)
	if cap(dst) < n {
		dst = make([]models.TrackedPoint, n)
	}
	dst = dst[:n]
	if n == 0 {
		return dst
	}

	dst[0] = points[0]
	dst[n-1] = points[n-1]
	for i := 1; i < n-1; i++ {
		prev, cur, next := points[i-1].Position, points[i].Position, points[i+1].Position
		var pos models.NormalizedPoint
		if s.Variant == Uniform {
			pos.X = (prev.X + cur.X + next.X) / 3
			pos.Y = (prev.Y + cur.Y + next.Y) / 3
		} else {
			pos.X = (prev.X + 2*cur.X + next.X) / 4
			pos.Y = (prev.Y + 2*cur.Y + next.Y) / 4
		}
		dst[i] = models.TrackedPoint{
			Position:   pos,
			Timestamp:  points[i].Timestamp,
			Confidence: points[i].Confidence,
		}
	}
	return dst
}
