package models

import (
	"fmt"
	"math"
	"time"
)

// NormalizedPoint is a frame-size independent position with the origin at
// the top-left of the displayed image.
type NormalizedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p NormalizedPoint) Add(dx, dy float64) NormalizedPoint {
	return NormalizedPoint{X: p.X + dx, Y: p.Y + dy}
}

// Clamp limits both coordinates to [0, 1].
func (p NormalizedPoint) Clamp() NormalizedPoint {
	return NormalizedPoint{X: clamp01(p.X), Y: clamp01(p.Y)}
}

func (p NormalizedPoint) DistanceTo(q NormalizedPoint) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

func (p NormalizedPoint) InBounds() bool {
	return p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1
}

// TrackedPoint is a single confirmed observation. Timestamp is a monotonic
// offset from the start of the capture session.
type TrackedPoint struct {
	Position   NormalizedPoint `json:"position"`
	Timestamp  time.Duration   `json:"timestamp"`
	Confidence float64         `json:"confidence"`
}

// FitCoefficients describe y = A*x^2 + B*x + C.
type FitCoefficients struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
}

func (f FitCoefficients) Eval(x float64) float64 {
	return f.A*x*x + f.B*x + f.C
}

// Convention is the coordinate convention a candidate's points and fit are
// expressed in.
type Convention string

const (
	// ConventionTopLeft has y growing downward; an arc that rises then falls
	// has A > 0.
	ConventionTopLeft Convention = "top_left"
	// ConventionBottomLeft has y growing upward; an arc that rises then falls
	// has A < 0.
	ConventionBottomLeft Convention = "bottom_left"
)

// ArcOpening reports whether a fit with the given leading coefficient
// describes an upward-then-downward arc in this convention.
func (c Convention) ArcOpening(a float64) bool {
	if c == ConventionBottomLeft {
		return a < 0
	}
	return a > 0
}

// ToTopLeft converts a point in this convention to the top-left convention.
func (c Convention) ToTopLeft(p NormalizedPoint) NormalizedPoint {
	if c == ConventionBottomLeft {
		return NormalizedPoint{X: p.X, Y: 1 - p.Y}
	}
	return p
}

type TimeRange struct {
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
}

func (r TimeRange) End() time.Duration {
	return r.Start + r.Duration
}

// RangeOf returns the time range spanned by a time-sorted point slice.
func RangeOf(points []TrackedPoint) TimeRange {
	if len(points) == 0 {
		return TimeRange{}
	}
	first := points[0].Timestamp
	last := points[len(points)-1].Timestamp
	return TimeRange{Start: first, Duration: last - first}
}

// Trajectory is the authoritative flight path handed to renderers and
// exporters.
type Trajectory struct {
	ID              string          `json:"id"`
	DetectedPoints  []TrackedPoint  `json:"detected_points"`
	ProjectedPoints []TrackedPoint  `json:"projected_points"`
	SmoothedPoints  []TrackedPoint  `json:"smoothed_points,omitempty"`
	Fit             FitCoefficients `json:"fit"`
	Convention      Convention      `json:"convention"`
	Confidence      float64         `json:"confidence"`
	TimeRange       TimeRange       `json:"time_range"`
	Score           float64         `json:"score"`
}

// SwingPhase is a discrete stage of the preparatory motion.
type SwingPhase int

const (
	PhaseIdle SwingPhase = iota
	PhaseSetup
	PhaseBackswing
	PhaseTop
	PhaseDownswing
	PhaseImpact
	PhaseFollowThrough
	PhaseFinished
)

var phaseNames = [...]string{
	PhaseIdle:          "idle",
	PhaseSetup:         "setup",
	PhaseBackswing:     "backswing",
	PhaseTop:           "top",
	PhaseDownswing:     "downswing",
	PhaseImpact:        "impact",
	PhaseFollowThrough: "follow_through",
	PhaseFinished:      "finished",
}

func (p SwingPhase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p SwingPhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *SwingPhase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = SwingPhase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown swing phase %q", string(text))
}

// Orientation maps the stored buffer to the displayed image.
type Orientation string

const (
	OrientationUp    Orientation = "up"    // identity
	OrientationRight Orientation = "right" // rotate the buffer 90° clockwise to display
	OrientationLeft  Orientation = "left"  // rotate the buffer 90° counter-clockwise to display
	OrientationDown  Orientation = "down"  // rotate the buffer 180°
)

func (o Orientation) Valid() bool {
	switch o {
	case OrientationUp, OrientationRight, OrientationLeft, OrientationDown, "":
		return true
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
