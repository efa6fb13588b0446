// Package tracking follows a single bright ball from frame to frame inside a
// bounded search window, coasting through short detection gaps.
package tracking

import (
	"errors"
	"time"

	"github.com/san-kum/shot-tracer/server/models"
	"github.com/san-kum/shot-tracer/server/vision"
	"go.uber.org/zap"
)

// ErrNotArmed is the panic value for using a tracker before Arm.
var ErrNotArmed = errors.New("tracking: tracker used before arm")

// State is a snapshot of the tracker's per-shot state.
type State struct {
	InitialPosition      *models.NormalizedPoint `json:"initial_position,omitempty"`
	LastPosition         *models.NormalizedPoint `json:"last_position,omitempty"`
	IsTracking           bool                    `json:"is_tracking"`
	FramesSinceDetection int                     `json:"frames_since_detection"`
}

// Result is the outcome of one processed frame. Points is the tracker's
// accumulated point slice; callers must treat it as read-only.
type Result struct {
	Position    models.NormalizedPoint
	HasPosition bool
	Points      []models.TrackedPoint
	IsTracking  bool

	Detected  bool
	Point     models.TrackedPoint
	Predicted bool
	Lost      bool
}

type confirmed struct {
	pos   models.NormalizedPoint
	frame int64
}

// PositionTracker owns one arm -> track -> stop cycle at a time. It is not
// safe for concurrent use.
type PositionTracker struct {
	cfg      Config
	caps     models.Capabilities
	logger   *zap.Logger
	detector *vision.Detector

	frameRate float64
	armed     bool

	initial    models.NormalizedPoint
	last       models.NormalizedPoint
	isTracking bool
	misses     int

	frame      int64
	points     []models.TrackedPoint
	recent     [2]confirmed
	nConfirmed int
}

func New(cfg Config, caps models.Capabilities, logger *zap.Logger) *PositionTracker {
	t := &PositionTracker{
		cfg:      cfg,
		caps:     caps,
		logger:   logger,
		detector: vision.NewDetector(),
		points:   make([]models.TrackedPoint, 0, 64),
	}
	t.setFrameRate(cfg.FrameRate)
	return t
}

// Arm starts a new shot at the given position. Any previous shot state is
// discarded.
func (t *PositionTracker) Arm(initial models.NormalizedPoint) {
	initial = initial.Clamp()
	t.armed = true
	t.initial = initial
	t.last = initial
	t.isTracking = false
	t.misses = 0
	t.points = t.points[:0]
	t.nConfirmed = 0
	t.logger.Debug("Tracker armed",
		zap.Float64("x", initial.X),
		zap.Float64("y", initial.Y))
}

// BeginTracking starts searching from the armed position on the next frame.
func (t *PositionTracker) BeginTracking() {
	t.mustBeArmed()
	t.isTracking = true
	t.misses = 0
}

func (t *PositionTracker) EndTracking() {
	t.isTracking = false
}

// Reset drops all state, including the armed position.
func (t *PositionTracker) Reset() {
	t.armed = false
	t.isTracking = false
	t.misses = 0
	t.points = t.points[:0]
	t.nConfirmed = 0
	t.initial = models.NormalizedPoint{}
	t.last = models.NormalizedPoint{}
}

// UpdateFrameSpacing adjusts the expected interval between frames, for
// example when the host throttles capture.
func (t *PositionTracker) UpdateFrameSpacing(seconds float64) {
	if seconds <= 0 {
		return
	}
	t.setFrameRate(1 / seconds)
}

func (t *PositionTracker) setFrameRate(rate float64) {
	if rate <= 0 {
		rate = DefaultConfig().FrameRate
	}
	if t.caps.MaxFrameRate > 0 && rate > t.caps.MaxFrameRate {
		rate = t.caps.MaxFrameRate
	}
	t.frameRate = rate
}

func (t *PositionTracker) FrameRate() float64 {
	return t.frameRate
}

func (t *PositionTracker) Armed() bool {
	return t.armed
}

func (t *PositionTracker) IsTracking() bool {
	return t.isTracking
}

func (t *PositionTracker) State() State {
	s := State{IsTracking: t.isTracking, FramesSinceDetection: t.misses}
	if t.armed {
		initial, last := t.initial, t.last
		s.InitialPosition = &initial
		s.LastPosition = &last
	}
	return s
}

// Points returns a copy of the confirmed points of the current shot.
func (t *PositionTracker) Points() []models.TrackedPoint {
	out := make([]models.TrackedPoint, len(t.points))
	copy(out, t.points)
	return out
}

// SearchWindow returns the display-space window size for the current frame
// rate. The edge shrinks as the frame rate rises since the ball moves less
// between frames; the window is taller than wide.
func (t *PositionTracker) SearchWindow() (width, height float64) {
	ref := t.cfg.ReferenceFrameRate
	if ref <= 0 {
		ref = t.frameRate
	}
	edge := t.cfg.SearchWindowRatio * ref / t.frameRate
	if t.cfg.MinWindow > 0 {
		edge = max(edge, t.cfg.MinWindow)
	}
	if t.cfg.MaxWindow > 0 {
		edge = min(edge, t.cfg.MaxWindow)
	}
	aspect := t.cfg.WindowAspect
	if aspect <= 0 {
		aspect = 1
	}
	return edge, edge * aspect
}

// Process runs one frame. It panics with ErrNotArmed if Arm was never
// called. Malformed frames leave the state untouched.
func (t *PositionTracker) Process(frame vision.Frame, orientation models.Orientation, timestamp time.Duration) Result {
	t.mustBeArmed()
	t.frame++

	if !t.isTracking || !frame.Valid() {
		return t.result()
	}

	width, height := t.SearchWindow()
	center := t.last.Add(0, t.cfg.VerticalBias*height)
	rect := vision.WindowToPixels(frame, center, width, height, orientation)

	if blob, ok := t.detector.Detect(frame, rect, t.cfg.Blob); ok {
		pos := vision.PixelToNormalized(frame, blob.CentroidX, blob.CentroidY, orientation).Clamp()
		point := models.TrackedPoint{Position: pos, Timestamp: timestamp, Confidence: blob.Confidence}
		t.record(point)

		res := t.result()
		res.Detected = true
		res.Point = point
		return res
	}

	t.misses++
	if t.misses > t.cfg.MaxMissingFrames {
		t.isTracking = false
		t.logger.Debug("Tracker lost ball",
			zap.Int("misses", t.misses),
			zap.Int("points", len(t.points)))
		res := t.result()
		res.Lost = true
		return res
	}

	// Extrapolated positions only steer the next search window; they are
	// never recorded as confirmed points.
	vx, vy := t.velocity()
	t.last = t.last.Add(vx, vy+t.cfg.GravityBias).Clamp()

	res := t.result()
	res.Predicted = true
	return res
}

func (t *PositionTracker) record(p models.TrackedPoint) {
	if t.cfg.MaxPoints > 0 && len(t.points) >= t.cfg.MaxPoints {
		copy(t.points, t.points[1:])
		t.points = t.points[:len(t.points)-1]
	}
	t.points = append(t.points, p)
	t.last = p.Position
	t.misses = 0

	t.recent[0] = t.recent[1]
	t.recent[1] = confirmed{pos: p.Position, frame: t.frame}
	if t.nConfirmed < 2 {
		t.nConfirmed++
	}
}

// velocity is the per-frame displacement between the last two confirmed
// points.
func (t *PositionTracker) velocity() (float64, float64) {
	if t.nConfirmed < 2 {
		return 0, 0
	}
	a, b := t.recent[0], t.recent[1]
	frames := float64(b.frame - a.frame)
	if frames <= 0 {
		return 0, 0
	}
	return (b.pos.X - a.pos.X) / frames, (b.pos.Y - a.pos.Y) / frames
}

func (t *PositionTracker) result() Result {
	return Result{
		Position:    t.last,
		HasPosition: t.armed,
		Points:      t.points,
		IsTracking:  t.isTracking,
	}
}

func (t *PositionTracker) mustBeArmed() {
	if !t.armed {
		panic(ErrNotArmed)
	}
}
