package processor

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/shot-tracer/server/config"
	"github.com/san-kum/shot-tracer/server/models"
	"github.com/san-kum/shot-tracer/server/swing"
	"github.com/san-kum/shot-tracer/server/tracking"
	"github.com/san-kum/shot-tracer/server/trajectory"
	"go.uber.org/zap"
)

// Session is one capture stream. The tracker, store and swing machine are
// only touched by the session's queue worker; readers use the snapshot.
type Session struct {
	ID        string
	CreatedAt time.Time

	logger   *zap.Logger
	caps     models.Capabilities
	tracker  *tracking.PositionTracker
	store    *trajectory.Store
	smoother trajectory.Smoother
	swing    *swing.Machine
	acc      *trajectory.Accumulator
	queue    *ProcessingQueue
	shots    chan<- models.ShotResult

	frames     int64
	startFrame int64
	shotIDs    []string
	events     []swing.Event

	lastActive atomic.Int64

	mutex     sync.RWMutex
	latest    models.Trajectory
	hasLatest bool
	info      models.SessionInfo
}

func newSession(id string, tuning *config.Tuning, caps models.Capabilities, queueSize int, shots chan<- models.ShotResult, logger *zap.Logger) *Session {
	logger = logger.With(zap.String("session_id", id))
	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		logger:    logger,
		caps:      caps,
		tracker:   tracking.New(tuning.Tracker, caps, logger),
		store:     trajectory.NewStore(tuning.Store, logger),
		smoother:  trajectory.NewSmoother(caps),
		swing:     swing.NewMachine(tuning.Swing, caps, logger),
		acc:       trajectory.NewAccumulator("", trajectory.DefaultProjectionSamples),
		shots:     shots,
		events:    make([]swing.Event, 0, 8),
	}
	s.queue = NewProcessingQueue(queueSize, 1, s.handle)
	s.touch()
	s.publish()
	return s
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *Session) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastActive.Load()))
}

// Info returns the state as of the last processed item.
func (s *Session) Info() models.SessionInfo {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	info := s.info
	info.Shots = slices.Clone(info.Shots)
	return info
}

// Trajectory returns the most recent primary trajectory of the current shot.
func (s *Session) Trajectory() (models.Trajectory, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.latest, s.hasLatest
}

func (s *Session) close(timeout time.Duration) error {
	return s.queue.Shutdown(timeout)
}

func (s *Session) handle(item *QueueItem) {
	res := &ProcessingResult{}
	switch item.kind {
	case kindFrame:
		res.Frame = s.processFrame(item)
	case kindControl:
		res.Error = s.applyControl(item.Control)
	case kindCandidate:
		var opts []trajectory.IngestOption
		if item.Additive {
			opts = append(opts, trajectory.WithAdditiveMerge())
		}
		s.store.Ingest(item.Observation, opts...)
		s.refreshPrimary()
	}
	s.publish()
	info := s.Info()
	res.Info = &info
	item.reply(res)
}

func (s *Session) processFrame(item *QueueItem) *models.FrameResult {
	if !item.Frame.Valid() {
		return s.skipFrame(item)
	}

	s.frames++
	out := &models.FrameResult{
		SessionID: s.ID,
		Frame:     s.frames,
		Timestamp: item.Timestamp,
	}

	if kp := item.Keypoint; kp != nil {
		u := s.swing.Observe(kp.Y, kp.Confidence)
		if u.Launched {
			out.Launched = true
			if s.tracker.Armed() && !s.tracker.IsTracking() {
				s.beginShot()
			}
		}
	}
	s.events = s.swing.Events().Drain(s.events[:0])
	for _, e := range s.events {
		out.PhaseChanges = append(out.PhaseChanges, models.PhaseChange{From: e.From, To: e.To, Launched: e.Launched})
	}

	s.store.Tick()

	if s.tracker.Armed() {
		ts := time.Duration(item.Timestamp) * time.Microsecond
		res := s.tracker.Process(item.Frame, item.Orientation, ts)
		out.IsTracking = res.IsTracking
		out.Detected = res.Detected
		out.Predicted = res.Predicted
		out.Points = len(res.Points)
		if res.HasPosition {
			pos := res.Position
			out.Position = &pos
		}
		if res.Detected {
			s.acc.Add(res.Point)
			if obs, ok := s.acc.Observation(); ok {
				s.store.Ingest(obs)
			}
		}
		if res.Lost {
			out.ShotID = s.finishShot()
		}
	}

	if traj, ok := s.refreshPrimary(); ok {
		out.Trajectory = &traj
	}
	out.Phase = s.swing.Phase()
	out.ProcessingTime = float64(time.Since(item.StartTime).Microseconds()) / 1000
	return out
}

// skipFrame reports the current state for a malformed frame. Nothing
// advances: no frame count, no candidate aging, no swing sample.
func (s *Session) skipFrame(item *QueueItem) *models.FrameResult {
	s.logger.Debug("Skipping malformed frame",
		zap.Int("width", item.Frame.Width),
		zap.Int("height", item.Frame.Height),
		zap.Int64("timestamp_us", item.Timestamp))

	out := &models.FrameResult{
		SessionID:  s.ID,
		Frame:      s.frames,
		Timestamp:  item.Timestamp,
		Skipped:    true,
		IsTracking: s.tracker.IsTracking(),
		Phase:      s.swing.Phase(),
		Points:     len(s.tracker.Points()),
	}
	if traj, ok := s.Trajectory(); ok {
		out.Trajectory = &traj
	}
	out.ProcessingTime = float64(time.Since(item.StartTime).Microseconds()) / 1000
	return out
}

func (s *Session) applyControl(c *models.ControlRequest) error {
	switch c.Action {
	case models.ActionArm:
		if c.Position == nil {
			return fmt.Errorf("%w: arm requires a position", ErrInvalidControl)
		}
		pos := c.Position.Clamp()
		s.tracker.Arm(pos)
		s.store.Reset()
		s.store.SetExpectedStart(&pos)
		s.swing.Arm()
		s.acc.Reset("")
		s.clearLatest()

	case models.ActionBegin:
		if !s.tracker.Armed() {
			return fmt.Errorf("%w: begin before arm", ErrInvalidControl)
		}
		if !s.tracker.IsTracking() {
			s.beginShot()
		}

	case models.ActionEnd:
		if s.tracker.IsTracking() {
			s.tracker.EndTracking()
			s.finishShot()
		}

	case models.ActionReset:
		s.tracker.Reset()
		s.store.Reset()
		s.swing.Reset()
		s.acc.Reset("")
		s.clearLatest()

	case models.ActionFinish:
		s.swing.Finish()

	case models.ActionSpacing:
		if c.FrameSpacing <= 0 {
			return fmt.Errorf("%w: frame spacing must be positive", ErrInvalidControl)
		}
		s.tracker.UpdateFrameSpacing(c.FrameSpacing)
		s.store.UpdateFrameSpacing(c.FrameSpacing)

	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidControl, c.Action)
	}
	return nil
}

func (s *Session) beginShot() {
	s.tracker.BeginTracking()
	s.acc.Reset(uuid.NewString())
	s.startFrame = s.frames
	s.logger.Debug("Tracking started", zap.String("candidate_id", s.acc.ID()), zap.Int64("frame", s.frames))
}

// finishShot hands the current primary to the shot publisher and returns
// its id, or "" when no trajectory was found.
func (s *Session) finishShot() string {
	traj, ok := s.refreshPrimary()
	if !ok {
		s.logger.Info("Shot ended without a trajectory", zap.Int64("frame", s.frames))
		return ""
	}

	shot := models.ShotResult{
		ID:          uuid.NewString(),
		SessionID:   s.ID,
		Index:       len(s.shotIDs) + 1,
		Trajectory:  traj,
		StartFrame:  s.startFrame,
		EndFrame:    s.frames,
		CompletedAt: time.Now(),
	}
	select {
	case s.shots <- shot:
		s.shotIDs = append(s.shotIDs, shot.ID)
	default:
		s.logger.Warn("Shot publisher backlogged, dropping shot", zap.String("shot_id", shot.ID))
		return ""
	}
	s.logger.Info("Shot completed",
		zap.String("shot_id", shot.ID),
		zap.Int("detected_points", len(traj.DetectedPoints)),
		zap.Float64("confidence", traj.Confidence))
	return shot.ID
}

func (s *Session) refreshPrimary() (models.Trajectory, bool) {
	traj, ok := s.store.Primary()
	if !ok {
		return models.Trajectory{}, false
	}
	traj.SmoothedPoints = s.smoother.Smooth(traj.DetectedPoints)

	s.mutex.Lock()
	s.latest = traj
	s.hasLatest = true
	s.mutex.Unlock()
	return traj, true
}

func (s *Session) clearLatest() {
	s.mutex.Lock()
	s.latest = models.Trajectory{}
	s.hasLatest = false
	s.mutex.Unlock()
}

func (s *Session) publish() {
	state := s.tracker.State()
	info := models.SessionInfo{
		ID:                   s.ID,
		CreatedAt:            s.CreatedAt,
		Capabilities:         s.caps,
		Phase:                s.swing.Phase(),
		Armed:                s.tracker.Armed(),
		IsTracking:           state.IsTracking,
		InitialPosition:      state.InitialPosition,
		LastPosition:         state.LastPosition,
		FramesSinceDetection: state.FramesSinceDetection,
		FrameRate:            s.tracker.FrameRate(),
		Frames:               s.frames,
		Candidates:           s.store.Len(),
		Shots:                slices.Clone(s.shotIDs),
	}

	s.mutex.Lock()
	s.info = info
	s.mutex.Unlock()
}
