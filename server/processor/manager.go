package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/shot-tracer/server/cache"
	"github.com/san-kum/shot-tracer/server/config"
	"github.com/san-kum/shot-tracer/server/models"
	"github.com/san-kum/shot-tracer/server/trajectory"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrShotNotFound    = errors.New("shot not found")
	ErrTooManySessions = errors.New("too many active sessions")
	ErrQueueFull       = errors.New("processing queue full, try again later")
	ErrInvalidControl  = errors.New("invalid control request")
	ErrShuttingDown    = errors.New("processor shutting down")
)

// KeypointSource supplies the swing keypoint for frames that arrive without
// one.
type KeypointSource interface {
	Keypoint(ctx context.Context, req *models.FrameRequest) (*models.KeypointSample, error)
}

type ManagerConfig struct {
	QueueSize      int                 `json:"queue_size"`
	MaxSessions    int                 `json:"max_sessions"`
	RequestTimeout time.Duration       `json:"request_timeout"`
	SessionIdle    time.Duration       `json:"session_idle"`
	ShotBuffer     int                 `json:"shot_buffer"`
	Capabilities   models.Capabilities `json:"capabilities"`
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		QueueSize:      64,
		MaxSessions:    32,
		RequestTimeout: 5 * time.Second,
		SessionIdle:    10 * time.Minute,
		ShotBuffer:     64,
		Capabilities:   models.DefaultCapabilities(),
	}
}

type ProcessorStats struct {
	StartTime             time.Time `json:"start_time"`
	TotalProcessed        int64     `json:"total_processed"`
	SuccessfullyProcessed int64     `json:"successfully_processed"`
	FailedProcessed       int64     `json:"failed_processed"`
	AverageLatency        float64   `json:"average_latency_ms"`
	ShotsCompleted        int64     `json:"shots_completed"`
	ActiveSessions        int       `json:"active_sessions"`
	QueueSize             int       `json:"queue_size"`
}

// Manager owns the live sessions and routes work to their queues.
type Manager struct {
	logger    *zap.Logger
	cache     cache.Cache
	keypoints KeypointSource
	config    ManagerConfig
	tuning    atomic.Pointer[config.Tuning]

	mutex    sync.RWMutex
	sessions map[string]*Session
	closed   bool

	statsMutex sync.Mutex
	stats      ProcessorStats

	shots  chan models.ShotResult
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager starts the shot publisher and, when SessionIdle is set, the
// idle session reaper. keypoints may be nil.
func NewManager(cfg ManagerConfig, tuning *config.Tuning, c cache.Cache, keypoints KeypointSource, logger *zap.Logger) *Manager {
	if cfg.ShotBuffer <= 0 {
		cfg.ShotBuffer = DefaultManagerConfig().ShotBuffer
	}
	if tuning == nil {
		tuning = config.DefaultTuning()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:    logger,
		cache:     c,
		keypoints: keypoints,
		config:    cfg,
		sessions:  make(map[string]*Session),
		stats:     ProcessorStats{StartTime: time.Now()},
		shots:     make(chan models.ShotResult, cfg.ShotBuffer),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.tuning.Store(tuning)

	m.wg.Add(1)
	go m.publishShots()

	if cfg.SessionIdle > 0 {
		m.wg.Add(1)
		go m.reapIdle()
	}

	return m
}

// Tuning returns the settings new sessions are built with.
func (m *Manager) Tuning() *config.Tuning {
	t := *m.tuning.Load()
	return &t
}

// SetTuning replaces the settings for sessions created from now on.
func (m *Manager) SetTuning(t *config.Tuning) {
	cp := *t
	m.tuning.Store(&cp)
	m.logger.Info("Tuning updated")
}

func (m *Manager) CreateSession() (models.SessionInfo, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return models.SessionInfo{}, ErrShuttingDown
	}
	if len(m.sessions) >= m.config.MaxSessions {
		return models.SessionInfo{}, ErrTooManySessions
	}

	id := uuid.NewString()
	s := newSession(id, m.tuning.Load(), m.config.Capabilities, m.config.QueueSize, m.shots, m.logger)
	m.sessions[id] = s

	m.logger.Info("Session created", zap.String("session_id", id))
	return s.Info(), nil
}

func (m *Manager) CloseSession(id string) error {
	m.mutex.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mutex.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	if err := s.close(m.config.RequestTimeout); err != nil {
		m.logger.Warn("Session queue did not drain", zap.String("session_id", id), zap.Error(err))
	}
	m.logger.Info("Session closed", zap.String("session_id", id), zap.Int64("frames", s.Info().Frames))
	return nil
}

func (m *Manager) session(id string) (*Session, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Manager) SessionInfo(id string) (models.SessionInfo, error) {
	s, err := m.session(id)
	if err != nil {
		return models.SessionInfo{}, err
	}
	return s.Info(), nil
}

// Trajectory returns the latest primary trajectory of a session's current
// shot. The bool is false when none has been found yet.
func (m *Manager) Trajectory(id string) (models.Trajectory, bool, error) {
	s, err := m.session(id)
	if err != nil {
		return models.Trajectory{}, false, err
	}
	t, ok := s.Trajectory()
	return t, ok, nil
}

// SubmitFrame decodes a frame, fills in the keypoint if a source is
// configured, and waits for the session to process it.
func (m *Manager) SubmitFrame(ctx context.Context, id string, req *models.FrameRequest) (*models.FrameResult, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}

	frame, err := DecodeFrame(req)
	if err != nil {
		m.recordFailure()
		return nil, err
	}

	item := newQueueItem(kindFrame)
	item.Frame = frame
	item.Orientation = req.Orientation
	item.Timestamp = req.Timestamp
	item.Keypoint = req.Keypoint

	if item.Keypoint == nil && frame.Valid() && m.keypoints != nil && s.caps.PoseKeypoints {
		kp, err := m.keypoints.Keypoint(ctx, req)
		if err != nil {
			m.logger.Debug("Keypoint lookup failed", zap.String("session_id", id), zap.Error(err))
		} else {
			item.Keypoint = kp
		}
	}

	res, err := m.run(ctx, s, item)
	if err != nil {
		return nil, err
	}
	return res.Frame, nil
}

func (m *Manager) Control(ctx context.Context, id string, req models.ControlRequest) (models.SessionInfo, error) {
	if !req.Action.Valid() {
		return models.SessionInfo{}, fmt.Errorf("%w: unknown action %q", ErrInvalidControl, req.Action)
	}
	s, err := m.session(id)
	if err != nil {
		return models.SessionInfo{}, err
	}

	item := newQueueItem(kindControl)
	item.Control = &req
	res, err := m.run(ctx, s, item)
	if err != nil {
		return models.SessionInfo{}, err
	}
	return *res.Info, nil
}

// IngestCandidate merges an externally produced trajectory observation into
// the session's store.
func (m *Manager) IngestCandidate(ctx context.Context, id string, obs trajectory.Observation, additive bool) (models.SessionInfo, error) {
	if obs.ID == "" {
		return models.SessionInfo{}, fmt.Errorf("%w: candidate id is required", ErrInvalidControl)
	}
	s, err := m.session(id)
	if err != nil {
		return models.SessionInfo{}, err
	}

	item := newQueueItem(kindCandidate)
	item.Observation = obs
	item.Additive = additive
	res, err := m.run(ctx, s, item)
	if err != nil {
		return models.SessionInfo{}, err
	}
	return *res.Info, nil
}

// Shot loads a finished shot from the cache.
func (m *Manager) Shot(ctx context.Context, sessionID, shotID string) (*models.ShotResult, error) {
	if m.cache == nil {
		return nil, ErrShotNotFound
	}
	var shot models.ShotResult
	if err := m.cache.Get(ctx, cache.ShotKey(sessionID, shotID), &shot); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrShotNotFound
		}
		return nil, err
	}
	return &shot, nil
}

func (m *Manager) run(ctx context.Context, s *Session, item *QueueItem) (*ProcessingResult, error) {
	s.touch()

	if !s.queue.Enqueue(item) {
		m.recordFailure()
		if !s.queue.IsRunning() {
			return nil, ErrSessionNotFound
		}
		return nil, ErrQueueFull
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.RequestTimeout)
	defer cancel()

	select {
	case res := <-item.ResultChan:
		if res.Error != nil {
			m.recordFailure()
			return nil, res.Error
		}
		m.recordSuccess(time.Since(item.StartTime))
		return res, nil

	case <-ctx.Done():
		m.recordFailure()
		return nil, fmt.Errorf("processing timeout: %w", ctx.Err())
	}
}

func (m *Manager) recordFailure() {
	m.statsMutex.Lock()
	m.stats.TotalProcessed++
	m.stats.FailedProcessed++
	m.statsMutex.Unlock()
}

func (m *Manager) recordSuccess(latency time.Duration) {
	m.statsMutex.Lock()
	defer m.statsMutex.Unlock()

	m.stats.TotalProcessed++
	m.stats.SuccessfullyProcessed++

	current := float64(latency.Microseconds()) / 1000
	if m.stats.AverageLatency == 0 {
		m.stats.AverageLatency = current
	} else {
		alpha := 0.1
		m.stats.AverageLatency = alpha*current + (1-alpha)*m.stats.AverageLatency
	}
}

func (m *Manager) GetStats() *ProcessorStats {
	m.statsMutex.Lock()
	stats := m.stats
	m.statsMutex.Unlock()

	m.mutex.RLock()
	stats.ActiveSessions = len(m.sessions)
	for _, s := range m.sessions {
		stats.QueueSize += s.queue.Size()
	}
	m.mutex.RUnlock()

	return &stats
}

// GetCacheStats returns cache statistics
func (m *Manager) GetCacheStats() (*cache.CacheStats, error) {
	if m.cache == nil {
		return nil, fmt.Errorf("cache not initialized")
	}

	return m.cache.GetStats(m.ctx)
}

func (m *Manager) publishShots() {
	defer m.wg.Done()

	for {
		select {
		case shot := <-m.shots:
			m.storeShot(shot)
		case <-m.ctx.Done():
			for {
				select {
				case shot := <-m.shots:
					m.storeShot(shot)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) storeShot(shot models.ShotResult) {
	m.statsMutex.Lock()
	m.stats.ShotsCompleted++
	m.statsMutex.Unlock()

	if m.cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.RequestTimeout)
	defer cancel()

	if err := m.cache.Set(ctx, cache.ShotKey(shot.SessionID, shot.ID), shot); err != nil {
		m.logger.Warn("Failed to cache shot",
			zap.String("session_id", shot.SessionID),
			zap.String("shot_id", shot.ID),
			zap.Error(err))
	}
}

func (m *Manager) reapIdle() {
	defer m.wg.Done()

	interval := m.config.SessionIdle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			m.closeIdle(now)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) closeIdle(now time.Time) int {
	m.mutex.RLock()
	var idle []string
	for id, s := range m.sessions {
		if s.idleFor(now) > m.config.SessionIdle {
			idle = append(idle, id)
		}
	}
	m.mutex.RUnlock()

	for _, id := range idle {
		m.logger.Info("Closing idle session", zap.String("session_id", id))
		_ = m.CloseSession(id)
	}
	return len(idle)
}

// Shutdown closes every session, flushes pending shots and closes the cache.
func (m *Manager) Shutdown() error {
	m.logger.Info("Shutting down session manager...")

	m.mutex.Lock()
	m.closed = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mutex.Unlock()

	for _, id := range ids {
		_ = m.CloseSession(id)
	}

	m.cancel()
	m.wg.Wait()

	if m.cache != nil {
		if err := m.cache.Close(); err != nil {
			m.logger.Error("Failed to close cache", zap.Error(err))
			return err
		}
	}

	m.logger.Info("Session manager shutdown complete")
	return nil
}
