package trajectory

import (
	"math"

	"github.com/san-kum/shot-tracer/server/models"
	"go.uber.org/zap"
)

// StoreConfig controls candidate aging, validity and capacity.
type StoreConfig struct {
	MaxCandidateAge           int     `json:"max_candidate_age"`
	MinProjectedPoints        int     `json:"min_projected_points"`
	MinHorizontalDisplacement float64 `json:"min_horizontal_displacement"`
	MinConfidence             float64 `json:"min_confidence"`
	MaxStartDistance          float64 `json:"max_start_distance"`
	MaxCandidates             int     `json:"max_candidates"`
	MaxPointsPerCandidate     int     `json:"max_points_per_candidate"`

	// NominalFrameSpacing is the frame interval, in seconds, that
	// MaxCandidateAge was tuned for. Zero disables rescaling.
	NominalFrameSpacing float64 `json:"nominal_frame_spacing"`
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxCandidateAge:           10,
		MinProjectedPoints:        5,
		MinHorizontalDisplacement: 0.05,
		MinConfidence:             0.3,
		MaxStartDistance:          0.45,
		MaxCandidates:             32,
		MaxPointsPerCandidate:     1024,
	}
}

const (
	detectedWeight  = 0.08
	projectedWeight = 0.02
)

type ingestOptions struct {
	additive bool
}

type IngestOption func(*ingestOptions)

// WithAdditiveMerge merges projected points into the existing ones instead
// of replacing them.
func WithAdditiveMerge() IngestOption {
	return func(o *ingestOptions) { o.additive = true }
}

// Store owns the live candidates and picks the primary trajectory. It is not
// safe for concurrent use.
type Store struct {
	cfg    StoreConfig
	logger *zap.Logger

	candidates []*Candidate
	seq        uint64
	maxAge     int

	expectedStart    models.NormalizedPoint
	hasExpectedStart bool
}

func NewStore(cfg StoreConfig, logger *zap.Logger) *Store {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultStoreConfig().MaxCandidates
	}
	return &Store{
		cfg:        cfg,
		logger:     logger,
		candidates: make([]*Candidate, 0, cfg.MaxCandidates),
		maxAge:     cfg.MaxCandidateAge,
	}
}

// Ingest merges an observation into the candidate with the same id, creating
// it when unseen. Observations without an id are ignored.
func (s *Store) Ingest(obs Observation, opts ...IngestOption) {
	if obs.ID == "" {
		return
	}
	var o ingestOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := s.find(obs.ID)
	if c == nil {
		if len(s.candidates) >= s.cfg.MaxCandidates {
			s.evictStalest()
		}
		s.seq++
		c = newCandidate(obs.ID, s.seq)
		s.candidates = append(s.candidates, c)
	}
	c.merge(obs, o.additive, s.cfg.MaxPointsPerCandidate)
}

// Tick ages every candidate by one frame and evicts those older than the
// maximum age.
func (s *Store) Tick() {
	kept := s.candidates[:0]
	for _, c := range s.candidates {
		c.Age++
		if c.Age > s.maxAge {
			s.logger.Debug("Evicting stale candidate",
				zap.String("candidate_id", c.ID),
				zap.Int("age", c.Age))
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(s.candidates); i++ {
		s.candidates[i] = nil
	}
	s.candidates = kept
}

// Primary returns the best valid candidate, or false when none qualifies.
func (s *Store) Primary() (models.Trajectory, bool) {
	var best *Candidate
	var bestScore float64
	for _, c := range s.candidates {
		if !s.valid(c) {
			continue
		}
		score := s.score(c)
		if best == nil || better(c, score, best, bestScore) {
			best, bestScore = c, score
		}
	}
	if best == nil {
		return models.Trajectory{}, false
	}
	return best.trajectory(bestScore), true
}

func better(c *Candidate, score float64, best *Candidate, bestScore float64) bool {
	if score != bestScore {
		return score > bestScore
	}
	if len(c.Detected) != len(best.Detected) {
		return len(c.Detected) > len(best.Detected)
	}
	return c.seq < best.seq
}

func (s *Store) valid(c *Candidate) bool {
	if len(c.Projected) < s.cfg.MinProjectedPoints || len(c.Projected) == 0 {
		return false
	}
	if !c.Convention.ArcOpening(c.Fit.A) {
		return false
	}
	first, last := c.Projected[0], c.Projected[len(c.Projected)-1]
	if math.Abs(last.Position.X-first.Position.X) <= s.cfg.MinHorizontalDisplacement {
		return false
	}
	if c.Confidence <= s.cfg.MinConfidence {
		return false
	}
	if d, ok := s.startDistance(c); ok && d > s.cfg.MaxStartDistance {
		return false
	}
	return true
}

func (s *Store) score(c *Candidate) float64 {
	score := c.Confidence +
		detectedWeight*float64(len(c.Detected)) +
		projectedWeight*float64(len(c.Projected))
	if d, ok := s.startDistance(c); ok {
		score += math.Max(0, 1-d/s.cfg.MaxStartDistance)
	}
	return score
}

// startDistance is the top-left distance from the expected start to the
// candidate's first point. It reports false when no start is known.
func (s *Store) startDistance(c *Candidate) (float64, bool) {
	if !s.hasExpectedStart || s.cfg.MaxStartDistance <= 0 {
		return 0, false
	}
	first, ok := c.FirstPoint()
	if !ok {
		return 0, false
	}
	return c.Convention.ToTopLeft(first.Position).DistanceTo(s.expectedStart), true
}

// SetExpectedStart sets or, with nil, clears the expected launch position.
func (s *Store) SetExpectedStart(p *models.NormalizedPoint) {
	if p == nil {
		s.hasExpectedStart = false
		return
	}
	s.expectedStart = *p
	s.hasExpectedStart = true
}

// UpdateFrameSpacing rescales the eviction age so candidates survive the same
// wall-clock time when the host changes its capture interval.
func (s *Store) UpdateFrameSpacing(seconds float64) {
	if seconds <= 0 || s.cfg.NominalFrameSpacing <= 0 {
		return
	}
	age := int(math.Round(float64(s.cfg.MaxCandidateAge) * s.cfg.NominalFrameSpacing / seconds))
	s.maxAge = max(1, age)
}

func (s *Store) MaxAge() int {
	return s.maxAge
}

func (s *Store) Len() int {
	return len(s.candidates)
}

// Reset drops all candidates and the expected start.
func (s *Store) Reset() {
	for i := range s.candidates {
		s.candidates[i] = nil
	}
	s.candidates = s.candidates[:0]
	s.hasExpectedStart = false
}

func (s *Store) find(id string) *Candidate {
	for _, c := range s.candidates {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Store) evictStalest() {
	idx := 0
	for i, c := range s.candidates {
		o := s.candidates[idx]
		if c.Age > o.Age || (c.Age == o.Age && c.seq < o.seq) {
			idx = i
		}
	}
	s.logger.Debug("Candidate capacity reached, evicting",
		zap.String("candidate_id", s.candidates[idx].ID))
	copy(s.candidates[idx:], s.candidates[idx+1:])
	s.candidates[len(s.candidates)-1] = nil
	s.candidates = s.candidates[:len(s.candidates)-1]
}
