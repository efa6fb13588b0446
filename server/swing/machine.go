// Package swing infers the phase of a golf-style swing from the vertical
// velocity of one body keypoint and signals the moment of impact.
package swing

import (
	"github.com/san-kum/shot-tracer/server/models"
	"go.uber.org/zap"
)

// Update is the outcome of one observation.
type Update struct {
	From     models.SwingPhase `json:"from"`
	To       models.SwingPhase `json:"to"`
	Changed  bool              `json:"changed"`
	Launched bool              `json:"launched"`
	Velocity float64           `json:"velocity"`
}

// Machine is the swing phase state machine. It is not safe for concurrent
// use.
type Machine struct {
	cfg    Config
	caps   models.Capabilities
	logger *zap.Logger
	events *EventQueue

	phase       models.SwingPhase
	impactFired bool
	frame       int64

	lastY    float64
	hasLastY bool
	deltas   []float64
	deltaPos int
	nDeltas  int

	history    []float64
	historyPos int
	nHistory   int

	peak            float64
	framesSincePeak int
	downswingFrames int
}

func NewMachine(cfg Config, caps models.Capabilities, logger *zap.Logger) *Machine {
	if cfg.VelocityWindow <= 0 {
		cfg.VelocityWindow = DefaultConfig().VelocityWindow
	}
	if cfg.TopHistory <= 0 {
		cfg.TopHistory = DefaultConfig().TopHistory
	}
	return &Machine{
		cfg:     cfg,
		caps:    caps,
		logger:  logger,
		events:  NewEventQueue(cfg.EventQueueSize),
		deltas:  make([]float64, cfg.VelocityWindow),
		history: make([]float64, cfg.TopHistory),
	}
}

// Events returns the queue phase changes are pushed onto.
func (m *Machine) Events() *EventQueue {
	return m.events
}

func (m *Machine) Phase() models.SwingPhase {
	return m.phase
}

// ImpactFired reports whether impact has been declared since the last Arm.
func (m *Machine) ImpactFired() bool {
	return m.impactFired
}

// Arm starts a new session in Setup and re-enables the impact event.
func (m *Machine) Arm() {
	m.clear()
	m.transition(models.PhaseSetup, false)
}

// Reset returns to Idle and forgets all motion history.
func (m *Machine) Reset() {
	m.clear()
	m.transition(models.PhaseIdle, false)
}

// Finish closes a swing that has reached follow-through.
func (m *Machine) Finish() Update {
	from := m.phase
	if from == models.PhaseImpact || from == models.PhaseFollowThrough {
		m.transition(models.PhaseFinished, false)
	}
	return Update{From: from, To: m.phase, Changed: from != m.phase}
}

func (m *Machine) clear() {
	m.impactFired = false
	m.hasLastY = false
	m.nDeltas, m.deltaPos = 0, 0
	m.nHistory, m.historyPos = 0, 0
	m.peak, m.framesSincePeak, m.downswingFrames = 0, 0, 0
}

// Observe feeds one keypoint sample. y is the top-left normalized vertical
// position. Samples below the confidence floor are ignored without touching
// any state.
func (m *Machine) Observe(y, confidence float64) Update {
	if !m.caps.PoseKeypoints || confidence < m.cfg.MinConfidence {
		return Update{From: m.phase, To: m.phase}
	}
	if !m.hasLastY {
		m.lastY, m.hasLastY = y, true
		return Update{From: m.phase, To: m.phase}
	}

	delta := m.lastY - y
	m.lastY = y
	m.deltas[m.deltaPos] = delta
	m.deltaPos = (m.deltaPos + 1) % len(m.deltas)
	if m.nDeltas < len(m.deltas) {
		m.nDeltas++
	}

	var sum float64
	for i := 0; i < m.nDeltas; i++ {
		sum += m.deltas[i]
	}
	return m.Step(sum / float64(m.nDeltas))
}

// Step advances the machine with an already smoothed velocity.
func (m *Machine) Step(velocity float64) Update {
	m.frame++
	from := m.phase
	launched := false

	switch m.phase {
	case models.PhaseIdle, models.PhaseSetup:
		if velocity > m.cfg.BackswingThreshold {
			m.transition(models.PhaseBackswing, false)
		}

	case models.PhaseBackswing:
		switch {
		case velocity < m.cfg.DownswingThreshold:
			m.enterDownswing(velocity)
		case abs(velocity) <= m.cfg.TopSettle && m.recentlyRising():
			m.transition(models.PhaseTop, false)
		}

	case models.PhaseTop:
		if velocity < m.cfg.DownswingThreshold {
			m.enterDownswing(velocity)
		}

	case models.PhaseDownswing:
		m.downswingFrames++
		if velocity < m.peak {
			m.peak = velocity
			m.framesSincePeak = 0
		} else {
			m.framesSincePeak++
		}

		if !m.impactFired &&
			m.peak < m.cfg.ImpactPeak &&
			velocity > m.peak+m.cfg.ReboundMargin &&
			m.framesSincePeak >= m.cfg.MinFramesSincePeak {
			m.impactFired = true
			launched = true
			m.transition(models.PhaseImpact, true)
			m.transition(models.PhaseFollowThrough, false)
		} else if m.downswingFrames >= m.cfg.DownswingTimeout {
			m.transition(models.PhaseSetup, false)
		}

	case models.PhaseImpact, models.PhaseFollowThrough, models.PhaseFinished:
	}

	m.remember(velocity)
	return Update{From: from, To: m.phase, Changed: from != m.phase, Launched: launched, Velocity: velocity}
}

func (m *Machine) enterDownswing(velocity float64) {
	m.peak = velocity
	m.framesSincePeak = 0
	m.downswingFrames = 0
	m.transition(models.PhaseDownswing, false)
}

// recentlyRising reports whether any of the last few velocities was clearly
// upward.
func (m *Machine) recentlyRising() bool {
	for i := 0; i < m.nHistory; i++ {
		if m.history[i] > m.cfg.BackswingThreshold {
			return true
		}
	}
	return false
}

func (m *Machine) remember(velocity float64) {
	m.history[m.historyPos] = velocity
	m.historyPos = (m.historyPos + 1) % len(m.history)
	if m.nHistory < len(m.history) {
		m.nHistory++
	}
}

func (m *Machine) transition(to models.SwingPhase, launched bool) {
	from := m.phase
	if from == to {
		return
	}
	m.phase = to
	m.events.Push(Event{Frame: m.frame, From: from, To: to, Launched: launched})
	m.logger.Debug("Swing phase changed",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int64("frame", m.frame))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
