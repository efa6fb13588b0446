package models

import "time"

// FrameRequest is one captured frame. Either Pixels (raw 4-byte pixels,
// base64 in JSON) with its geometry, or Image (a PNG or JPEG data URL) must
// be set.
type FrameRequest struct {
	Pixels      []byte          `json:"pixels,omitempty"`
	Width       int             `json:"width,omitempty"`
	Height      int             `json:"height,omitempty"`
	Stride      int             `json:"stride,omitempty"`
	Format      string          `json:"format,omitempty"`
	Image       string          `json:"image,omitempty"`
	Orientation Orientation     `json:"orientation,omitempty"`
	Timestamp   int64           `json:"timestamp_us"` // capture time in microseconds
	Keypoint    *KeypointSample `json:"keypoint,omitempty"`
}

// KeypointSample is one body keypoint in top-left normalized coordinates.
type KeypointSample struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

type ControlAction string

const (
	ActionArm     ControlAction = "arm"
	ActionBegin   ControlAction = "begin"
	ActionEnd     ControlAction = "end"
	ActionReset   ControlAction = "reset"
	ActionFinish  ControlAction = "finish"
	ActionSpacing ControlAction = "spacing"
)

func (a ControlAction) Valid() bool {
	switch a {
	case ActionArm, ActionBegin, ActionEnd, ActionReset, ActionFinish, ActionSpacing:
		return true
	}
	return false
}

// ControlRequest changes session state between frames. Position is required
// for arm; FrameSpacing (seconds) for spacing.
type ControlRequest struct {
	Action       ControlAction    `json:"action"`
	Position     *NormalizedPoint `json:"position,omitempty"`
	FrameSpacing float64          `json:"frame_spacing,omitempty"`
}

// FrameResult is what a client gets back for each frame.
type FrameResult struct {
	SessionID      string           `json:"session_id"`
	Frame          int64            `json:"frame"`
	Timestamp      int64            `json:"timestamp_us"`
	Phase          SwingPhase       `json:"phase"`
	PhaseChanges   []PhaseChange    `json:"phase_changes,omitempty"`
	Launched       bool             `json:"launched"`
	Skipped        bool             `json:"skipped,omitempty"`
	IsTracking     bool             `json:"is_tracking"`
	Detected       bool             `json:"detected"`
	Predicted      bool             `json:"predicted"`
	Position       *NormalizedPoint `json:"position,omitempty"`
	Points         int              `json:"points"`
	Trajectory     *Trajectory      `json:"trajectory,omitempty"`
	ShotID         string           `json:"shot_id,omitempty"`
	ProcessingTime float64          `json:"processing_time_ms"`
}

type PhaseChange struct {
	From     SwingPhase `json:"from"`
	To       SwingPhase `json:"to"`
	Launched bool       `json:"launched"`
}

// ShotResult is a finished shot, kept in the cache for later retrieval.
type ShotResult struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Index       int        `json:"index"`
	Trajectory  Trajectory `json:"trajectory"`
	StartFrame  int64      `json:"start_frame"`
	EndFrame    int64      `json:"end_frame"`
	CompletedAt time.Time  `json:"completed_at"`
}

type SessionInfo struct {
	ID                   string           `json:"id"`
	CreatedAt            time.Time        `json:"created_at"`
	Capabilities         Capabilities     `json:"capabilities"`
	Phase                SwingPhase       `json:"phase"`
	Armed                bool             `json:"armed"`
	IsTracking           bool             `json:"is_tracking"`
	InitialPosition      *NormalizedPoint `json:"initial_position,omitempty"`
	LastPosition         *NormalizedPoint `json:"last_position,omitempty"`
	FramesSinceDetection int              `json:"frames_since_detection"`
	FrameRate            float64          `json:"frame_rate"`
	Frames               int64            `json:"frames"`
	Candidates           int              `json:"candidates"`
	Shots                []string         `json:"shots"`
}

type APIResponse struct {
	Success bool          `json:"success"`
	Data    any           `json:"data,omitempty"`
	Error   *APIError     `json:"error,omitempty"`
	Meta    *ResponseMeta `json:"meta,omitempty"`
}

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ResponseMeta struct {
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	ProcessingTime float64   `json:"processing_time"`
	Version        string    `json:"version"`
}
