package swing

// Config holds the velocity thresholds in normalized units per frame.
// Positive velocity is upward motion of the keypoint.
type Config struct {
	BackswingThreshold float64 `json:"backswing_threshold"`
	TopSettle          float64 `json:"top_settle"`
	DownswingThreshold float64 `json:"downswing_threshold"`
	ImpactPeak         float64 `json:"impact_peak"`
	ReboundMargin      float64 `json:"rebound_margin"`
	MinFramesSincePeak int     `json:"min_frames_since_peak"`
	DownswingTimeout   int     `json:"downswing_timeout"`
	MinConfidence      float64 `json:"min_confidence"`
	VelocityWindow     int     `json:"velocity_window"`
	TopHistory         int     `json:"top_history"`
	EventQueueSize     int     `json:"event_queue_size"`
}

func DefaultConfig() Config {
	return Config{
		BackswingThreshold: 0.015,
		TopSettle:          0.005,
		DownswingThreshold: -0.02,
		ImpactPeak:         -0.04,
		ReboundMargin:      0.02,
		MinFramesSincePeak: 2,
		DownswingTimeout:   30,
		MinConfidence:      0.3,
		VelocityWindow:     5,
		TopHistory:         3,
		EventQueueSize:     16,
	}
}
