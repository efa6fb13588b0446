package tracking

import "github.com/san-kum/shot-tracer/server/vision"

// Config holds the position tracker's tuning. Window sizes are in
// normalized display units.
type Config struct {
	Blob vision.BlobParams `json:"blob"`

	FrameRate          float64 `json:"frame_rate"`           // capture rate, drives window size
	ReferenceFrameRate float64 `json:"reference_frame_rate"` // rate at which SearchWindowRatio applies
	SearchWindowRatio  float64 `json:"search_window_ratio"`  // window width at the reference rate
	WindowAspect       float64 `json:"window_aspect"`        // height / width
	VerticalBias       float64 `json:"vertical_bias"`        // center offset as a fraction of height, negative is up
	MinWindow          float64 `json:"min_window"`
	MaxWindow          float64 `json:"max_window"`

	MaxMissingFrames int     `json:"max_missing_frames"`
	GravityBias      float64 `json:"gravity_bias"` // downward drift added per extrapolated frame
	MaxPoints        int     `json:"max_points"`
}

func DefaultConfig() Config {
	return Config{
		Blob:               vision.DefaultBlobParams(),
		FrameRate:          240,
		ReferenceFrameRate: 60,
		SearchWindowRatio:  0.12,
		WindowAspect:       1.5,
		VerticalBias:       -0.25,
		MinWindow:          0.02,
		MaxWindow:          0.5,
		MaxMissingFrames:   6,
		GravityBias:        0.002,
		MaxPoints:          1024,
	}
}
