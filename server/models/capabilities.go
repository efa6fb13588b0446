package models

// Capabilities describes what the capture host supports. It is fixed at
// construction so every code path is known up front.
type Capabilities struct {
	HighFrameRate bool    `json:"high_frame_rate"`
	MaxFrameRate  float64 `json:"max_frame_rate"`
	PoseKeypoints bool    `json:"pose_keypoints"`
}

func DefaultCapabilities() Capabilities {
	return Capabilities{
		HighFrameRate: true,
		MaxFrameRate:  240,
		PoseKeypoints: true,
	}
}
