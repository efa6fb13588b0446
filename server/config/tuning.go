package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/san-kum/shot-tracer/server/swing"
	"github.com/san-kum/shot-tracer/server/tracking"
	"github.com/san-kum/shot-tracer/server/trajectory"
	"github.com/spf13/viper"
)

const tuningFile = "tuning"

// Tuning groups the algorithm settings a session is built from.
type Tuning struct {
	Tracker tracking.Config        `json:"tracker"`
	Store   trajectory.StoreConfig `json:"store"`
	Swing   swing.Config           `json:"swing"`
}

func DefaultTuning() *Tuning {
	return &Tuning{
		Tracker: tracking.DefaultConfig(),
		Store:   trajectory.DefaultStoreConfig(),
		Swing:   swing.DefaultConfig(),
	}
}

// LoadTuning reads tuning.json from dir on top of the defaults. A missing
// file is not an error. Every key can be overridden from the environment
// with the TRACKER_ prefix, e.g. TRACKER_BLOB_BRIGHTNESS_FLOOR.
func LoadTuning(dir string) (*Tuning, error) {
	v := viper.New()
	setTuning(v.SetDefault, DefaultTuning())

	v.SetConfigName(tuningFile)
	v.SetConfigType("json")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading tuning file: %w", err)
		}
	}

	t := tuningFrom(v)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// SaveTuning writes t to tuning.json in dir.
func SaveTuning(dir string, t *Tuning) error {
	v := viper.New()
	setTuning(v.Set, t)
	if err := v.WriteConfigAs(filepath.Join(dir, tuningFile+".json")); err != nil {
		return fmt.Errorf("error writing tuning file: %w", err)
	}
	return nil
}

func (t *Tuning) Validate() error {
	var errs []string

	b := t.Tracker.Blob
	if b.SaturationCeiling < 0 || b.SaturationCeiling > 1 {
		errs = append(errs, "blob saturation ceiling must be within [0, 1]")
	}
	if b.MinPixels < 1 || b.MaxPixels < b.MinPixels {
		errs = append(errs, "blob pixel bounds must satisfy 1 <= min <= max")
	}
	if b.Stride < 1 {
		errs = append(errs, "blob stride must be positive")
	}
	if t.Tracker.FrameRate <= 0 {
		errs = append(errs, "frame rate must be positive")
	}
	if t.Tracker.SearchWindowRatio <= 0 {
		errs = append(errs, "search window ratio must be positive")
	}
	if t.Tracker.MaxMissingFrames < 0 {
		errs = append(errs, "max missing frames must not be negative")
	}
	if t.Store.MaxCandidateAge < 1 {
		errs = append(errs, "max candidate age must be positive")
	}
	if t.Store.MaxStartDistance < 0 {
		errs = append(errs, "max start distance must not be negative")
	}
	if t.Swing.BackswingThreshold <= 0 || t.Swing.DownswingThreshold >= 0 || t.Swing.ImpactPeak >= 0 {
		errs = append(errs, "swing thresholds must be positive for backswing and negative for downswing and impact")
	}

	if len(errs) > 0 {
		return fmt.Errorf("tuning validation failed: %s", strings.Join(errs, ", "))
	}
	return nil
}

func setTuning(set func(string, any), t *Tuning) {
	tr := t.Tracker
	set("blob.brightness_floor", int(tr.Blob.BrightnessFloor))
	set("blob.saturation_ceiling", tr.Blob.SaturationCeiling)
	set("blob.min_pixels", tr.Blob.MinPixels)
	set("blob.max_pixels", tr.Blob.MaxPixels)
	set("blob.stride", tr.Blob.Stride)

	set("tracker.frame_rate", tr.FrameRate)
	set("tracker.reference_frame_rate", tr.ReferenceFrameRate)
	set("tracker.search_window_ratio", tr.SearchWindowRatio)
	set("tracker.window_aspect", tr.WindowAspect)
	set("tracker.vertical_bias", tr.VerticalBias)
	set("tracker.min_window", tr.MinWindow)
	set("tracker.max_window", tr.MaxWindow)
	set("tracker.max_missing_frames", tr.MaxMissingFrames)
	set("tracker.gravity_bias", tr.GravityBias)
	set("tracker.max_points", tr.MaxPoints)

	st := t.Store
	set("store.max_candidate_age", st.MaxCandidateAge)
	set("store.min_projected_points", st.MinProjectedPoints)
	set("store.min_horizontal_displacement", st.MinHorizontalDisplacement)
	set("store.min_confidence", st.MinConfidence)
	set("store.max_start_distance", st.MaxStartDistance)
	set("store.max_candidates", st.MaxCandidates)
	set("store.max_points_per_candidate", st.MaxPointsPerCandidate)
	set("store.nominal_frame_spacing", st.NominalFrameSpacing)

	sw := t.Swing
	set("swing.backswing_threshold", sw.BackswingThreshold)
	set("swing.top_settle", sw.TopSettle)
	set("swing.downswing_threshold", sw.DownswingThreshold)
	set("swing.impact_peak", sw.ImpactPeak)
	set("swing.rebound_margin", sw.ReboundMargin)
	set("swing.min_frames_since_peak", sw.MinFramesSincePeak)
	set("swing.downswing_timeout", sw.DownswingTimeout)
	set("swing.min_confidence", sw.MinConfidence)
	set("swing.velocity_window", sw.VelocityWindow)
	set("swing.top_history", sw.TopHistory)
	set("swing.event_queue_size", sw.EventQueueSize)
}

func tuningFrom(v *viper.Viper) *Tuning {
	t := DefaultTuning()

	floor := v.GetInt("blob.brightness_floor")
	t.Tracker.Blob.BrightnessFloor = uint8(min(max(floor, 0), 255))
	t.Tracker.Blob.SaturationCeiling = v.GetFloat64("blob.saturation_ceiling")
	t.Tracker.Blob.MinPixels = v.GetInt("blob.min_pixels")
	t.Tracker.Blob.MaxPixels = v.GetInt("blob.max_pixels")
	t.Tracker.Blob.Stride = v.GetInt("blob.stride")

	t.Tracker.FrameRate = v.GetFloat64("tracker.frame_rate")
	t.Tracker.ReferenceFrameRate = v.GetFloat64("tracker.reference_frame_rate")
	t.Tracker.SearchWindowRatio = v.GetFloat64("tracker.search_window_ratio")
	t.Tracker.WindowAspect = v.GetFloat64("tracker.window_aspect")
	t.Tracker.VerticalBias = v.GetFloat64("tracker.vertical_bias")
	t.Tracker.MinWindow = v.GetFloat64("tracker.min_window")
	t.Tracker.MaxWindow = v.GetFloat64("tracker.max_window")
	t.Tracker.MaxMissingFrames = v.GetInt("tracker.max_missing_frames")
	t.Tracker.GravityBias = v.GetFloat64("tracker.gravity_bias")
	t.Tracker.MaxPoints = v.GetInt("tracker.max_points")

	t.Store.MaxCandidateAge = v.GetInt("store.max_candidate_age")
	t.Store.MinProjectedPoints = v.GetInt("store.min_projected_points")
	t.Store.MinHorizontalDisplacement = v.GetFloat64("store.min_horizontal_displacement")
	t.Store.MinConfidence = v.GetFloat64("store.min_confidence")
	t.Store.MaxStartDistance = v.GetFloat64("store.max_start_distance")
	t.Store.MaxCandidates = v.GetInt("store.max_candidates")
	t.Store.MaxPointsPerCandidate = v.GetInt("store.max_points_per_candidate")
	t.Store.NominalFrameSpacing = v.GetFloat64("store.nominal_frame_spacing")

	t.Swing.BackswingThreshold = v.GetFloat64("swing.backswing_threshold")
	t.Swing.TopSettle = v.GetFloat64("swing.top_settle")
	t.Swing.DownswingThreshold = v.GetFloat64("swing.downswing_threshold")
	t.Swing.ImpactPeak = v.GetFloat64("swing.impact_peak")
	t.Swing.ReboundMargin = v.GetFloat64("swing.rebound_margin")
	t.Swing.MinFramesSincePeak = v.GetInt("swing.min_frames_since_peak")
	t.Swing.DownswingTimeout = v.GetInt("swing.downswing_timeout")
	t.Swing.MinConfidence = v.GetFloat64("swing.min_confidence")
	t.Swing.VelocityWindow = v.GetInt("swing.velocity_window")
	t.Swing.TopHistory = v.GetInt("swing.top_history")
	t.Swing.EventQueueSize = v.GetInt("swing.event_queue_size")

	return t
}
