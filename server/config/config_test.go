package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "", cfg.Pose.BaseURL)
	assert.Equal(t, "right_wrist", cfg.Pose.Keypoint)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 64, cfg.Processor.QueueSize)
	assert.Equal(t, 240.0, cfg.Processor.MaxFrameRate)
	assert.True(t, cfg.Processor.HighFrameRate)
	assert.Equal(t, []string{"*"}, cfg.Security.AllowedOrigins)
	assert.NoError(t, cfg.ValidateConfig(zap.NewNop()))
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("CAPTURE_MAX_FRAME_RATE", "120.5")
	t.Setenv("PROCESSOR_SESSION_IDLE", "30s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("PROCESSOR_QUEUE_SIZE", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 120.5, cfg.Processor.MaxFrameRate)
	assert.Equal(t, 30*time.Second, cfg.Processor.SessionIdle)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, 64, cfg.Processor.QueueSize, "unparsable values fall back to the default")
}

func TestValidateConfig_CollectsErrors(t *testing.T) {
	cfg := LoadConfig()
	cfg.Server.Port = 0
	cfg.Redis.Enabled = true
	cfg.Redis.Host = ""
	cfg.Processor.QueueSize = 0

	err := cfg.ValidateConfig(zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server port")
	assert.Contains(t, err.Error(), "Redis host")
	assert.Contains(t, err.Error(), "queue size")
}

func TestLoadTuning_MissingFileUsesDefaults(t *testing.T) {
	tuning, err := LoadTuning(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultTuning(), tuning)
}

func TestLoadTuning_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	body := `{
		"blob": { "brightness_floor": 180, "min_pixels": 6 },
		"tracker": { "frame_rate": 120, "max_missing_frames": 4 },
		"store": { "max_candidate_age": 15 },
		"swing": { "impact_peak": -0.05 }
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tuning.json"), []byte(body), 0644))
	t.Setenv("TRACKER_STORE_MAX_START_DISTANCE", "0.3")

	tuning, err := LoadTuning(dir)
	require.NoError(t, err)

	assert.Equal(t, uint8(180), tuning.Tracker.Blob.BrightnessFloor)
	assert.Equal(t, 6, tuning.Tracker.Blob.MinPixels)
	assert.Equal(t, 600, tuning.Tracker.Blob.MaxPixels, "unset keys keep defaults")
	assert.Equal(t, 120.0, tuning.Tracker.FrameRate)
	assert.Equal(t, 4, tuning.Tracker.MaxMissingFrames)
	assert.Equal(t, 15, tuning.Store.MaxCandidateAge)
	assert.Equal(t, 0.3, tuning.Store.MaxStartDistance)
	assert.Equal(t, -0.05, tuning.Swing.ImpactPeak)
}

func TestLoadTuning_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tuning.json"), []byte(`{"blob": {"min_pixels": 50, "max_pixels": 10}}`), 0644))

	_, err := LoadTuning(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pixel bounds")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tuning.json"), []byte(`{not json`), 0644))
	_, err = LoadTuning(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading tuning file")
}

func TestSaveTuning_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	tuning := DefaultTuning()
	tuning.Tracker.Blob.BrightnessFloor = 210
	tuning.Tracker.SearchWindowRatio = 0.2
	tuning.Store.MinConfidence = 0.4
	tuning.Swing.DownswingTimeout = 45

	require.NoError(t, SaveTuning(dir, tuning))

	loaded, err := LoadTuning(dir)
	require.NoError(t, err)
	assert.Equal(t, tuning, loaded)
}
