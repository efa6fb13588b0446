package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Pose      PoseConfig      `json:"pose"`
	Security  SecurityConfig  `json:"security"`
	Redis     RedisConfig     `json:"redis"`
	Cache     CacheConfig     `json:"cache"`
	Processor ProcessorConfig `json:"processor"`
	Logging   LoggingConfig   `json:"logging"`
}

type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Environment  string        `json:"environment"`
}

// PoseConfig points at the optional keypoint service. An empty BaseURL
// disables it; keypoints then have to arrive with each frame.
type PoseConfig struct {
	BaseURL    string        `json:"base_url"`
	Keypoint   string        `json:"keypoint"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
}

type SecurityConfig struct {
	JWTSecretKey   string        `json:"jwt_secret_key"`
	AllowedOrigins []string      `json:"allowed_origins"`
	RateLimitRPS   int           `json:"rate_limit_rps"`
	RateLimitBurst int           `json:"rate_limit_burst"`
	MaxRequestSize int64         `json:"max_request_size"`
	RequestTimeout time.Duration `json:"request_timeout"`
	EnableHTTPS    bool          `json:"enable_https"`
	CertFile       string        `json:"cert_file"`
	KeyFile        string        `json:"key_file"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type CacheConfig struct {
	MaxItems int           `json:"max_items"`
	TTL      time.Duration `json:"ttl"`
}

type ProcessorConfig struct {
	QueueSize      int           `json:"queue_size"`
	MaxSessions    int           `json:"max_sessions"`
	SessionIdle    time.Duration `json:"session_idle"`
	RequestTimeout time.Duration `json:"request_timeout"`
	TuningDir      string        `json:"tuning_dir"`
	HighFrameRate  bool          `json:"high_frame_rate"`
	MaxFrameRate   float64       `json:"max_frame_rate"`
	PoseKeypoints  bool          `json:"pose_keypoints"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Output     string `json:"output"`
	MaxSize    int    `json:"max_size"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`
}

func LoadConfig() *Config {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Pose: PoseConfig{
			BaseURL:    getEnv("POSE_BASE_URL", ""),
			Keypoint:   getEnv("POSE_KEYPOINT", "right_wrist"),
			Timeout:    getEnvAsDuration("POSE_TIMEOUT", 2*time.Second),
			MaxRetries: getEnvAsInt("POSE_MAX_RETRIES", 2),
			RetryDelay: getEnvAsDuration("POSE_RETRY_DELAY", 50*time.Millisecond),
		},
		Security: SecurityConfig{
			JWTSecretKey:   getEnv("JWT_SECRET_KEY", ""),
			AllowedOrigins: getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
			RateLimitRPS:   getEnvAsInt("RATE_LIMIT_RPS", 300),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 600),
			MaxRequestSize: getEnvAsInt64("MAX_REQUEST_SIZE", 10*1024*1024), // 10MB
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
			EnableHTTPS:    getEnvAsBool("ENABLE_HTTPS", false),
			CertFile:       getEnv("CERT_FILE", ""),
			KeyFile:        getEnv("KEY_FILE", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
		},
		Cache: CacheConfig{
			MaxItems: getEnvAsInt("CACHE_MAX_ITEMS", 1000),
			TTL:      getEnvAsDuration("CACHE_TTL", time.Hour),
		},
		Processor: ProcessorConfig{
			QueueSize:      getEnvAsInt("PROCESSOR_QUEUE_SIZE", 64),
			MaxSessions:    getEnvAsInt("PROCESSOR_MAX_SESSIONS", 32),
			SessionIdle:    getEnvAsDuration("PROCESSOR_SESSION_IDLE", 10*time.Minute),
			RequestTimeout: getEnvAsDuration("PROCESSOR_REQUEST_TIMEOUT", 5*time.Second),
			TuningDir:      getEnv("TUNING_DIR", "."),
			HighFrameRate:  getEnvAsBool("CAPTURE_HIGH_FRAME_RATE", true),
			MaxFrameRate:   getEnvAsFloat("CAPTURE_MAX_FRAME_RATE", 240),
			PoseKeypoints:  getEnvAsBool("CAPTURE_POSE_KEYPOINTS", true),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			MaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
			MaxAge:     getEnvAsInt("LOG_MAX_AGE", 28),
		},
	}

	return config
}

func (c *Config) ValidateConfig(logger *zap.Logger) error {
	var errors []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "server port must be between 1 and 65535")
	}

	if c.Pose.BaseURL == "" {
		logger.Info("Pose service not configured, keypoints must be sent with frames")
	}

	if c.Security.JWTSecretKey == "" {
		logger.Warn("JWT secret key not set, admin endpoints are disabled")
	}

	if c.Security.MaxRequestSize <= 0 {
		errors = append(errors, "max request size must be positive")
	}

	if c.Redis.Enabled {
		if c.Redis.Host == "" {
			errors = append(errors, "Redis host is required")
		}
		if c.Redis.Port < 1 || c.Redis.Port > 65535 {
			errors = append(errors, "Redis port must be between 1 and 65535")
		}
	}

	if c.Processor.QueueSize <= 0 {
		errors = append(errors, "processor queue size must be positive")
	}

	if c.Processor.MaxSessions <= 0 {
		errors = append(errors, "max sessions must be positive")
	}

	if c.Processor.MaxFrameRate <= 0 {
		errors = append(errors, "max frame rate must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, ", "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
