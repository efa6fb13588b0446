package cache

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var ErrCacheMiss = errors.New("cache miss")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Cache stores JSON-encoded values. Get decodes into dest, which must be a
// pointer.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}) error

	Get(ctx context.Context, key string, dest interface{}) error

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	GetTTL(ctx context.Context, key string) (time.Duration, error)

	GetStats(ctx context.Context) (*CacheStats, error)

	Close() error
}

type CacheStats struct {
	Backend   string `json:"backend"`
	Connected bool   `json:"connected"`
	Info      string `json:"info"`
}

// GenerateCacheKey hashes the components into a fixed-length key.
func GenerateCacheKey(components ...string) string {
	sum := md5.Sum([]byte(strings.Join(components, "\x00")))
	return fmt.Sprintf("%x", sum)
}

// ShotKey is the cache key of a finished shot.
func ShotKey(sessionID, shotID string) string {
	return "shot:" + GenerateCacheKey(sessionID, shotID)
}

func encode(value interface{}) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode cache value: %w", err)
	}
	return data, nil
}

func decode(data []byte, dest interface{}) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode cache value: %w", err)
	}
	return nil
}
