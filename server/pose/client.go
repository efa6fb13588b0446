package pose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/san-kum/shot-tracer/server/config"
	"github.com/san-kum/shot-tracer/server/models"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrKeypointMissing is returned when the service answered but did not see
// the configured keypoint.
var ErrKeypointMissing = errors.New("keypoint not detected")

// Client asks an external pose service for the body keypoint that drives
// swing detection.
type Client struct {
	baseURL    string
	keypoint   string
	httpClient *http.Client
	logger     *zap.Logger
	config     config.PoseConfig
}

type keypointRequest struct {
	Image     string   `json:"image,omitempty"`
	Pixels    []byte   `json:"pixels,omitempty"`
	Width     int      `json:"width,omitempty"`
	Height    int      `json:"height,omitempty"`
	Stride    int      `json:"stride,omitempty"`
	Format    string   `json:"format,omitempty"`
	Timestamp int64    `json:"timestamp_us"`
	Keypoints []string `json:"keypoints"`
}

type keypointResponse struct {
	Keypoints      []Keypoint `json:"keypoints"`
	ProcessingTime float64    `json:"processing_time"`
	ModelVersion   string     `json:"model_version"`
}

type Keypoint struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
	Visible    bool    `json:"visible"`
}

func NewClient(cfg config.PoseConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		keypoint: cfg.Keypoint,
		logger:   logger,
		config:   cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: true,
			},
		},
	}
}

// Keypoint returns the configured keypoint for one frame.
func (c *Client) Keypoint(ctx context.Context, frame *models.FrameRequest) (*models.KeypointSample, error) {
	body := &keypointRequest{
		Image:     frame.Image,
		Pixels:    frame.Pixels,
		Width:     frame.Width,
		Height:    frame.Height,
		Stride:    frame.Stride,
		Format:    frame.Format,
		Timestamp: frame.Timestamp,
		Keypoints: []string{c.keypoint},
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("Retrying keypoint request",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))

			select {
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.execute(ctx, body)
		if err == nil {
			return c.pick(resp)
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("keypoint request failed after %d attempts: %w",
		c.config.MaxRetries+1, lastErr)
}

func (c *Client) execute(ctx context.Context, body *keypointRequest) (*keypointResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/keypoints", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "shot-tracer/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("pose service error (status %d): %s", resp.StatusCode, string(msg))
	}

	var out keypointResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

func (c *Client) pick(resp *keypointResponse) (*models.KeypointSample, error) {
	for _, kp := range resp.Keypoints {
		if kp.Name != c.keypoint || !kp.Visible {
			continue
		}
		return &models.KeypointSample{
			Name:       kp.Name,
			X:          kp.X,
			Y:          kp.Y,
			Confidence: kp.Confidence,
		}, nil
	}
	return nil, ErrKeypointMissing
}

func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pose service unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}
