package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/shot-tracer/server/config"
	"github.com/san-kum/shot-tracer/server/middleware"
	"github.com/san-kum/shot-tracer/server/processor"
	"go.uber.org/zap"
)

// SystemHandler serves health, statistics and the tuning admin endpoints.
type SystemHandler struct {
	manager     *processor.Manager
	rateLimiter *middleware.RateLimiter
	tuningDir   string
	logger      *zap.Logger
}

func NewSystemHandler(manager *processor.Manager, rateLimiter *middleware.RateLimiter, tuningDir string, logger *zap.Logger) *SystemHandler {
	return &SystemHandler{
		manager:     manager,
		rateLimiter: rateLimiter,
		tuningDir:   tuningDir,
		logger:      logger,
	}
}

func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "shot-tracer",
	})
}

func (h *SystemHandler) Stats(c *gin.Context) {
	stats := h.manager.GetStats()

	var successRate float64
	if stats.TotalProcessed > 0 {
		successRate = float64(stats.SuccessfullyProcessed) / float64(stats.TotalProcessed) * 100
	}

	body := gin.H{
		"processor": stats,
		"metrics": gin.H{
			"success_rate":   successRate,
			"uptime_seconds": time.Since(stats.StartTime).Seconds(),
		},
	}

	if cacheStats, err := h.manager.GetCacheStats(); err == nil {
		body["cache"] = cacheStats
	} else {
		h.logger.Warn("Failed to read cache stats", zap.Error(err))
	}
	if h.rateLimiter != nil {
		body["rate_limit"] = h.rateLimiter.GetGlobalStats()
	}

	respond(c, http.StatusOK, body)
}

func (h *SystemHandler) GetTuning(c *gin.Context) {
	respond(c, http.StatusOK, h.manager.Tuning())
}

// UpdateTuning applies a partial or full tuning document on top of the
// current one. New sessions pick it up; running sessions keep theirs.
func (h *SystemHandler) UpdateTuning(c *gin.Context) {
	tuning := h.manager.Tuning()
	if err := c.ShouldBindJSON(tuning); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid tuning document")
		return
	}
	if err := tuning.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_tuning", err.Error())
		return
	}

	if h.tuningDir != "" {
		if err := config.SaveTuning(h.tuningDir, tuning); err != nil {
			h.logger.Error("Failed to persist tuning", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "persist_failed", "Failed to save tuning")
			return
		}
	}

	h.manager.SetTuning(tuning)
	h.logger.Info("Tuning replaced",
		zap.String("user", c.GetString("username")),
		zap.String("client_ip", c.ClientIP()))
	respond(c, http.StatusOK, tuning)
}
