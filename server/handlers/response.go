package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/shot-tracer/server/models"
	"github.com/san-kum/shot-tracer/server/processor"
)

const apiVersion = "1.0"

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, models.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta(c),
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.APIResponse{
		Success: false,
		Error:   &models.APIError{Code: code, Message: message},
		Meta:    meta(c),
	})
}

// respondErr maps a processing error onto a status code.
func respondErr(c *gin.Context, err error) {
	status, code := classify(err)
	if status == http.StatusTooManyRequests {
		c.Header("Retry-After", "1")
	}
	_ = c.Error(err)
	respondError(c, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, processor.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, processor.ErrShotNotFound):
		return http.StatusNotFound, "shot_not_found"
	case errors.Is(err, processor.ErrInvalidControl):
		return http.StatusBadRequest, "invalid_control"
	case errors.Is(err, processor.ErrInvalidFrame):
		return http.StatusBadRequest, "invalid_frame"
	case errors.Is(err, processor.ErrQueueFull):
		return http.StatusTooManyRequests, "queue_full"
	case errors.Is(err, processor.ErrTooManySessions), errors.Is(err, processor.ErrShuttingDown):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func meta(c *gin.Context) *models.ResponseMeta {
	m := &models.ResponseMeta{
		RequestID: c.GetHeader("X-Request-ID"),
		Timestamp: time.Now().UTC(),
		Version:   apiVersion,
	}
	if start, ok := c.Get(startKey); ok {
		m.ProcessingTime = float64(time.Since(start.(time.Time)).Microseconds()) / 1000
	}
	return m
}

const startKey = "request_start"

func stampStart() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(startKey, time.Now())
		c.Next()
	}
}
