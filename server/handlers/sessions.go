package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/shot-tracer/server/models"
	"github.com/san-kum/shot-tracer/server/processor"
	"github.com/san-kum/shot-tracer/server/trajectory"
	"go.uber.org/zap"
)

// SessionHandler serves the REST surface of capture sessions.
type SessionHandler struct {
	manager *processor.Manager
	logger  *zap.Logger
}

type ArmRequest struct {
	Position *models.NormalizedPoint `json:"position" binding:"required"`
}

// CandidateRequest is an externally produced observation for a session's
// trajectory store.
type CandidateRequest struct {
	trajectory.Observation
	Additive bool `json:"additive"`
}

func NewSessionHandler(manager *processor.Manager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		logger:  logger,
	}
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	info, err := h.manager.CreateSession()
	if err != nil {
		h.logger.Warn("Failed to create session", zap.Error(err), zap.String("client_ip", c.ClientIP()))
		respondErr(c, err)
		return
	}
	respond(c, http.StatusCreated, info)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	info, err := h.manager.SessionInfo(c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusOK, info)
}

func (h *SessionHandler) CloseSession(c *gin.Context) {
	if err := h.manager.CloseSession(c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"closed": c.Param("id")})
}

func (h *SessionHandler) Arm(c *gin.Context) {
	var req ArmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request format")
		return
	}
	h.control(c, models.ControlRequest{Action: models.ActionArm, Position: req.Position})
}

func (h *SessionHandler) Control(c *gin.Context) {
	var req models.ControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request format")
		return
	}
	h.control(c, req)
}

func (h *SessionHandler) control(c *gin.Context, req models.ControlRequest) {
	info, err := h.manager.Control(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusOK, info)
}

func (h *SessionHandler) SubmitFrame(c *gin.Context) {
	var req models.FrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request format")
		return
	}

	result, err := h.manager.SubmitFrame(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.logger.Debug("Frame processing failed",
			zap.Error(err),
			zap.String("session_id", c.Param("id")))
		respondErr(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

func (h *SessionHandler) IngestCandidate(c *gin.Context) {
	var req CandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request format")
		return
	}

	info, err := h.manager.IngestCandidate(c.Request.Context(), c.Param("id"), req.Observation, req.Additive)
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusOK, info)
}

func (h *SessionHandler) Trajectory(c *gin.Context) {
	traj, ok := h.trajectory(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, traj)
}

// TrajectoryChart renders the current primary trajectory as a PNG.
func (h *SessionHandler) TrajectoryChart(c *gin.Context) {
	traj, ok := h.trajectory(c)
	if !ok {
		return
	}

	opts := trajectory.DefaultChartOptions()
	opts.Title = "Shot " + c.Param("id")

	var buf bytes.Buffer
	if err := trajectory.WriteChart(&buf, traj, opts); err != nil {
		h.logger.Error("Failed to render trajectory chart", zap.Error(err))
		respondErr(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (h *SessionHandler) trajectory(c *gin.Context) (models.Trajectory, bool) {
	traj, found, err := h.manager.Trajectory(c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return models.Trajectory{}, false
	}
	if !found {
		respondError(c, http.StatusNotFound, "no_trajectory", "No trajectory has been found yet")
		return models.Trajectory{}, false
	}
	return traj, true
}

func (h *SessionHandler) GetShot(c *gin.Context) {
	shot, err := h.manager.Shot(c.Request.Context(), c.Param("id"), c.Param("shot"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusOK, shot)
}
