package handlers

import (
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/san-kum/shot-tracer/server/models"
	"github.com/san-kum/shot-tracer/server/processor"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// WebSocketHandler streams frames for one session per connection. The
// session is created on connect and closed on disconnect.
type WebSocketHandler struct {
	manager  *processor.Manager
	logger   *zap.Logger
	upgrader websocket.Upgrader
	maxSize  int64
}

type ClientMessage struct {
	Type string              `json:"type"`
	Data jsoniter.RawMessage `json:"data,omitempty"`
}

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type spacingMessage struct {
	FrameSpacing float64 `json:"frame_spacing"`
}

type shotMessage struct {
	ShotID     string             `json:"shot_id"`
	Trajectory *models.Trajectory `json:"trajectory,omitempty"`
}

func NewWebSocketHandler(manager *processor.Manager, allowedOrigins []string, maxSize int64, logger *zap.Logger) *WebSocketHandler {
	wildcard := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")
	return &WebSocketHandler{
		manager: manager,
		logger:  logger,
		maxSize: maxSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return wildcard || origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	conn   *websocket.Conn
	mutex  sync.Mutex
	logger *zap.Logger
}

func (w *wsConn) send(messageType string, data any) {
	payload, err := json.Marshal(ServerMessage{Type: messageType, Data: data})
	if err != nil {
		w.logger.Error("Failed to encode WebSocket message", zap.Error(err))
		return
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		w.logger.Debug("Failed to send WebSocket message", zap.Error(err))
	}
}

func (w *wsConn) sendError(message string) {
	w.send("error", map[string]any{
		"message":   message,
		"timestamp": time.Now().Unix(),
	})
}

func (w *wsConn) ping() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection", zap.Error(err))
		return
	}
	defer conn.Close()

	clientIP := c.ClientIP()
	ws := &wsConn{conn: conn, logger: h.logger.With(zap.String("client_ip", clientIP))}

	info, err := h.manager.CreateSession()
	if err != nil {
		ws.sendError(err.Error())
		return
	}
	sessionID := info.ID
	defer func() {
		if err := h.manager.CloseSession(sessionID); err != nil {
			h.logger.Debug("Session already closed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()

	h.logger.Info("WebSocket client connected",
		zap.String("client_ip", clientIP),
		zap.String("session_id", sessionID))
	ws.send("session", info)

	conn.SetReadLimit(h.maxSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go h.pingRoutine(ws, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read failed", zap.Error(err))
			}
			h.logger.Info("WebSocket client disconnected", zap.String("session_id", sessionID))
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var message ClientMessage
		if err := json.Unmarshal(data, &message); err != nil {
			ws.sendError("Invalid message format")
			continue
		}
		h.handleMessage(c, ws, sessionID, &message)
	}
}

// handleMessage runs on the read loop, so a connection's messages are
// applied in the order they were sent.
func (h *WebSocketHandler) handleMessage(c *gin.Context, ws *wsConn, sessionID string, message *ClientMessage) {
	switch message.Type {
	case "frame":
		h.processFrame(c, ws, sessionID, message)

	case "arm":
		var req ArmRequest
		if err := json.Unmarshal(message.Data, &req); err != nil || req.Position == nil {
			ws.sendError("arm requires a position")
			return
		}
		h.control(c, ws, sessionID, models.ControlRequest{Action: models.ActionArm, Position: req.Position})

	case "begin", "end", "reset", "finish":
		h.control(c, ws, sessionID, models.ControlRequest{Action: models.ControlAction(message.Type)})

	case "spacing":
		var req spacingMessage
		if err := json.Unmarshal(message.Data, &req); err != nil {
			ws.sendError("Invalid spacing message")
			return
		}
		h.control(c, ws, sessionID, models.ControlRequest{Action: models.ActionSpacing, FrameSpacing: req.FrameSpacing})

	case "candidate":
		var req CandidateRequest
		if err := json.Unmarshal(message.Data, &req); err != nil {
			ws.sendError("Invalid candidate message")
			return
		}
		info, err := h.manager.IngestCandidate(c.Request.Context(), sessionID, req.Observation, req.Additive)
		if err != nil {
			ws.sendError(err.Error())
			return
		}
		ws.send("session", info)

	case "ping":
		ws.send("pong", map[string]any{"timestamp": time.Now().Unix()})

	default:
		h.logger.Warn("Unknown message type received", zap.String("type", message.Type))
		ws.sendError("Unknown message type: " + message.Type)
	}
}

func (h *WebSocketHandler) control(c *gin.Context, ws *wsConn, sessionID string, req models.ControlRequest) {
	info, err := h.manager.Control(c.Request.Context(), sessionID, req)
	if err != nil {
		ws.sendError(err.Error())
		return
	}
	ws.send("session", info)
}

func (h *WebSocketHandler) processFrame(c *gin.Context, ws *wsConn, sessionID string, message *ClientMessage) {
	var req models.FrameRequest
	if err := json.Unmarshal(message.Data, &req); err != nil {
		ws.sendError("Invalid frame message")
		return
	}

	result, err := h.manager.SubmitFrame(c.Request.Context(), sessionID, &req)
	if err != nil {
		h.logger.Debug("Frame processing failed", zap.String("session_id", sessionID), zap.Error(err))
		ws.sendError("Frame processing failed: " + err.Error())
		return
	}

	for _, change := range result.PhaseChanges {
		ws.send("phase", change)
	}
	if result.Launched {
		ws.send("launch", map[string]any{"frame": result.Frame, "timestamp_us": result.Timestamp})
	}
	ws.send("result", result)
	if result.ShotID != "" {
		ws.send("shot", shotMessage{ShotID: result.ShotID, Trajectory: result.Trajectory})
	}
}

func (h *WebSocketHandler) pingRoutine(ws *wsConn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				h.logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}
