package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/san-kum/shot-tracer/server/cache"
	"github.com/san-kum/shot-tracer/server/config"
	"github.com/san-kum/shot-tracer/server/middleware"
	"github.com/san-kum/shot-tracer/server/models"
	"github.com/san-kum/shot-tracer/server/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type testServer struct {
	router  *gin.Engine
	manager *processor.Manager
	auth    *middleware.AuthMiddleware
	dir     string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	cfg := processor.DefaultManagerConfig()
	cfg.RequestTimeout = 2 * time.Second
	cfg.SessionIdle = 0
	manager := processor.NewManager(cfg, config.DefaultTuning(), cache.NewMemoryCache(100, time.Minute, logger), nil, logger)
	rl := middleware.NewRateLimiter(1000, 1000, logger)
	t.Cleanup(func() {
		_ = manager.Shutdown()
		rl.Shutdown()
	})

	dir := t.TempDir()
	auth := middleware.NewAuthMiddleware(testSecret, logger)
	router := gin.New()
	SetupRoutes(router, Routes{
		Sessions:       NewSessionHandler(manager, logger),
		System:         NewSystemHandler(manager, rl, dir, logger),
		WebSocket:      NewWebSocketHandler(manager, []string{"*"}, 1<<20, logger),
		Auth:           auth,
		RateLimiter:    rl,
		RequestTimeout: 5 * time.Second,
	})
	return &testServer{router: router, manager: manager, auth: auth, dir: dir}
}

type envelope struct {
	Success bool                `json:"success"`
	Data    jsoniter.RawMessage `json:"data"`
	Error   *models.APIError
}

func (s *testServer) do(t *testing.T, method, path string, body any, header ...string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestSessions_CreateArmAndFrame(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, code)
	info := decodeData[models.SessionInfo](t, env)
	require.NotEmpty(t, info.ID)
	base := "/api/v1/sessions/" + info.ID

	code, env = s.do(t, http.MethodPost, base+"/arm", gin.H{"position": gin.H{"x": 0.2, "y": 0.7}})
	require.Equal(t, http.StatusOK, code)
	info = decodeData[models.SessionInfo](t, env)
	assert.True(t, info.Armed)
	require.NotNil(t, info.InitialPosition)
	assert.Equal(t, models.NormalizedPoint{X: 0.2, Y: 0.7}, *info.InitialPosition)

	frame := models.FrameRequest{Pixels: make([]byte, 16*16*4), Width: 16, Height: 16, Timestamp: 1000}
	code, env = s.do(t, http.MethodPost, base+"/frames", frame)
	require.Equal(t, http.StatusOK, code)
	result := decodeData[models.FrameResult](t, env)
	assert.Equal(t, int64(1), result.Frame)
	assert.Equal(t, int64(1000), result.Timestamp)
	assert.Equal(t, models.PhaseSetup, result.Phase)

	code, env = s.do(t, http.MethodPost, base+"/control", models.ControlRequest{Action: "jump"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_control", env.Error.Code)

	code, _ = s.do(t, http.MethodPost, base+"/arm", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(t, http.MethodGet, base+"/trajectory", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "no_trajectory", env.Error.Code)

	code, env = s.do(t, http.MethodGet, base+"/shots/unknown", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "shot_not_found", env.Error.Code)

	code, _ = s.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusOK, code)
	code, env = s.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "session_not_found", env.Error.Code)
}

func TestSessions_CandidateTrajectoryAndChart(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, code)
	base := "/api/v1/sessions/" + decodeData[models.SessionInfo](t, env).ID

	fit := models.FitCoefficients{A: 2, B: -2, C: 0.8}
	var detected, projected []models.TrackedPoint
	for i := 0; i < 6; i++ {
		x := 0.1 + 0.08*float64(i)
		p := models.TrackedPoint{
			Position:   models.NormalizedPoint{X: x, Y: fit.Eval(x)},
			Timestamp:  time.Duration(i) * 10 * time.Millisecond,
			Confidence: 0.9,
		}
		projected = append(projected, p)
		if i%2 == 0 {
			detected = append(detected, p)
		}
	}

	code, _ = s.do(t, http.MethodPost, base+"/candidates", gin.H{
		"id":               "radar",
		"detected_points":  detected,
		"projected_points": projected,
		"fit":              fit,
		"convention":       models.ConventionTopLeft,
		"confidence":       0.9,
	})
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodGet, base+"/trajectory", nil)
	require.Equal(t, http.StatusOK, code)
	traj := decodeData[models.Trajectory](t, env)
	assert.Equal(t, "radar", traj.ID)
	assert.Len(t, traj.DetectedPoints, 3)
	assert.Len(t, traj.ProjectedPoints, 6)

	req := httptest.NewRequest(http.MethodGet, base+"/trajectory.png", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
}

func TestSystem_HealthAndStats(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)

	_, _ = s.do(t, http.MethodPost, "/api/v1/sessions", nil)
	code, env := s.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, code)

	var body struct {
		Processor processor.ProcessorStats `json:"processor"`
		Cache     cache.CacheStats         `json:"cache"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 1, body.Processor.ActiveSessions)
	assert.Equal(t, "memory", body.Cache.Backend)
}

func TestAdmin_Tuning(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/api/v1/admin/tuning", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "unauthorized", env.Error.Code)

	viewer, err := s.auth.GenerateToken("u2", "bob", "viewer", time.Hour)
	require.NoError(t, err)
	code, env = s.do(t, http.MethodGet, "/api/v1/admin/tuning", nil, "Authorization", "Bearer "+viewer)
	assert.Equal(t, http.StatusForbidden, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "forbidden", env.Error.Code)

	token, err := s.auth.GenerateToken("u1", "alice", middleware.RoleAdmin, time.Hour)
	require.NoError(t, err)
	bearer := "Bearer " + token

	code, env = s.do(t, http.MethodGet, "/api/v1/admin/tuning", nil, "Authorization", bearer)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, *config.DefaultTuning(), decodeData[config.Tuning](t, env))

	code, env = s.do(t, http.MethodPut, "/api/v1/admin/tuning",
		gin.H{"store": gin.H{"max_candidate_age": 15}}, "Authorization", bearer)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 15, decodeData[config.Tuning](t, env).Store.MaxCandidateAge)
	assert.Equal(t, 15, s.manager.Tuning().Store.MaxCandidateAge)
	assert.Equal(t, config.DefaultTuning().Swing, s.manager.Tuning().Swing, "untouched sections are kept")

	saved, err := config.LoadTuning(s.dir)
	require.NoError(t, err)
	assert.Equal(t, 15, saved.Store.MaxCandidateAge)

	code, env = s.do(t, http.MethodPut, "/api/v1/admin/tuning",
		gin.H{"store": gin.H{"max_candidate_age": 0}}, "Authorization", bearer)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_tuning", env.Error.Code)
	assert.Equal(t, 15, s.manager.Tuning().Store.MaxCandidateAge)
}

func TestWebSocket_Session(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() ServerMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg struct {
			Type string              `json:"type"`
			Data jsoniter.RawMessage `json:"data"`
		}
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &msg))
		return ServerMessage{Type: msg.Type, Data: msg.Data}
	}
	write := func(msgType string, data any) {
		t.Helper()
		payload, err := json.Marshal(gin.H{"type": msgType, "data": data})
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
	}

	hello := read()
	require.Equal(t, "session", hello.Type)
	var info models.SessionInfo
	require.NoError(t, json.Unmarshal(hello.Data.(jsoniter.RawMessage), &info))
	assert.Equal(t, 1, s.manager.GetStats().ActiveSessions)

	write("ping", nil)
	assert.Equal(t, "pong", read().Type)

	write("arm", gin.H{"position": gin.H{"x": 0.5, "y": 0.5}})
	msg := read()
	require.Equal(t, "session", msg.Type)
	require.NoError(t, json.Unmarshal(msg.Data.(jsoniter.RawMessage), &info))
	assert.True(t, info.Armed)

	write("frame", models.FrameRequest{Pixels: make([]byte, 8*8*4), Width: 8, Height: 8, Timestamp: 5})
	assert.Equal(t, "phase", read().Type, "arming moved the swing to setup")
	msg = read()
	require.Equal(t, "result", msg.Type)
	var result models.FrameResult
	require.NoError(t, json.Unmarshal(msg.Data.(jsoniter.RawMessage), &result))
	assert.Equal(t, int64(1), result.Frame)

	write("arm", nil)
	assert.Equal(t, "error", read().Type)

	write("teleport", nil)
	assert.Equal(t, "error", read().Type)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool {
		return s.manager.GetStats().ActiveSessions == 0
	}, 2*time.Second, 10*time.Millisecond, "disconnect closes the session")
}
