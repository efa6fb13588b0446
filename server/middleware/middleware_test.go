package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/san-kum/shot-tracer/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"role": c.GetString("role")})
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// errorCode decodes the error envelope and returns its machine code.
func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.APIResponse
	require.NoError(t, jsoniter.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error, w.Body.String())
	return resp.Error.Code
}

func adminRouter(auth *AuthMiddleware) *gin.Engine {
	r := gin.New()
	r.GET("/admin", auth.RequireAuth(), auth.RequireRole(RoleAdmin), ok)
	return r
}

func TestAuth_AdminRole(t *testing.T) {
	auth := NewAuthMiddleware("secret", zap.NewNop())
	r := adminRouter(auth)

	admin, err := auth.GenerateToken("u1", "alice", RoleAdmin, time.Hour)
	require.NoError(t, err)
	viewer, err := auth.GenerateToken("u2", "bob", "viewer", time.Hour)
	require.NoError(t, err)
	expired, err := auth.GenerateToken("u1", "alice", RoleAdmin, -time.Minute)
	require.NoError(t, err)
	foreign, err := NewAuthMiddleware("other", zap.NewNop()).GenerateToken("u1", "alice", RoleAdmin, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
		code   string
	}{
		{"admin", "Bearer " + admin, http.StatusOK, ""},
		{"wrong role", "Bearer " + viewer, http.StatusForbidden, "forbidden"},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, "unauthorized"},
		{"wrong key", "Bearer " + foreign, http.StatusUnauthorized, "unauthorized"},
		{"missing", "", http.StatusUnauthorized, "unauthorized"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "unauthorized"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := serve(r, req)
			assert.Equal(t, tc.want, w.Code)
			if tc.code != "" {
				assert.Equal(t, tc.code, errorCode(t, w))
			}
		})
	}
}

func TestAuth_RejectsOtherAlgorithms(t *testing.T) {
	auth := NewAuthMiddleware("secret", zap.NewNop())
	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, serve(adminRouter(auth), req).Code)
}

func TestAuth_DisabledWithoutSecret(t *testing.T) {
	auth := NewAuthMiddleware("", zap.NewNop())
	assert.False(t, auth.Enabled())

	_, err := auth.GenerateToken("u1", "alice", RoleAdmin, time.Hour)
	assert.Error(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	w := serve(adminRouter(auth), req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "auth_disabled", errorCode(t, w))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, zap.NewNop())
	defer rl.Shutdown()

	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/", ok)

	codes := make([]int, 3)
	var last *httptest.ResponseRecorder
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		last = serve(r, req)
		codes[i] = last.Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "rate_limited", errorCode(t, last))
	assert.Equal(t, "1", last.Header().Get("Retry-After"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	assert.Equal(t, http.StatusOK, serve(r, req).Code, "buckets are per client")

	assert.Equal(t, 2, rl.GetGlobalStats()["active_clients"])
	assert.Equal(t, 0, rl.removeIdle(time.Now()))
	assert.Equal(t, 2, rl.removeIdle(time.Now().Add(time.Hour)))

	rl.Shutdown()
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://app.example"}))
	r.GET("/", ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example")
	w := serve(r, req)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = serve(r, req)
	assert.Equal(t, "null", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	assert.Equal(t, http.StatusNoContent, serve(r, req).Code)
}

func TestRequestGuards(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(), RequestSizeLimit(16), RequireJSON(), RequestTimeout(time.Second), RequestLogger(zap.NewNop()))
	r.POST("/", func(c *gin.Context) {
		_, hasDeadline := c.Request.Context().Deadline()
		assert.True(t, hasDeadline)
		ok(c)
	})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	w = serve(r, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, "unsupported_media_type", errorCode(t, w))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	req.Header.Set("Content-Type", "application/json")
	w = serve(r, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "request_too_large", errorCode(t, w))
}
