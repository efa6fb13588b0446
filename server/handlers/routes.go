package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/shot-tracer/server/middleware"
)

type Routes struct {
	Sessions       *SessionHandler
	System         *SystemHandler
	WebSocket      *WebSocketHandler
	Auth           *middleware.AuthMiddleware
	RateLimiter    *middleware.RateLimiter
	RequestTimeout time.Duration
}

func SetupRoutes(router *gin.Engine, r Routes) {
	router.GET("/health", r.System.Health)

	// The socket outlives any request timeout.
	router.GET("/ws", r.RateLimiter.RateLimit(), r.WebSocket.HandleWebSocket)

	api := router.Group("/api/v1")
	api.Use(stampStart(), middleware.RequireJSON(), middleware.RequestTimeout(r.RequestTimeout))
	{
		api.GET("/health", r.System.Health)

		limited := api.Group("/")
		limited.Use(r.RateLimiter.RateLimit())
		{
			limited.GET("/stats", r.System.Stats)

			limited.POST("/sessions", r.Sessions.CreateSession)
			limited.GET("/sessions/:id", r.Sessions.GetSession)
			limited.DELETE("/sessions/:id", r.Sessions.CloseSession)
			limited.POST("/sessions/:id/arm", r.Sessions.Arm)
			limited.POST("/sessions/:id/control", r.Sessions.Control)
			limited.POST("/sessions/:id/frames", r.Sessions.SubmitFrame)
			limited.POST("/sessions/:id/candidates", r.Sessions.IngestCandidate)
			limited.GET("/sessions/:id/trajectory", r.Sessions.Trajectory)
			limited.GET("/sessions/:id/trajectory.png", r.Sessions.TrajectoryChart)
			limited.GET("/sessions/:id/shots/:shot", r.Sessions.GetShot)
		}

		admin := api.Group("/admin")
		admin.Use(r.Auth.RequireAuth(), r.Auth.RequireRole(middleware.RoleAdmin))
		{
			admin.GET("/tuning", r.System.GetTuning)
			admin.PUT("/tuning", r.System.UpdateTuning)
			admin.GET("/stats", r.System.Stats)
		}
	}
}
