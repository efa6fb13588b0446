package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/shot-tracer/server/cache"
	"github.com/san-kum/shot-tracer/server/config"
	"github.com/san-kum/shot-tracer/server/handlers"
	"github.com/san-kum/shot-tracer/server/logging"
	"github.com/san-kum/shot-tracer/server/middleware"
	"github.com/san-kum/shot-tracer/server/models"
	"github.com/san-kum/shot-tracer/server/pose"
	"github.com/san-kum/shot-tracer/server/processor"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	logger      *zap.Logger
	manager     *processor.Manager
	rateLimiter *middleware.RateLimiter
	config      *config.Config
}

func main() {
	cfg := config.LoadConfig()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	if err := cfg.ValidateConfig(logger); err != nil {
		logger.Fatal("Configuration validation failed", zap.Error(err))
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment))

		var err error
		if cfg.Security.EnableHTTPS {
			err = srv.ListenAndServeTLS(cfg.Security.CertFile, cfg.Security.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests before the sessions go away.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Closes the cache as well.
	if err := server.manager.Shutdown(); err != nil {
		logger.Error("Failed to shutdown session manager", zap.Error(err))
	}

	server.rateLimiter.Shutdown()

	logger.Info("Server exited")
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	tuning, err := config.LoadTuning(cfg.Processor.TuningDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load tuning: %w", err)
	}

	var cacheInstance cache.Cache
	if cfg.Redis.Enabled {
		cacheInstance, err = cache.NewRedisCache(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			cfg.Cache.TTL,
			logger,
		)
		if err != nil {
			logger.Warn("Failed to connect to Redis, using memory cache", zap.Error(err))
			cacheInstance = cache.NewMemoryCache(cfg.Cache.MaxItems, cfg.Cache.TTL, logger)
		}
	} else {
		cacheInstance = cache.NewMemoryCache(cfg.Cache.MaxItems, cfg.Cache.TTL, logger)
	}

	var keypoints processor.KeypointSource
	if cfg.Pose.BaseURL != "" {
		client := pose.NewClient(cfg.Pose, logger)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Pose.Timeout)
		if err := client.HealthCheck(ctx); err != nil {
			logger.Warn("Pose service is not healthy yet", zap.String("base_url", cfg.Pose.BaseURL), zap.Error(err))
		}
		cancel()
		keypoints = client
	}

	managerConfig := processor.ManagerConfig{
		QueueSize:      cfg.Processor.QueueSize,
		MaxSessions:    cfg.Processor.MaxSessions,
		RequestTimeout: cfg.Processor.RequestTimeout,
		SessionIdle:    cfg.Processor.SessionIdle,
		ShotBuffer:     processor.DefaultManagerConfig().ShotBuffer,
		Capabilities: models.Capabilities{
			HighFrameRate: cfg.Processor.HighFrameRate,
			MaxFrameRate:  cfg.Processor.MaxFrameRate,
			PoseKeypoints: cfg.Processor.PoseKeypoints,
		},
	}
	manager := processor.NewManager(managerConfig, tuning, cacheInstance, keypoints, logger)

	rateLimiter := middleware.NewRateLimiter(
		cfg.Security.RateLimitRPS,
		cfg.Security.RateLimitBurst,
		logger,
	)

	authMiddleware := middleware.NewAuthMiddleware(cfg.Security.JWTSecretKey, logger)

	router := gin.New()
	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	router.Use(middleware.RequestSizeLimit(cfg.Security.MaxRequestSize))

	handlers.SetupRoutes(router, handlers.Routes{
		Sessions:       handlers.NewSessionHandler(manager, logger),
		System:         handlers.NewSystemHandler(manager, rateLimiter, cfg.Processor.TuningDir, logger),
		WebSocket:      handlers.NewWebSocketHandler(manager, cfg.Security.AllowedOrigins, cfg.Security.MaxRequestSize, logger),
		Auth:           authMiddleware,
		RateLimiter:    rateLimiter,
		RequestTimeout: cfg.Security.RequestTimeout,
	})

	logger.Info("Session manager ready",
		zap.Int("max_sessions", managerConfig.MaxSessions),
		zap.Bool("high_frame_rate", managerConfig.Capabilities.HighFrameRate),
		zap.Bool("pose_service", keypoints != nil))

	return &Server{
		router:      router,
		logger:      logger,
		manager:     manager,
		rateLimiter: rateLimiter,
		config:      cfg,
	}, nil
}
