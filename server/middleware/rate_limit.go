package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP. Buckets idle for longer
// than the expiry are dropped by a background sweep.
type RateLimiter struct {
	clients map[string]*client
	mutex   sync.Mutex
	cleanup *time.Ticker
	stopCh  chan struct{}
	once    sync.Once
	logger  *zap.Logger
	rps     rate.Limit
	burst   int
	expiry  time.Duration
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rps, burst int, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*client),
		stopCh:  make(chan struct{}),
		logger:  logger,
		rps:     rate.Limit(rps),
		burst:   burst,
		expiry:  10 * time.Minute,
	}

	rl.cleanup = time.NewTicker(5 * time.Minute)
	go rl.cleanupExpiredClients()

	return rl
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !rl.Allow(clientIP) {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("client_ip", clientIP),
				zap.String("path", c.Request.URL.Path))

			c.Header("Retry-After", "1")
			abortWithError(c, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded",
				map[string]any{"retry_after": 1})
			return
		}

		c.Next()
	}
}

// Allow takes one token from the client's bucket.
func (rl *RateLimiter) Allow(clientIP string) bool {
	return rl.limiterFor(clientIP, time.Now()).Allow()
}

func (rl *RateLimiter) limiterFor(clientIP string, now time.Time) *rate.Limiter {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cl, exists := rl.clients[clientIP]
	if !exists {
		cl = &client{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[clientIP] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

func (rl *RateLimiter) removeIdle(now time.Time) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	removed := 0
	for ip, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > rl.expiry {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) cleanupExpiredClients() {
	for {
		select {
		case now := <-rl.cleanup.C:
			rl.removeIdle(now)
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) GetGlobalStats() map[string]interface{} {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	return map[string]interface{}{
		"active_clients": len(rl.clients),
		"rps":            float64(rl.rps),
		"burst_capacity": rl.burst,
	}
}

func (rl *RateLimiter) Shutdown() {
	rl.once.Do(func() {
		rl.cleanup.Stop()
		close(rl.stopCh)
	})
}
