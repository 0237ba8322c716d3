// ratelimit.go implements per-client rate limiting with a token bucket.
//
// How token bucket works:
// - Each client IP gets a bucket holding up to `burst` tokens
// - Each request consumes 1 token
// - Tokens refill at a steady rate (perMinute tokens per minute)
// - If the bucket is empty, the request is rejected with 429 Too Many Requests
//
// Rendering a page is CPU-heavy, so a single client hammering zoom or
// page changes is throttled before it reaches the viewers.
package middleware

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/Shimizu-Technology/study-viewer/internal/models"
)

// clientIdleTTL is how long an unused bucket is kept.
const clientIdleTTL = time.Hour

// RateLimiter tracks request rates per client IP.
type RateLimiter struct {
	perMinute int
	burst     int

	// Go Pattern: sync.RWMutex allows multiple concurrent readers but
	// exclusive writers. Most requests come from clients we already know.
	mu      sync.RWMutex
	clients map[string]*client

	stop     chan struct{}
	stopOnce sync.Once
}

// client holds the limiter for a single IP.
type client struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests per client
// with bursts of up to burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	rl := &RateLimiter{
		perMinute: perMinute,
		burst:     burst,
		clients:   make(map[string]*client),
		stop:      make(chan struct{}),
	}

	// Start background cleanup goroutine
	go rl.cleanupLoop()

	return rl
}

// RateLimit returns Gin middleware that enforces per-client rate limits.
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining := rl.allow(c.ClientIP(), time.Now())

		// Go Pattern: These headers follow the standard draft RFC for rate limiting.
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rl.perMinute))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error:   "rate_limit_exceeded",
				Message: "Rate limit exceeded. Try again later.",
				Code:    http.StatusTooManyRequests,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// allow consumes a token for key at now and reports what is left.
func (rl *RateLimiter) allow(key string, now time.Time) (bool, int) {
	cl := rl.client(key)

	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.lastSeen = now

	allowed := cl.limiter.AllowN(now, 1)
	remaining := int(math.Max(0, math.Floor(cl.limiter.TokensAt(now))))
	return allowed, remaining
}

// client retrieves or creates the bucket for key.
func (rl *RateLimiter) client(key string) *client {
	rl.mu.RLock()
	cl, ok := rl.clients[key]
	rl.mu.RUnlock()
	if ok {
		return cl
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if cl, ok = rl.clients[key]; ok {
		return cl
	}
	cl = &client{
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMinute)), rl.burst),
		lastSeen: time.Now(),
	}
	rl.clients[key] = cl
	return cl
}

// cleanup removes buckets idle since before now-clientIdleTTL.
func (rl *RateLimiter) cleanup(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, cl := range rl.clients {
		cl.mu.Lock()
		idle := now.Sub(cl.lastSeen) > clientIdleTTL
		cl.mu.Unlock()
		if idle {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

// cleanupLoop periodically removes stale buckets to prevent memory leaks.
func (rl *RateLimiter) cleanupLoop() {
	// Go Pattern: time.Ticker sends values at regular intervals.
	// Always defer ticker.Stop() to release resources.
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			rl.cleanup(now)
		case <-rl.stop:
			return
		}
	}
}
