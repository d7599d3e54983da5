package auth

import (
	"net/http"
	"sync"
	"time"

	"crm-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP. Idle buckets are pruned
// lazily on access.
type IPRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	maxIdle time.Duration
	lastGC  time.Time

	Now func() time.Time
}

func NewIPRateLimiter(perSecond float64, burst int) *IPRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &IPRateLimiter{
		entries: map[string]*limiterEntry{},
		limit:   rate.Limit(perSecond),
		burst:   burst,
		maxIdle: 10 * time.Minute,
		Now:     time.Now,
	}
}

func (l *IPRateLimiter) Allow(ip string) bool {
	now := l.Now()

	l.mu.Lock()
	if now.Sub(l.lastGC) > l.maxIdle {
		for k, e := range l.entries {
			if now.Sub(e.lastSeen) > l.maxIdle {
				delete(l.entries, k)
			}
		}
		l.lastGC = now
	}
	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Middleware rejects over-limit clients with 429.
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !l.Allow(ip) {
			logger.FromGin(c).Warn("rate limit exceeded", "client_ip", ip, "path", c.FullPath())
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
