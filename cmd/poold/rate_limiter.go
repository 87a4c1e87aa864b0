// rate_limiter.go - Per-client rate limiting for the controller API
package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"privacypool/internal/metrics"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientRateLimiter keeps one token bucket per client address.
type ClientRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rps      rate.Limit
	burst    int
	now      func() time.Time
}

// NewClientRateLimiter creates a new rate limiter
func NewClientRateLimiter(rps float64, burst int) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiters: make(map[string]*clientLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

func (l *ClientRateLimiter) get(clientID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.limiters[clientID]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[clientID] = cl
	}
	cl.lastSeen = l.now()
	return cl.limiter
}

// Allow checks if a client is allowed to perform an action
func (l *ClientRateLimiter) Allow(clientID string) bool {
	return l.get(clientID).AllowN(l.now(), 1)
}

// Tokens returns the current number of tokens for a client
func (l *ClientRateLimiter) Tokens(clientID string) float64 {
	return l.get(clientID).TokensAt(l.now())
}

// Reset forgets a client's bucket
func (l *ClientRateLimiter) Reset(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, clientID)
}

// Sweep drops buckets idle for longer than idle and returns how many it removed.
func (l *ClientRateLimiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for id, cl := range l.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(l.limiters, id)
			removed++
		}
	}
	return removed
}

// Middleware rejects requests over the limit with 429.
func (l *ClientRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			metrics.RateLimited.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
