package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestClientRateLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewClientRateLimiter(1, 2)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "buckets are per client")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"))
	assert.InDelta(t, 0, l.Tokens("a"), 0.001)

	l.Reset("a")
	assert.InDelta(t, 2, l.Tokens("a"), 0.001)
}

func TestClientRateLimiterSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewClientRateLimiter(1, 1)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(time.Hour)
	l.Allow("new")

	assert.Equal(t, 1, l.Sweep(10*time.Minute))
	assert.Equal(t, 0, l.Sweep(10*time.Minute))
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewClientRateLimiter(0.001, 1)

	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/session", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func() int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/session", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		r.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}
