package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	t.Run("healthy", func(t *testing.T) {
		hc := NewHealthChecker("test", time.Second)
		hc.RegisterComponent("store", true, ok)
		hc.RegisterComponent("prover", false, ok)

		h := hc.CheckHealth(context.Background())
		assert.Equal(t, Healthy, h.OverallStatus)
		require.Len(t, h.Components, 2)
		assert.Equal(t, "prover", h.Components[0].Name)
		assert.Equal(t, "OK", h.Components[1].Message)
	})

	t.Run("optional failure degrades", func(t *testing.T) {
		hc := NewHealthChecker("test", time.Second)
		hc.RegisterComponent("store", true, ok)
		hc.RegisterComponent("prover", false, down)

		h := hc.CheckHealth(context.Background())
		assert.Equal(t, Degraded, h.OverallStatus)
		assert.Equal(t, "connection refused", h.Components[0].Message)
		assert.Equal(t, "warning", CreateHealthResponse(h).Status)
	})

	t.Run("critical failure", func(t *testing.T) {
		hc := NewHealthChecker("test", time.Second)
		hc.RegisterComponent("store", true, down)
		hc.RegisterComponent("prover", false, down)

		h := hc.CheckHealth(context.Background())
		assert.Equal(t, Unhealthy, h.OverallStatus)
		assert.Equal(t, "error", CreateHealthResponse(h).Status)
	})

	t.Run("check timeout", func(t *testing.T) {
		hc := NewHealthChecker("test", 20*time.Millisecond)
		hc.RegisterComponent("prover", true, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		h := hc.CheckHealth(context.Background())
		assert.Equal(t, Unhealthy, h.OverallStatus)
		assert.Contains(t, h.Components[0].Message, "deadline exceeded")
	})
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fail := false

	hc := NewHealthChecker("1.2.3", time.Second)
	hc.RegisterComponent("store", true, func(context.Context) error {
		if fail {
			return errors.New("closed")
		}
		return nil
	})
	r := gin.New()
	r.GET("/health", hc.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string       `json:"status"`
		Data   SystemHealth `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "1.2.3", body.Data.Version)

	fail = true
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
