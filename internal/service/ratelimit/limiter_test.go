package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func fixedClock(t *time.Time) func() time.Time { return func() time.Time { return *t } }

func TestAllowRefills(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	l := New()
	l.now = fixedClock(&now)

	assert.True(t, l.Allow("a", 2, 1))
	assert.True(t, l.Allow("a", 2, 1))
	assert.False(t, l.Allow("a", 2, 1))
	assert.True(t, l.Allow("b", 2, 1), "keys are independent")

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("a", 2, 1))
	assert.False(t, l.Allow("a", 2, 1))
}

func TestSweepDropsIdleBuckets(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	l := New()
	l.now = fixedClock(&now)
	l.Allow("a", 1, 1)
	now = now.Add(time.Minute)
	l.Allow("b", 1, 1)

	assert.Equal(t, 1, l.Sweep(30*time.Second))
	assert.Len(t, l.m, 1)
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	l := New()
	l.now = fixedClock(&now)

	e := echo.New()
	e.Use(l.Middleware(1, 1))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNoContent, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}
