package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))

	// Separate keys do not share a bucket.
	assert.True(t, rl.Allow("5.6.7.8"))
}

func TestRateLimiter_Middleware(t *testing.T) {
	e := echo.New()
	e.POST("/refresh", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, NewRateLimiter(1, 1).Middleware())

	do := func() int {
		req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
		req.Header.Set(echo.HeaderXRealIP, "9.9.9.9")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}
