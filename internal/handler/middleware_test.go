package handler_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Shivanand-hulikatti/library-reservations/internal/handler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Test_RateLimiter_PerIP(t *testing.T) {
	l := handler.NewRateLimiter(0.001, 2)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
}

func Test_RateLimiter_DisabledWhenRateNotPositive(t *testing.T) {
	l := handler.NewRateLimiter(0, 0)

	for range 100 {
		assert.True(t, l.Allow("10.0.0.1"))
	}
}

func Test_RateLimiter_MiddlewareReturns429(t *testing.T) {
	a := newAPI(t, handler.NewRateLimiter(0.001, 1))

	first := httptest.NewRecorder()
	a.srv.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/health", nil))
	second := httptest.NewRecorder()
	a.srv.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}
