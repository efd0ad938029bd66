package middlewarectx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
)

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewIPLimiter(1, 2, time.Minute)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	handler := RateLimitMiddleware(limiter, sl.Discard())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1111"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:3333"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1111"))

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1111"))
}

func TestIPLimiter_ForgetsIdleVisitors(t *testing.T) {
	limiter := NewIPLimiter(1, 1, time.Minute)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("b"))
	assert.Len(t, limiter.limiters, 2)

	now = now.Add(2 * time.Minute)
	assert.True(t, limiter.Allow("a"))
	assert.Len(t, limiter.limiters, 1)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:4242"
	assert.Equal(t, "192.168.1.5", clientIP(req))
	req.RemoteAddr = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", clientIP(req))
}
