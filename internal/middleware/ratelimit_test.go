package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowLimiter_Allow(t *testing.T) {
	l := NewFixedWindowLimiter(Policy{Name: "t", Window: time.Minute, MaxReqs: 2})
	defer l.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, remaining, _ := l.Allow("a")
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)
	ok, _, _ = l.Allow("a")
	assert.True(t, ok)
	ok, _, reset := l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, now.Add(time.Minute), reset)

	ok, _, _ = l.Allow("b")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Minute)
	ok, _, _ = l.Allow("a")
	assert.True(t, ok, "a new window starts after the old one ends")
}

func TestFixedWindowLimiter_prune(t *testing.T) {
	l := NewFixedWindowLimiter(Policy{Name: "t", Window: time.Second, MaxReqs: 1})
	defer l.Stop()
	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("a")

	now = now.Add(2 * time.Second)
	l.prune()
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.windows)
}

func TestRateLimit_middleware(t *testing.T) {
	l := NewFixedWindowLimiter(Policy{Name: "login", Window: time.Minute, MaxReqs: 1, Message: "Too many login attempts, please try again later"})
	defer l.Stop()
	h := RateLimit(l, GetIPKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "192.0.2.7:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("RateLimit-Remaining"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too many login attempts, please try again later","statusCode":429}`, rec.Body.String())

	other := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	other.RemoteAddr = "192.0.2.8:5555"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGetIPKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:1234"
	assert.Equal(t, "ip:198.51.100.4", GetIPKey(req))
	req.RemoteAddr = "198.51.100.4"
	assert.Equal(t, "ip:198.51.100.4", GetIPKey(req))
}
