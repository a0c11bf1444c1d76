package restapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sevibus.transitlab.org/internal/clock"
)

func newTestRateLimiter(t *testing.T, deviceLimit, ipLimit int) (*RateLimitMiddleware, *clock.MockClock) {
	t.Helper()
	mock := clock.NewMockClock(time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC))
	rl := NewRateLimitMiddleware(deviceLimit, ipLimit, mock, nil)
	t.Cleanup(rl.Stop)
	return rl, mock
}

func serveRateLimited(rl *RateLimitMiddleware, req *http.Request) *httptest.ResponseRecorder {
	handler := rl.Handler()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestDeviceTierUsesDeviceBudget(t *testing.T) {
	rl, _ := newTestRateLimiter(t, 2, 100)

	req := httptest.NewRequest(http.MethodGet, "/stops", nil)
	req.Header.Set("X-Device-ID", "watch-abc")
	req.RemoteAddr = "203.0.113.5:1234"

	assert.Equal(t, http.StatusOK, serveRateLimited(rl, req).Code)
	assert.Equal(t, http.StatusOK, serveRateLimited(rl, req).Code)

	rec := serveRateLimited(rl, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.JSONEq(t, `{"error":"rate limit exceeded, please try again later"}`, rec.Body.String())
}

func TestDevicesAreLimitedIndependently(t *testing.T) {
	rl, _ := newTestRateLimiter(t, 1, 100)

	first := httptest.NewRequest(http.MethodGet, "/stops", nil)
	first.Header.Set("X-Device-ID", "watch-1")
	second := httptest.NewRequest(http.MethodGet, "/stops", nil)
	second.Header.Set("X-Device-ID", "watch-2")

	assert.Equal(t, http.StatusOK, serveRateLimited(rl, first).Code)
	assert.Equal(t, http.StatusTooManyRequests, serveRateLimited(rl, first).Code)

	// A different device still has its full budget.
	assert.Equal(t, http.StatusOK, serveRateLimited(rl, second).Code)
}

func TestAnonymousRequestsShareIPBudget(t *testing.T) {
	rl, _ := newTestRateLimiter(t, 100, 2)

	req := httptest.NewRequest(http.MethodGet, "/stops", nil)
	req.RemoteAddr = "203.0.113.5:1234"

	assert.Equal(t, http.StatusOK, serveRateLimited(rl, req).Code)
	assert.Equal(t, http.StatusOK, serveRateLimited(rl, req).Code)
	assert.Equal(t, http.StatusTooManyRequests, serveRateLimited(rl, req).Code)

	// A different IP is a separate bucket.
	other := httptest.NewRequest(http.MethodGet, "/stops", nil)
	other.RemoteAddr = "198.51.100.7:5678"
	assert.Equal(t, http.StatusOK, serveRateLimited(rl, other).Code)
}

func TestOverlongDeviceIDFallsBackToIPTier(t *testing.T) {
	rl, _ := newTestRateLimiter(t, 100, 1)

	longID := make([]byte, maxDeviceIDLength+1)
	for i := range longID {
		longID[i] = 'x'
	}

	req := httptest.NewRequest(http.MethodGet, "/stops", nil)
	req.Header.Set("X-Device-ID", string(longID))
	req.RemoteAddr = "203.0.113.5:1234"

	assert.Equal(t, http.StatusOK, serveRateLimited(rl, req).Code)
	// Second request hits the (tiny) IP budget, proving the device header
	// was ignored.
	assert.Equal(t, http.StatusTooManyRequests, serveRateLimited(rl, req).Code)
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stops", nil)
	req.RemoteAddr = "10.0.0.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", clientIP(req))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "10.0.0.1", clientIP(req))
}

func TestZeroLimitDisablesTier(t *testing.T) {
	rl, _ := newTestRateLimiter(t, 0, 100)

	req := httptest.NewRequest(http.MethodGet, "/stops", nil)
	req.Header.Set("X-Device-ID", "watch-abc")

	for range 10 {
		assert.Equal(t, http.StatusOK, serveRateLimited(rl, req).Code)
	}
}

func TestCleanupEvictsStaleClients(t *testing.T) {
	rl, mock := newTestRateLimiter(t, 60, 300)

	req := httptest.NewRequest(http.MethodGet, "/stops", nil)
	req.Header.Set("X-Device-ID", "watch-abc")
	serveRateLimited(rl, req)

	rl.mu.RLock()
	assert.Len(t, rl.limiters, 1)
	rl.mu.RUnlock()

	mock.Advance(staleAfter + time.Minute)
	rl.cleanupOnce()

	rl.mu.RLock()
	assert.Empty(t, rl.limiters)
	rl.mu.RUnlock()
}

func TestCleanupKeepsActiveClients(t *testing.T) {
	rl, mock := newTestRateLimiter(t, 60, 300)

	req := httptest.NewRequest(http.MethodGet, "/stops", nil)
	req.Header.Set("X-Device-ID", "watch-abc")
	serveRateLimited(rl, req)

	mock.Advance(staleAfter / 2)
	rl.cleanupOnce()

	rl.mu.RLock()
	assert.Len(t, rl.limiters, 1)
	rl.mu.RUnlock()
}

func TestStopIsIdempotent(t *testing.T) {
	rl, _ := newTestRateLimiter(t, 60, 300)
	rl.Stop()
	rl.Stop()
}
