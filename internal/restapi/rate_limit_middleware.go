package restapi

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"sevibus.transitlab.org/internal/clock"
	"sevibus.transitlab.org/internal/metrics"
)

const (
	// maxDeviceIDLength bounds the device identity header; anything longer
	// is treated as absent and the request falls back to the IP tier.
	maxDeviceIDLength = 64

	// maxTrackedKeys is the hard cap on distinct rate-limit buckets. At the
	// cap, requests for unseen keys pass untracked rather than evicting
	// active clients.
	maxTrackedKeys = 50000

	// staleAfter is how long a client must be idle before eviction.
	staleAfter = 10 * time.Minute
)

// rateLimitClient tracks the limiter and its last usage time.
// This allows us to remove inactive users without disrupting active ones.
type rateLimitClient struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // Unix nanoseconds (time.Time.UnixNano())
}

// RateLimitMiddleware applies the two-tier per-minute policy: clients that
// identify themselves with X-Device-ID get a per-device budget; everything
// else shares a larger per-IP budget.
type RateLimitMiddleware struct {
	limiters    map[string]*rateLimitClient
	mu          sync.RWMutex
	deviceLimit int
	ipLimit     int
	cleanupTick *time.Ticker
	stopChan    chan struct{}
	stopOnce    sync.Once
	clock       clock.Clock
	metrics     *metrics.Metrics
}

// NewRateLimitMiddleware creates the middleware and starts its sweep
// goroutine. deviceLimit and ipLimit are requests per minute; zero or
// negative disables that tier's limiting.
func NewRateLimitMiddleware(deviceLimit, ipLimit int, clk clock.Clock, m *metrics.Metrics) *RateLimitMiddleware {
	if clk == nil {
		clk = clock.RealClock{}
	}

	middleware := &RateLimitMiddleware{
		limiters:    make(map[string]*rateLimitClient),
		deviceLimit: deviceLimit,
		ipLimit:     ipLimit,
		cleanupTick: time.NewTicker(5 * time.Minute),
		stopChan:    make(chan struct{}),
		clock:       clk,
		metrics:     m,
	}

	go middleware.cleanup()

	return middleware
}

// Handler returns the HTTP middleware handler function
func (rl *RateLimitMiddleware) Handler() func(http.Handler) http.Handler {
	return rl.rateLimitHandler
}

// identify classifies the request into a bucket key and its per-minute
// budget.
func (rl *RateLimitMiddleware) identify(r *http.Request) (key string, perMinute int, tier string) {
	deviceID := r.Header.Get("X-Device-ID")
	if deviceID != "" && len(deviceID) <= maxDeviceIDLength {
		return "device:" + deviceID, rl.deviceLimit, "device"
	}
	return "ip:" + clientIP(r), rl.ipLimit, "ip"
}

// clientIP extracts the caller's address, honoring the first hop of
// X-Forwarded-For when a proxy sits in front.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// getLimiter gets or creates a rate limiter for the given key and updates
// the last usage timestamp. Returns nil when the bucket table is full and
// the key is unseen; such requests pass untracked.
func (rl *RateLimitMiddleware) getLimiter(key string, perMinute int) *rate.Limiter {
	// If the client exists, update lastSeen and return using only a Read Lock.
	rl.mu.RLock()
	if client, exists := rl.limiters[key]; exists {
		client.lastSeen.Store(rl.clock.Now().UnixNano())
		rl.mu.RUnlock()
		return client.limiter
	}
	rl.mu.RUnlock()

	// Client does not exist, acquire a full Write Lock to create it.
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Another goroutine might have created it while we were waiting for the lock.
	if client, exists := rl.limiters[key]; exists {
		client.lastSeen.Store(rl.clock.Now().UnixNano())
		return client.limiter
	}

	if len(rl.limiters) >= maxTrackedKeys {
		rl.sweepLocked()
		if len(rl.limiters) >= maxTrackedKeys {
			return nil
		}
	}

	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	newClient := &rateLimitClient{limiter: limiter}
	newClient.lastSeen.Store(rl.clock.Now().UnixNano())
	rl.limiters[key] = newClient

	return limiter
}

// rateLimitHandler is the HTTP middleware function
func (rl *RateLimitMiddleware) rateLimitHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, perMinute, tier := rl.identify(r)
		if perMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		limiter := rl.getLimiter(key, perMinute)
		if limiter != nil && !limiter.Allow() {
			if rl.metrics != nil {
				rl.metrics.RateLimitedTotal.WithLabelValues(tier).Inc()
			}
			rl.sendRateLimitExceeded(w, perMinute)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// sendRateLimitExceeded sends a 429 Too Many Requests response
func (rl *RateLimitMiddleware) sendRateLimitExceeded(w http.ResponseWriter, perMinute int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "60")
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(perMinute))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)

	payload := errorResponse{Error: "rate limit exceeded, please try again later"}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode rate limit response", "error", err)
	}
}

// sweepLocked removes stale clients. Callers must hold the write lock.
func (rl *RateLimitMiddleware) sweepLocked() {
	now := rl.clock.Now()
	for key, client := range rl.limiters {
		lastSeenNano := client.lastSeen.Load()
		if lastSeenNano == 0 {
			continue // Client just created, not yet initialized
		}
		if now.Sub(time.Unix(0, lastSeenNano)) > staleAfter {
			delete(rl.limiters, key)
		}
	}
}

// cleanupOnce performs a single sweep of stale limiters. It is separated
// from the background loop so tests can trigger it synchronously.
func (rl *RateLimitMiddleware) cleanupOnce() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.sweepLocked()
}

// cleanup periodically removes old, unused limiters to prevent memory leaks
func (rl *RateLimitMiddleware) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.cleanupOnce()
		case <-rl.stopChan:
			return
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call multiple times.
// Note: This does not affect in-flight requests - it only stops the
// background cleanup goroutine.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
		if rl.cleanupTick != nil {
			rl.cleanupTick.Stop()
		}
	})
}
