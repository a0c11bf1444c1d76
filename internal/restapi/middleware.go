package restapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"sevibus.transitlab.org/internal/logging"
	"sevibus.transitlab.org/internal/metrics"
)

// The stateless middleware layers live here; rate limiting carries state and
// has its own file.

type contextKey string

const requestIDContextKey contextKey = "request_id"

// Inbound X-Request-ID values are only trusted when they look like trace ids:
// bounded length, no whitespace, nothing that could break a log line.
const maxRequestIDLength = 128

var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-._:]+$`)

func usableRequestID(id string) bool {
	return id != "" && len(id) <= maxRequestIDLength && requestIDPattern.MatchString(id)
}

// withRequestID tags every request with an id, echoing a usable inbound
// X-Request-ID so callers can correlate across services, and minting a UUID
// otherwise.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !usableRequestID(id) {
			id = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the id attached by withRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey).(string); ok {
		return id
	}
	return ""
}

// statusRecorder captures the status code written downstream. Shared by the
// logging and metrics layers; a handler that never calls WriteHeader has
// implicitly written 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// logRequests plants the logger in the request context and emits one line per
// completed request with status, latency and the request id.
func logRequests(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r = r.WithContext(logging.WithLogger(r.Context(), logger))

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logging.LogHTTPRequest(logger, r.Method, r.URL.Path, rec.status,
				float64(time.Since(start).Nanoseconds())/1e6,
				slog.String("request_id", RequestIDFromContext(r.Context())),
				slog.String("user_agent", r.Header.Get("User-Agent")),
				slog.String("component", "http_server"))
		})
	}
}

// recordMetrics observes request counts and latency. Series are labeled by
// the matched route pattern, never the raw path: stop codes and coordinates
// in URLs would blow up cardinality.
func recordMetrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

const noStoreHeader = "no-cache, no-store, must-revalidate"

// cacheFor stamps successful responses with a max-age chosen per route:
// topology data only changes on sync, arrival boards turn over with the
// one-minute cache. Errors are never cacheable, whatever the route says.
func cacheFor(maxAgeSeconds int, next http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d", maxAgeSeconds)
	if maxAgeSeconds <= 0 {
		value = noStoreHeader
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&cacheStampWriter{ResponseWriter: w, onSuccess: value}, r)
	})
}

// cacheStampWriter decides the Cache-Control value at the moment the status
// is known. The header must be in place before WriteHeader hits the wire, so
// an implicit 200 (first Write without WriteHeader) is stamped too.
type cacheStampWriter struct {
	http.ResponseWriter
	onSuccess string
	stamped   bool
}

func (w *cacheStampWriter) WriteHeader(code int) {
	if !w.stamped {
		w.stamped = true
		if code >= 200 && code < 300 {
			w.Header().Set("Cache-Control", w.onSuccess)
		} else {
			w.Header().Set("Cache-Control", noStoreHeader)
		}
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cacheStampWriter) Write(b []byte) (int, error) {
	if !w.stamped {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
