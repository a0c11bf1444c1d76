// Package restapi exposes the transit service over HTTP: read endpoints for
// stops, lines, arrivals and proximity queries, plus key-gated sync
// endpoints. Handlers stay thin; domain behavior lives in internal/transit.
package restapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sevibus.transitlab.org/internal/app"
	"sevibus.transitlab.org/internal/appconf"
	"sevibus.transitlab.org/internal/webui"
)

// RestAPI holds the application dependencies plus the stateful middleware
// that needs explicit shutdown.
type RestAPI struct {
	*app.Application

	rateLimiter *RateLimitMiddleware
}

// NewRestAPI builds the API surface for an application.
func NewRestAPI(application *app.Application) *RestAPI {
	return &RestAPI{
		Application: application,
		rateLimiter: NewRateLimitMiddleware(
			application.Config.DeviceRateLimit,
			application.Config.IPRateLimit,
			application.Clock,
			application.Metrics,
		),
	}
}

// Shutdown stops the background goroutines owned by the API layer. Safe to
// call multiple times.
func (api *RestAPI) Shutdown() {
	api.rateLimiter.Stop()
}

// SetRoutes registers every route on the mux. Read endpoints get a
// Cache-Control header matching their data volatility.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	static := func(h http.HandlerFunc) http.Handler {
		// Topology only changes on sync; five minutes is conservative.
		return cacheFor(300, h)
	}
	realtime := func(h http.HandlerFunc) http.Handler {
		// Mirrors the arrival cache TTL.
		return cacheFor(30, h)
	}

	mux.HandleFunc("GET /{$}", api.rootHandler)
	mux.HandleFunc("GET /healthz", api.healthHandler)

	mux.Handle("GET /stops", static(api.stopsHandler))
	mux.Handle("GET /stops/nearby", static(api.stopsNearbyHandler))
	mux.Handle("GET /stops/{code}", static(api.stopHandler))
	mux.Handle("GET /stops/{code}/arrivals", realtime(api.stopArrivalsHandler))
	mux.Handle("GET /stops/{code}/lines", static(api.stopLinesHandler))

	mux.Handle("GET /nearby", realtime(api.nearbyHandler))
	mux.Handle("GET /address", static(api.addressHandler))

	mux.Handle("GET /lines", static(api.linesHandler))
	mux.Handle("GET /lines/{number}/stops", static(api.lineStopsHandler))

	mux.HandleFunc("POST /sync/stops", api.syncStopsHandler)
	mux.HandleFunc("POST /sync/lines", api.syncLinesHandler)
	mux.HandleFunc("POST /sync/memberships", api.syncMembershipsHandler)
	mux.HandleFunc("POST /sync/addresses", api.syncAddressesHandler)
	mux.HandleFunc("POST /sync/all", api.syncAllHandler)

	mux.Handle("GET /metrics", promhttp.HandlerFor(
		api.Metrics.Registry, promhttp.HandlerOpts{}))

	if api.Config.Env == appconf.Development {
		mux.HandleFunc("GET /debug", webui.DebugHandler(api.Store, api.Logger))
	}
}

// Handler returns the fully wired HTTP handler: routes wrapped in the
// middleware chain (request id, logging, metrics, rate limiting).
func (api *RestAPI) Handler() http.Handler {
	mux := http.NewServeMux()
	api.SetRoutes(mux)

	var handler http.Handler = mux
	handler = api.rateLimiter.Handler()(handler)
	handler = recordMetrics(api.Metrics)(handler)
	handler = logRequests(api.Logger)(handler)
	handler = withRequestID(handler)
	return handler
}
