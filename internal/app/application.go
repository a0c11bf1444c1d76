package app

import (
	"log/slog"

	"sevibus.transitlab.org/internal/appconf"
	"sevibus.transitlab.org/internal/clock"
	"sevibus.transitlab.org/internal/metrics"
	"sevibus.transitlab.org/internal/store"
	"sevibus.transitlab.org/internal/transit"
	"sevibus.transitlab.org/internal/upstream"
)

// Application holds the dependencies for our HTTP handlers, helpers, and
// middleware. Everything is constructed explicitly at startup and torn down
// exactly once at shutdown; nothing in here is a process-wide singleton.
type Application struct {
	Config   appconf.Config
	Logger   *slog.Logger
	Store    *store.Store
	Upstream *upstream.Client
	Service  *transit.Service
	Clock    clock.Clock
	Metrics  *metrics.Metrics
}
