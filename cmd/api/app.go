package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sevibus.transitlab.org/internal/app"
	"sevibus.transitlab.org/internal/appconf"
	"sevibus.transitlab.org/internal/clock"
	"sevibus.transitlab.org/internal/logging"
	"sevibus.transitlab.org/internal/metrics"
	"sevibus.transitlab.org/internal/restapi"
	"sevibus.transitlab.org/internal/store"
	"sevibus.transitlab.org/internal/transit"
	"sevibus.transitlab.org/internal/upstream"
)

// dbStatsInterval is how often connection-pool gauges are sampled.
const dbStatsInterval = 15 * time.Second

// BuildApplication wires every dependency: logger, store, upstream client,
// service, metrics. The caller owns the returned application and must call
// teardown exactly once.
func BuildApplication(cfg appconf.Config) (*app.Application, error) {
	logger := logging.NewLogger(cfg.Env == appconf.Production)
	clk := clock.RealClock{}

	m := metrics.NewWithLogger(logger)

	st, err := store.Open(cfg.DBPath, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %q: %w", cfg.DBPath, err)
	}
	m.StartDBStatsCollector(st.DB, dbStatsInterval)

	client := upstream.NewClient(cfg.TransitBaseURL, cfg.GeocodeBaseURL, cfg.UserAgent, clk, logger)
	service := transit.NewService(st, client, clk, logger, m)

	return &app.Application{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Upstream: client,
		Service:  service,
		Clock:    clk,
		Metrics:  m,
	}, nil
}

// CreateServer builds the HTTP server around the API surface. The returned
// RestAPI owns background middleware state; call its Shutdown when done.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.Handler(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return srv, api
}

// teardown releases everything BuildApplication acquired. Safe to call once.
func teardown(coreApp *app.Application) {
	coreApp.Metrics.Shutdown()
	coreApp.Upstream.Close()
	logging.SafeCloseWithLogging(coreApp.Store, coreApp.Logger, "store")
}

// backgroundStopper is anything Run must stop alongside the HTTP drain. The
// scheduler satisfies it; tests substitute a slow fake.
type backgroundStopper interface {
	Stop()
}

// drainAndStop shuts the HTTP server down concurrently with the background
// worker. Scheduler.Stop waits out a sync pipeline already in flight, which
// can take a long while; request draining must not queue behind it.
func drainAndStop(srv *http.Server, background backgroundStopper, timeout time.Duration) error {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if background != nil {
			background.Stop()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := srv.Shutdown(ctx)

	<-stopped
	return err
}

// Run starts the server and the weekly sync scheduler, then blocks until
// SIGINT/SIGTERM. In-flight requests get a grace period to drain.
func Run(coreApp *app.Application, cfg appconf.Config) error {
	srv, api := CreateServer(coreApp, cfg)
	defer api.Shutdown()

	var background backgroundStopper
	if cfg.SyncEnabled {
		scheduler := transit.NewScheduler(coreApp.Service, coreApp.Clock, coreApp.Logger,
			cfg.SyncDay, cfg.SyncHour, cfg.SyncMinute)
		scheduler.Start()
		background = scheduler
	}

	shutdownErr := make(chan error, 1)
	var once sync.Once

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit

		logging.LogOperation(coreApp.Logger, "shutdown_signal_received",
			slog.String("signal", sig.String()))

		once.Do(func() {
			shutdownErr <- drainAndStop(srv, background, 30*time.Second)
		})
	}()

	logging.LogOperation(coreApp.Logger, "server_starting",
		slog.String("addr", srv.Addr),
		slog.String("env", cfg.Env.String()),
		slog.Bool("sync_enabled", cfg.SyncEnabled))

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-shutdownErr; err != nil {
		return err
	}

	logging.LogOperation(coreApp.Logger, "server_stopped")
	return nil
}
