// Package transit implements the domain operations over the store and the
// upstream client: proximity search, arrival boards, address resolution and
// the data synchronization pipeline.
package transit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"sevibus.transitlab.org/internal/clock"
	"sevibus.transitlab.org/internal/logging"
	"sevibus.transitlab.org/internal/metrics"
	"sevibus.transitlab.org/internal/models"
	"sevibus.transitlab.org/internal/store"
	"sevibus.transitlab.org/internal/upstream"
)

// Service coordinates the store, the upstream client and the caches. It is
// safe for concurrent use.
type Service struct {
	store   *store.Store
	client  *upstream.Client
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewService wires a Service. The metrics argument may be nil in tests.
func NewService(st *store.Store, client *upstream.Client, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics) *Service {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m != nil && client != nil {
		client.OnRetry = func(status int) {
			m.UpstreamRetriesTotal.WithLabelValues(strconv.Itoa(status)).Inc()
		}
	}
	return &Service{store: st, client: client, clock: clk, logger: logger, metrics: m}
}

func (s *Service) cacheHit(cache string) {
	if s.metrics != nil {
		s.metrics.CacheHitsTotal.WithLabelValues(cache).Inc()
	}
}

func (s *Service) cacheMiss(cache string) {
	if s.metrics != nil {
		s.metrics.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func (s *Service) recordPhase(phase string, started time.Time, err error) {
	if s.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	s.metrics.SyncRunsTotal.WithLabelValues(phase, result).Inc()
	s.metrics.SyncLastDuration.WithLabelValues(phase).Set(s.clock.Now().Sub(started).Seconds())
}

// stopResponse converts a stored stop to its API view.
func stopResponse(st store.Stop) models.StopResponse {
	resp := models.StopResponse{
		Code:    st.Code,
		Name:    st.Name,
		Lat:     st.Lat,
		Lon:     st.Lon,
		Address: st.Address,
	}
	if !st.UpdatedAt.IsZero() {
		resp.UpdatedAt = st.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}

// AddressForCoords resolves arbitrary coordinates to a street address through
// the 30-day cache. Geocoder failures degrade to a default address rather
// than an error, matching the best-effort nature of the lookup.
func (s *Service) AddressForCoords(ctx context.Context, lat, lon float64) (models.Address, error) {
	cached, err := s.store.GetAddress(ctx, lat, lon)
	if err != nil {
		return models.Address{}, err
	}
	if cached != nil {
		s.cacheHit("addresses")
		return *cached, nil
	}
	s.cacheMiss("addresses")

	addr, err := s.client.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		logging.LogError(s.logger, "reverse geocode failed", err,
			slog.Float64("lat", lat), slog.Float64("lon", lon))
		return models.Address{Municipality: "Sevilla", Province: "Sevilla"}, nil
	}
	if err := s.store.SetAddress(ctx, lat, lon, addr); err != nil {
		logging.LogError(s.logger, "caching address failed", err,
			slog.Float64("lat", lat), slog.Float64("lon", lon))
	}
	return addr, nil
}

// Stop returns a single stop by code.
func (s *Service) Stop(ctx context.Context, code string) (models.StopResponse, error) {
	st, err := s.store.GetStop(ctx, code)
	if err != nil {
		return models.StopResponse{}, err
	}
	return stopResponse(st), nil
}

// Stops returns all stored stops.
func (s *Service) Stops(ctx context.Context) ([]models.StopResponse, error) {
	stops, err := s.store.ListStops(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]models.StopResponse, len(stops))
	for i, st := range stops {
		result[i] = stopResponse(st)
	}
	return result, nil
}

// Lines returns all stored lines.
func (s *Service) Lines(ctx context.Context) ([]models.LineResponse, error) {
	lines, err := s.store.ListLines(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]models.LineResponse, len(lines))
	for i, l := range lines {
		result[i] = models.LineResponse{
			Number:    l.Number,
			Name:      l.Name,
			Color:     l.Color,
			UpdatedAt: l.UpdatedAt.Format(time.RFC3339),
		}
	}
	return result, nil
}

// LinesForStop returns the line numbers serving a stop.
func (s *Service) LinesForStop(ctx context.Context, stopCode string) ([]string, error) {
	return s.store.LinesForStop(ctx, stopCode)
}

// StopsForLine returns a line's stops ordered by direction and route
// position.
func (s *Service) StopsForLine(ctx context.Context, lineNumber string) ([]models.LineStop, error) {
	stops, err := s.store.StopsForLine(ctx, lineNumber)
	if err != nil {
		return nil, err
	}
	result := make([]models.LineStop, len(stops))
	for i, ls := range stops {
		result[i] = models.LineStop{
			StopResponse: stopResponse(ls.Stop),
			Direction:    ls.Direction,
			Ordinal:      ls.Ordinal,
		}
	}
	return result, nil
}
