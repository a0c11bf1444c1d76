package transit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"sevibus.transitlab.org/internal/logging"
	"sevibus.transitlab.org/internal/models"
	"sevibus.transitlab.org/internal/store"
)

// Request pacing for the bulk sync phases. The operator's API tolerates
// ~2 req/s; Nominatim's usage policy demands at most 1 req/s.
const (
	membershipPace = 500 * time.Millisecond
	geocodePace    = 1100 * time.Millisecond
)

var bothDirections = []models.Direction{models.DirectionOutbound, models.DirectionInbound}

// SyncStops rebuilds the stop table from the operator's line routes. Stops
// appearing on several lines are recorded once, first occurrence wins. A
// failed node fetch skips that line/direction; a failed line listing fails
// the whole phase.
func (s *Service) SyncStops(ctx context.Context) (count int, err error) {
	defer func(started time.Time) { s.recordPhase("stops", started, err) }(s.clock.Now())

	lines, err := s.client.FetchLines(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch line listing: %w", err)
	}
	logging.LogOperation(s.logger, "syncing_stops", slog.Int("lines", len(lines)))

	seen := make(map[string]struct{})
	var stops []store.Stop
	for _, line := range lines {
		for _, direction := range bothDirections {
			nodes, err := s.client.FetchLineNodes(ctx, line.ID, direction)
			if err != nil {
				s.logger.Warn("skipping line direction during stop sync",
					slog.String("line", line.Label),
					slog.Int("direction", int(direction)),
					slog.String("error", err.Error()))
				continue
			}
			for _, node := range nodes {
				if _, ok := seen[node.Code]; ok {
					continue
				}
				if node.Lat == 0 || node.Lon == 0 {
					continue
				}
				seen[node.Code] = struct{}{}
				stops = append(stops, store.Stop{
					Code: node.Code,
					Name: node.Name,
					Lat:  node.Lat,
					Lon:  node.Lon,
				})
			}
		}
	}

	if err := s.store.UpsertStops(ctx, stops); err != nil {
		return 0, fmt.Errorf("upsert stops: %w", err)
	}
	logging.LogOperation(s.logger, "stops_synced", slog.Int("count", len(stops)))
	return len(stops), nil
}

// SyncLines refreshes the line table from the operator's listing.
func (s *Service) SyncLines(ctx context.Context) (count int, err error) {
	defer func(started time.Time) { s.recordPhase("lines", started, err) }(s.clock.Now())

	upstreamLines, err := s.client.FetchLines(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch line listing: %w", err)
	}

	lines := make([]store.Line, 0, len(upstreamLines))
	for _, l := range upstreamLines {
		lines = append(lines, store.Line{Number: l.Label, Name: l.Name, Color: l.Color})
	}
	if err := s.store.UpsertLines(ctx, lines); err != nil {
		return 0, fmt.Errorf("upsert lines: %w", err)
	}
	logging.LogOperation(s.logger, "lines_synced", slog.Int("count", len(lines)))
	return len(lines), nil
}

// SyncMemberships rebuilds the stop-line membership table by walking every
// line in both directions, paced to stay under the operator's rate limit.
// The replacement itself is atomic; see store.ReplaceMemberships.
func (s *Service) SyncMemberships(ctx context.Context) (count int, err error) {
	defer func(started time.Time) { s.recordPhase("memberships", started, err) }(s.clock.Now())

	lines, err := s.client.FetchLines(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch line listing: %w", err)
	}
	logging.LogOperation(s.logger, "syncing_memberships", slog.Int("lines", len(lines)))

	limiter := rate.NewLimiter(rate.Every(membershipPace), 1)

	var memberships []store.Membership
	for _, line := range lines {
		for _, direction := range bothDirections {
			if err := limiter.Wait(ctx); err != nil {
				return 0, err
			}
			nodes, err := s.client.FetchLineNodes(ctx, line.ID, direction)
			if err != nil {
				s.logger.Warn("skipping line direction during membership sync",
					slog.String("line", line.Label),
					slog.Int("direction", int(direction)),
					slog.String("error", err.Error()))
				continue
			}
			for ordinal, node := range nodes {
				memberships = append(memberships, store.Membership{
					StopCode:   node.Code,
					LineNumber: line.Label,
					Direction:  direction,
					Ordinal:    ordinal,
				})
			}
		}
	}

	if err := s.store.ReplaceMemberships(ctx, memberships); err != nil {
		return 0, fmt.Errorf("replace memberships: %w", err)
	}
	logging.LogOperation(s.logger, "memberships_synced", slog.Int("count", len(memberships)))
	return len(memberships), nil
}

// SyncAddresses geocodes every stop that still lacks a street, paced to one
// request per 1.1s. A stop whose lookup yields no street falls back to the
// stop name; failures leave the stop address-less so the next run retries it.
func (s *Service) SyncAddresses(ctx context.Context) (stats models.SyncStats, err error) {
	defer func(started time.Time) { s.recordPhase("addresses", started, err) }(s.clock.Now())

	stops, err := s.store.ListStopsMissingAddress(ctx)
	if err != nil {
		return models.SyncStats{}, err
	}
	if len(stops) == 0 {
		logging.LogOperation(s.logger, "all_stops_have_addresses")
		return models.SyncStats{}, nil
	}
	logging.LogOperation(s.logger, "geocoding_stops", slog.Int("count", len(stops)))

	limiter := rate.NewLimiter(rate.Every(geocodePace), 1)
	stats.Total = len(stops)

	for i, stop := range stops {
		if err := limiter.Wait(ctx); err != nil {
			return stats, err
		}

		addr, geoErr := s.client.ReverseGeocodePrecise(ctx, stop.Lat, stop.Lon)
		if geoErr != nil {
			logging.LogError(s.logger, "geocode failed for stop", geoErr,
				slog.String("stop", stop.Code))
			stats.Errors++
			continue
		}
		if !addr.HasStreet() {
			// Stops on unmapped ground still get a searchable label.
			addr.Street = stop.Name
			addr.HouseNumber = ""
		}
		addr.Formatted = addr.FormatFull()

		// Still blank after the fallback means the stop's own name is empty
		// or whitespace; nothing usable to store.
		if !addr.HasStreet() {
			stats.Errors++
			continue
		}
		if err := s.store.UpdateStopAddress(ctx, stop.Code, addr); err != nil {
			logging.LogError(s.logger, "storing stop address failed", err,
				slog.String("stop", stop.Code))
			stats.Errors++
			continue
		}
		stats.OK++

		if (i+1)%10 == 0 {
			logging.LogOperation(s.logger, "geocoding_progress",
				slog.Int("done", i+1), slog.Int("total", len(stops)))
		}
	}

	logging.LogOperation(s.logger, "geocoding_complete",
		slog.Int("total", stats.Total), slog.Int("ok", stats.OK), slog.Int("errors", stats.Errors))
	return stats, nil
}

// SyncResult aggregates a full pipeline run.
type SyncResult struct {
	Stops       int              `json:"stops"`
	Lines       int              `json:"lines"`
	Memberships int              `json:"memberships"`
	Addresses   models.SyncStats `json:"addresses"`
}

// SyncAll runs the full pipeline. A stop sync failure aborts the run, since
// every later phase depends on the stop table; failures in later phases are
// logged and the remaining phases still run.
func (s *Service) SyncAll(ctx context.Context) (SyncResult, error) {
	var result SyncResult
	var err error

	if result.Stops, err = s.SyncStops(ctx); err != nil {
		return result, fmt.Errorf("stop sync failed, aborting pipeline: %w", err)
	}

	if result.Lines, err = s.SyncLines(ctx); err != nil {
		logging.LogError(s.logger, "line sync failed", err)
	}
	if result.Memberships, err = s.SyncMemberships(ctx); err != nil {
		logging.LogError(s.logger, "membership sync failed", err)
	}
	if result.Addresses, err = s.SyncAddresses(ctx); err != nil {
		logging.LogError(s.logger, "address sync failed", err)
	}
	return result, nil
}
