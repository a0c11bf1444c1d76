package transit

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"sevibus.transitlab.org/internal/models"
)

// composite endpoint caps: stops returned and arrivals per stop.
const (
	defaultMaxStops      = 3
	compositeArrivalsCap = 5
)

// CompositeQuery describes the one-shot nearby-with-arrivals lookup used by
// watch and widget clients.
type CompositeQuery struct {
	NearbyQuery
	MaxStops         int
	BearingTolerance float64
	MaxMinutes       *int
	Lines            []string
	Direction        *models.Direction
	IncludeMapURL    bool
}

// NearbyWithArrivals finds nearby stops and attaches each stop's filtered
// arrival board. A failed arrival fetch degrades that stop to an empty board
// instead of failing the whole response.
func (s *Service) NearbyWithArrivals(ctx context.Context, q CompositeQuery) (models.NearbyResponse, error) {
	stops, err := s.FindNearby(ctx, q.NearbyQuery)
	if err != nil {
		return models.NearbyResponse{}, err
	}

	if q.Bearing != nil {
		filtered := stops[:0]
		for _, st := range stops {
			if st.BearingDiff != nil && float64(*st.BearingDiff) <= q.BearingTolerance {
				filtered = append(filtered, st)
			}
		}
		stops = filtered
	}

	maxStops := q.MaxStops
	if maxStops <= 0 {
		maxStops = defaultMaxStops
	}
	if len(stops) > maxStops {
		stops = stops[:maxStops]
	}

	result := make([]models.NearbyStopWithArrivals, 0, len(stops))
	for _, st := range stops {
		entry := models.NearbyStopWithArrivals{NearbyStop: st, Arrivals: []models.Arrival{}}

		snapshot, err := s.StopArrivals(ctx, st.Code)
		if err != nil {
			s.logger.Warn("arrivals unavailable for nearby stop",
				slog.String("stop", st.Code), slog.String("error", err.Error()))
		} else {
			entry.Arrivals = filterArrivals(snapshot.Arrivals, q)
		}

		if q.IncludeMapURL {
			entry.MapURL = osmMapURL(st.Lat, st.Lon)
		}
		result = append(result, entry)
	}

	return models.NearbyResponse{
		Location: models.LocationEcho{Lat: q.Lat, Lon: q.Lon, Bearing: q.Bearing},
		Stops:    result,
	}, nil
}

func filterArrivals(arrivals []models.Arrival, q CompositeQuery) []models.Arrival {
	filtered := make([]models.Arrival, 0, len(arrivals))
	for _, a := range arrivals {
		if q.MaxMinutes != nil && (a.Minutes < 0 || a.Minutes > *q.MaxMinutes) {
			continue
		}
		if len(q.Lines) > 0 && !slices.Contains(q.Lines, a.Line) {
			continue
		}
		if q.Direction != nil && (a.Direction == nil || *a.Direction != *q.Direction) {
			continue
		}
		filtered = append(filtered, a)
	}
	if len(filtered) > compositeArrivalsCap {
		filtered = filtered[:compositeArrivalsCap]
	}
	return filtered
}

func osmMapURL(lat, lon float64) string {
	return fmt.Sprintf("https://www.openstreetmap.org/?mlat=%v&mlon=%v#map=18/%v/%v",
		lat, lon, lat, lon)
}
