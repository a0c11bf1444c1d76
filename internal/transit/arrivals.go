package transit

import (
	"context"
	"fmt"
	"math"
	"sort"

	"sevibus.transitlab.org/internal/models"
)

// maxArrivals caps the arrival board to the soonest entries.
const maxArrivals = 10

// minutesFromSeconds floors toward negative infinity. The operator reports a
// vehicle already at the stop with negative seconds; those must stay negative
// (-30s is -1min, not 0) so downstream filters can tell "at the stop" from
// "due now".
func minutesFromSeconds(seconds int) int {
	return int(math.Floor(float64(seconds) / 60))
}

// StopArrivals returns the live arrival board for a stop, served from the
// one-minute cache when fresh. On a miss the upstream board is fetched,
// directions are resolved from stored memberships, and the result is written
// through to the cache.
func (s *Service) StopArrivals(ctx context.Context, stopCode string) (models.ArrivalsSnapshot, error) {
	cached, err := s.store.GetArrivals(ctx, stopCode)
	if err != nil {
		return models.ArrivalsSnapshot{}, err
	}
	if cached != nil {
		s.cacheHit("arrivals")
		return *cached, nil
	}
	s.cacheMiss("arrivals")

	times, err := s.client.FetchStopTimes(ctx, stopCode)
	if err != nil {
		return models.ArrivalsSnapshot{}, fmt.Errorf("fetch arrivals for stop %s: %w", stopCode, err)
	}

	directions, err := s.store.DirectionsForStop(ctx, stopCode)
	if err != nil {
		return models.ArrivalsSnapshot{}, err
	}

	var arrivals []models.Arrival
	for _, line := range times.Lines {
		// A line's direction at this stop is only known when the stored
		// memberships record exactly one; a stop served in both directions
		// is ambiguous and stays unresolved.
		var direction *models.Direction
		if dirs := directions[line.Label]; len(dirs) == 1 {
			d := dirs[0]
			direction = &d
		}
		for _, est := range line.Estimates {
			arrivals = append(arrivals, models.Arrival{
				Line:           line.Label,
				Color:          line.Color,
				Minutes:        minutesFromSeconds(est.Seconds),
				Destination:    est.Destination,
				DistanceMeters: est.DistanceMeters,
				Direction:      direction,
			})
		}
	}

	sort.SliceStable(arrivals, func(i, j int) bool {
		return arrivals[i].Minutes < arrivals[j].Minutes
	})
	if len(arrivals) > maxArrivals {
		arrivals = arrivals[:maxArrivals]
	}

	snapshot := models.ArrivalsSnapshot{
		StopCode: stopCode,
		StopName: times.StopName,
		Lat:      times.Lat,
		Lon:      times.Lon,
		Arrivals: arrivals,
	}
	if err := s.store.SetArrivals(ctx, stopCode, snapshot); err != nil {
		return models.ArrivalsSnapshot{}, err
	}
	return snapshot, nil
}
