package transit

import (
	"context"
	"math"
	"sort"

	"sevibus.transitlab.org/internal/geo"
	"sevibus.transitlab.org/internal/models"
)

// NearbyQuery describes a proximity search around a point. Bearing, when
// set, is the direction the user is facing in degrees; matching stops are
// then annotated and ordered by how close they are to that heading.
type NearbyQuery struct {
	Lat          float64
	Lon          float64
	RadiusMeters int
	Bearing      *float64
}

// FindNearby scans all stored stops and returns those within the query
// radius. Without a bearing the result is ordered by distance; with one it
// is ordered by bearing difference. Ties preserve the stable storage order,
// so repeated queries return identical results.
func (s *Service) FindNearby(ctx context.Context, q NearbyQuery) ([]models.NearbyStop, error) {
	stops, err := s.store.ListStops(ctx)
	if err != nil {
		return nil, err
	}

	var nearby []models.NearbyStop
	for _, st := range stops {
		distance := geo.Distance(q.Lat, q.Lon, st.Lat, st.Lon)
		if distance > float64(q.RadiusMeters) {
			continue
		}
		candidate := models.NearbyStop{
			StopResponse:   stopResponse(st),
			DistanceMeters: int(math.Round(distance)),
		}
		if q.Bearing != nil {
			bearing := geo.Bearing(q.Lat, q.Lon, st.Lat, st.Lon)
			diff := geo.BearingDiff(*q.Bearing, bearing)
			b, d := int(math.Round(bearing)), int(math.Round(diff))
			candidate.Bearing, candidate.BearingDiff = &b, &d
		}
		nearby = append(nearby, candidate)
	}

	if q.Bearing != nil {
		sort.SliceStable(nearby, func(i, j int) bool {
			return *nearby[i].BearingDiff < *nearby[j].BearingDiff
		})
	} else {
		sort.SliceStable(nearby, func(i, j int) bool {
			return nearby[i].DistanceMeters < nearby[j].DistanceMeters
		})
	}
	return nearby, nil
}
