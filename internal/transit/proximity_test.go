package transit

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sevibus.transitlab.org/internal/store"
)

func seedStops(t *testing.T, st *store.Store, stops ...store.Stop) {
	t.Helper()
	require.NoError(t, st.UpsertStops(context.Background(), stops))
}

func TestFindNearbyRadiusFilterAndDistanceOrder(t *testing.T) {
	svc, st, _ := newTestService(t, http.NotFoundHandler())
	seedStops(t, st,
		store.Stop{Code: "near", Name: "Near", Lat: 37.3896, Lon: -5.9842},
		store.Stop{Code: "far", Name: "Far", Lat: 37.3885, Lon: -5.9850},
	)

	// Tight radius keeps only the adjacent stop.
	result, err := svc.FindNearby(context.Background(), NearbyQuery{
		Lat: 37.3897, Lon: -5.9843, RadiusMeters: 100,
	})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "near", result[0].Code)
	assert.Less(t, result[0].DistanceMeters, 20)

	// Wider radius returns both, nearest first.
	result, err = svc.FindNearby(context.Background(), NearbyQuery{
		Lat: 37.3897, Lon: -5.9843, RadiusMeters: 500,
	})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "near", result[0].Code)
	assert.Equal(t, "far", result[1].Code)
	assert.Less(t, result[0].DistanceMeters, result[1].DistanceMeters)
}

func TestFindNearbyBearingAnnotationAndOrder(t *testing.T) {
	svc, st, _ := newTestService(t, http.NotFoundHandler())
	seedStops(t, st,
		// Due north of the query point, and due east.
		store.Stop{Code: "north", Name: "North", Lat: 37.3950, Lon: -5.9843},
		store.Stop{Code: "east", Name: "East", Lat: 37.3897, Lon: -5.9780},
	)

	bearing := 0.0
	result, err := svc.FindNearby(context.Background(), NearbyQuery{
		Lat: 37.3897, Lon: -5.9843, RadiusMeters: 1000, Bearing: &bearing,
	})
	require.NoError(t, err)
	require.Len(t, result, 2)

	// Facing north: the northern stop sorts first despite being farther.
	assert.Equal(t, "north", result[0].Code)
	require.NotNil(t, result[0].BearingDiff)
	assert.LessOrEqual(t, *result[0].BearingDiff, 1)
	require.NotNil(t, result[1].BearingDiff)
	assert.InDelta(t, 90, *result[1].BearingDiff, 2)
	require.NotNil(t, result[1].Bearing)
	assert.InDelta(t, 90, *result[1].Bearing, 2)
}

func TestFindNearbyWithoutBearingOmitsAnnotation(t *testing.T) {
	svc, st, _ := newTestService(t, http.NotFoundHandler())
	seedStops(t, st, store.Stop{Code: "a", Name: "A", Lat: 37.3896, Lon: -5.9842})

	result, err := svc.FindNearby(context.Background(), NearbyQuery{
		Lat: 37.3897, Lon: -5.9843, RadiusMeters: 100,
	})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Nil(t, result[0].Bearing)
	assert.Nil(t, result[0].BearingDiff)
}

func TestFindNearbyTiesAreStable(t *testing.T) {
	svc, st, _ := newTestService(t, http.NotFoundHandler())
	// Identical coordinates: identical distance, order falls back to the
	// storage order (by code).
	seedStops(t, st,
		store.Stop{Code: "b", Name: "B", Lat: 37.3896, Lon: -5.9842},
		store.Stop{Code: "a", Name: "A", Lat: 37.3896, Lon: -5.9842},
	)

	for i := 0; i < 3; i++ {
		result, err := svc.FindNearby(context.Background(), NearbyQuery{
			Lat: 37.3897, Lon: -5.9843, RadiusMeters: 100,
		})
		require.NoError(t, err)
		require.Len(t, result, 2)
		assert.Equal(t, "a", result[0].Code)
		assert.Equal(t, "b", result[1].Code)
	}
}

func TestFindNearbyEmptyStore(t *testing.T) {
	svc, _, _ := newTestService(t, http.NotFoundHandler())
	result, err := svc.FindNearby(context.Background(), NearbyQuery{
		Lat: 37.39, Lon: -5.98, RadiusMeters: 500,
	})
	require.NoError(t, err)
	assert.Empty(t, result)
}
