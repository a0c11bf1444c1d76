package restapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sevibus.transitlab.org/internal/models"
)

func TestNearbyEndpoint(t *testing.T) {
	api := createTestApi(t)

	rec := serveRequest(api, httptest.NewRequest(http.MethodGet,
		"/nearby?lat=37.3891&lon=-5.9958&radius=1000", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.NearbyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 37.3891, resp.Location.Lat)
	require.Len(t, resp.Stops, 2)

	// Stop 41 has a live board; stop 43's failed fetch degrades to an empty
	// list instead of failing the whole response.
	assert.Equal(t, "41", resp.Stops[0].Code)
	require.Len(t, resp.Stops[0].Arrivals, 2)
	assert.Equal(t, "43", resp.Stops[1].Code)
	assert.NotNil(t, resp.Stops[1].Arrivals)
	assert.Empty(t, resp.Stops[1].Arrivals)
}

func TestNearbyEndpointLineFilter(t *testing.T) {
	api := createTestApi(t)

	rec := serveRequest(api, httptest.NewRequest(http.MethodGet,
		"/nearby?lat=37.3891&lon=-5.9958&radius=1000&lines=c4", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.NearbyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	for _, stop := range resp.Stops {
		assert.Empty(t, stop.Arrivals, "line filter C4 should exclude the 01 arrivals at stop %s", stop.Code)
	}
}

func TestNearbyEndpointMapURL(t *testing.T) {
	api := createTestApi(t)

	rec := serveRequest(api, httptest.NewRequest(http.MethodGet,
		"/nearby?lat=37.3891&lon=-5.9958&radius=1000&includeMapURL=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.NearbyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Stops)
	assert.Contains(t, resp.Stops[0].MapURL, "openstreetmap.org")
}

func TestNearbyEndpointGeoJSON(t *testing.T) {
	api := createTestApi(t)

	rec := serveRequest(api, httptest.NewRequest(http.MethodGet,
		"/nearby?lat=37.3891&lon=-5.9958&radius=1000&format=geojson", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	// GeoJSON positions are lon, lat.
	assert.InDelta(t, -5.9958, fc.Features[0].Geometry.Coordinates[0], 1e-9)
	assert.InDelta(t, 37.3891, fc.Features[0].Geometry.Coordinates[1], 1e-9)
}

func TestNearbyEndpointValidation(t *testing.T) {
	api := createTestApi(t)

	tests := []struct {
		name  string
		query string
	}{
		{"missing location", ""},
		{"bad maxStops", "lat=37.4&lon=-5.9&maxStops=11"},
		{"bad maxMinutes", "lat=37.4&lon=-5.9&maxMinutes=-1"},
		{"bad direction", "lat=37.4&lon=-5.9&direction=3"},
		{"bad format", "lat=37.4&lon=-5.9&format=xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveRequest(api, httptest.NewRequest(http.MethodGet, "/nearby?"+tt.query, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAddressEndpoint(t *testing.T) {
	api := createTestApi(t)

	rec := serveRequest(api, httptest.NewRequest(http.MethodGet,
		"/address?lat=37.3922&lon=-5.9937", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var addr models.Address
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &addr))
	assert.Equal(t, "Calle Sierpes", addr.Street)
	assert.Equal(t, "Calle Sierpes 4", addr.Formatted)
}

func TestAddressEndpointRequiresLocation(t *testing.T) {
	api := createTestApi(t)

	rec := serveRequest(api, httptest.NewRequest(http.MethodGet, "/address", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
