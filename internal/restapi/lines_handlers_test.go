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

func TestLinesEndpoint(t *testing.T) {
	api := createTestApi(t)

	rec := serveRequest(api, httptest.NewRequest(http.MethodGet, "/lines", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var lines []models.LineResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	require.Len(t, lines, 1)
	assert.Equal(t, "01", lines[0].Number)
	assert.Equal(t, "#00A0DF", lines[0].Color)
}

func TestLineStopsEndpoint(t *testing.T) {
	api := createTestApi(t)

	rec := serveRequest(api, httptest.NewRequest(http.MethodGet, "/lines/01/stops", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stops []models.LineStop
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stops))
	require.Len(t, stops, 2)
	assert.Equal(t, "41", stops[0].Code)
	assert.Equal(t, 0, stops[0].Ordinal)
	assert.Equal(t, "43", stops[1].Code)
	assert.Equal(t, 1, stops[1].Ordinal)
}

func TestLineStopsEndpointUnknownLineIsEmptyArray(t *testing.T) {
	api := createTestApi(t)

	rec := serveRequest(api, httptest.NewRequest(http.MethodGet, "/lines/99/stops", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
