package restapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncEndpointsRequireAPIKey(t *testing.T) {
	api := createTestApi(t)

	endpoints := []string{
		"/sync/stops", "/sync/lines", "/sync/memberships", "/sync/addresses", "/sync/all",
	}
	for _, endpoint := range endpoints {
		t.Run(endpoint, func(t *testing.T) {
			rec := serveRequest(api, httptest.NewRequest(http.MethodPost, endpoint, nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "missing key should be rejected")

			req := httptest.NewRequest(http.MethodPost, endpoint, nil)
			req.Header.Set("X-API-Key", "wrong-key")
			rec = serveRequest(api, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "wrong key should be rejected")
		})
	}
}

func TestSyncLinesEndpoint(t *testing.T) {
	api := createTestApi(t)

	req := httptest.NewRequest(http.MethodPost, "/sync/lines", nil)
	req.Header.Set("X-API-Key", "TEST")
	rec := serveRequest(api, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lines":1}`, rec.Body.String())

	lines, err := api.Store.ListLines(context.Background())
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Pino Montano - Glorieta del Alcalde", lines[0].Name)
}

func TestSyncEndpointsRejectGET(t *testing.T) {
	api := createTestApi(t)

	req := httptest.NewRequest(http.MethodGet, "/sync/lines", nil)
	req.Header.Set("X-API-Key", "TEST")
	rec := serveRequest(api, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
