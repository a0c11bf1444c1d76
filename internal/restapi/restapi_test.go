package restapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sevibus.transitlab.org/internal/app"
	"sevibus.transitlab.org/internal/appconf"
	"sevibus.transitlab.org/internal/clock"
	"sevibus.transitlab.org/internal/metrics"
	"sevibus.transitlab.org/internal/models"
	"sevibus.transitlab.org/internal/store"
	"sevibus.transitlab.org/internal/transit"
	"sevibus.transitlab.org/internal/upstream"
)

// plazaNuevaBoard is the operator's arrival payload for stop 41.
const plazaNuevaBoard = `{
	"result": {
		"descripcion": {"texto": "Plaza Nueva"},
		"posicion": {"latitudE6": 37389100, "longitudE6": -5995800},
		"lineasCoincidentes": [
			{"labelLinea": "01", "color": "#00A0DF", "estimaciones": [
				{"segundos": 180, "destino": {"texto": "Pino Montano"}, "distancia": 900},
				{"segundos": 900, "destino": {"texto": "Pino Montano"}, "distancia": 4200}
			]}
		]
	}
}`

// defaultUpstream fakes the slices of the operator and geocoder APIs the
// handler tests touch.
func defaultUpstream() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/API/infotus-ui/tiempos/41", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(plazaNuevaBoard))
	})
	mux.HandleFunc("/API/infotus-ui/tiempos/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/API/infotus-ui/lineas/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": {"lineasDisponibles": [
			{"linea": 1, "labelLinea": "01", "descripcion": {"texto": "Pino Montano - Glorieta del Alcalde"}, "color": "#00A0DF"}
		]}}`))
	})
	mux.HandleFunc("/reverse", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"address": {"road": "Calle Sierpes", "house_number": "4", "city": "Sevilla", "county": "Sevilla"}}`))
	})
	return mux
}

func createTestApiWithUpstream(t *testing.T, upstreamHandler http.Handler) *RestAPI {
	t.Helper()

	server := httptest.NewServer(upstreamHandler)
	t.Cleanup(server.Close)

	mock := clock.NewMockClock(time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(":memory:", mock, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	client := upstream.NewClient(server.URL, server.URL, "test/1.0", mock, logger)
	t.Cleanup(client.Close)

	m := metrics.New()
	service := transit.NewService(st, client, mock, logger, m)

	api := NewRestAPI(&app.Application{
		Config: appconf.Config{
			Env:             appconf.Test,
			ApiKeys:         []string{"TEST"},
			DeviceRateLimit: 1000,
			IPRateLimit:     1000,
		},
		Logger:   logger,
		Store:    st,
		Upstream: client,
		Service:  service,
		Clock:    mock,
		Metrics:  m,
	})
	t.Cleanup(api.Shutdown)

	seedTopology(t, st)
	return api
}

func createTestApi(t *testing.T) *RestAPI {
	return createTestApiWithUpstream(t, defaultUpstream())
}

// seedTopology loads a minimal city: two stops on line 01, both outbound only,
// so direction resolution succeeds.
func seedTopology(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, st.UpsertStops(ctx, []store.Stop{
		{Code: "41", Name: "Plaza Nueva", Lat: 37.3891, Lon: -5.9958,
			Address: models.Address{Street: "Calle Sierpes", Municipality: "Sevilla", Province: "Sevilla"}},
		{Code: "43", Name: "Puerta de Jerez", Lat: 37.3850, Lon: -5.9930},
	}))
	require.NoError(t, st.UpsertLines(ctx, []store.Line{
		{Number: "01", Name: "Pino Montano - Glorieta del Alcalde", Color: "#00A0DF"},
	}))
	require.NoError(t, st.ReplaceMemberships(ctx, []store.Membership{
		{StopCode: "41", LineNumber: "01", Direction: models.DirectionOutbound, Ordinal: 0},
		{StopCode: "43", LineNumber: "01", Direction: models.DirectionOutbound, Ordinal: 1},
	}))
}

// serveRequest routes one request through the full middleware chain.
func serveRequest(api *RestAPI, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}
