package transit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sevibus.transitlab.org/internal/models"
	"sevibus.transitlab.org/internal/store"
)

// timesHandler serves an arrival board for every stop and counts calls.
func timesHandler(calls *int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/API/infotus-ui/tiempos/") {
			http.NotFound(w, r)
			return
		}
		*calls++
		_, _ = w.Write([]byte(body))
	})
}

const plazaNuevaBoard = `{"result":{
	"descripcion":{"texto":"Plaza Nueva"},
	"posicion":{"latitudE6":37389100,"longitudE6":-5995800},
	"lineasCoincidentes":[
		{"labelLinea":"C4","color":"#E4002B","estimaciones":[
			{"segundos":540,"destino":{"texto":"Circular"},"distancia":2100}
		]},
		{"labelLinea":"01","color":"#00A0DF","estimaciones":[
			{"segundos":185,"destino":{"texto":"Pino Montano"},"distancia":820},
			{"segundos":900,"destino":{"texto":"Pino Montano"},"distancia":4000}
		]}
	]}}`

func TestStopArrivalsDirectionResolution(t *testing.T) {
	var calls int
	svc, st, _ := newTestService(t, timesHandler(&calls, plazaNuevaBoard))
	ctx := context.Background()

	// Line 01 serves the stop in exactly one direction, C4 in both.
	require.NoError(t, st.ReplaceMemberships(ctx, []store.Membership{
		{StopCode: "43", LineNumber: "01", Direction: models.DirectionOutbound, Ordinal: 4},
		{StopCode: "43", LineNumber: "C4", Direction: models.DirectionOutbound, Ordinal: 2},
		{StopCode: "43", LineNumber: "C4", Direction: models.DirectionInbound, Ordinal: 9},
	}))

	snapshot, err := svc.StopArrivals(ctx, "43")
	require.NoError(t, err)
	assert.Equal(t, "43", snapshot.StopCode)
	assert.Equal(t, "Plaza Nueva", snapshot.StopName)
	require.NotNil(t, snapshot.Lat)
	assert.InDelta(t, 37.3891, *snapshot.Lat, 1e-9)

	require.Len(t, snapshot.Arrivals, 3)
	// Sorted by minutes ascending.
	assert.Equal(t, []int{3, 9, 15},
		[]int{snapshot.Arrivals[0].Minutes, snapshot.Arrivals[1].Minutes, snapshot.Arrivals[2].Minutes})

	// 01 resolves to its single recorded direction; C4 stays unknown.
	for _, a := range snapshot.Arrivals {
		switch a.Line {
		case "01":
			require.NotNil(t, a.Direction)
			assert.Equal(t, models.DirectionOutbound, *a.Direction)
		case "C4":
			assert.Nil(t, a.Direction)
		}
	}
}

func TestStopArrivalsUnknownDirectionWithoutMemberships(t *testing.T) {
	var calls int
	svc, _, _ := newTestService(t, timesHandler(&calls, plazaNuevaBoard))

	snapshot, err := svc.StopArrivals(context.Background(), "43")
	require.NoError(t, err)
	for _, a := range snapshot.Arrivals {
		assert.Nil(t, a.Direction, "no membership rows means no direction for any line")
	}
}

func TestStopArrivalsServedFromCacheWithinTTL(t *testing.T) {
	var calls int
	svc, _, mock := newTestService(t, timesHandler(&calls, plazaNuevaBoard))
	ctx := context.Background()

	first, err := svc.StopArrivals(ctx, "43")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	mock.Advance(30 * time.Second)
	second, err := svc.StopArrivals(ctx, "43")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "fresh cache entry must not hit upstream")
	assert.Equal(t, first, second)

	mock.Advance(90 * time.Second) // past the 1 minute TTL
	_, err = svc.StopArrivals(ctx, "43")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestStopArrivalsCapsAtTen(t *testing.T) {
	var estimates []string
	for i := 12; i >= 1; i-- {
		estimates = append(estimates, fmt.Sprintf(
			`{"segundos":%d,"destino":{"texto":"X"},"distancia":100}`, i*60))
	}
	body := fmt.Sprintf(`{"result":{"descripcion":{"texto":"Busy"},
		"lineasCoincidentes":[{"labelLinea":"27","color":"#333","estimaciones":[%s]}]}}`,
		strings.Join(estimates, ","))

	var calls int
	svc, _, _ := newTestService(t, timesHandler(&calls, body))

	snapshot, err := svc.StopArrivals(context.Background(), "99")
	require.NoError(t, err)
	require.Len(t, snapshot.Arrivals, 10)
	assert.Equal(t, 1, snapshot.Arrivals[0].Minutes)
	assert.Equal(t, 10, snapshot.Arrivals[9].Minutes)
}

func TestStopArrivalsVehicleAtStopReportsNegativeMinutes(t *testing.T) {
	body := `{"result":{"descripcion":{"texto":"Prado"},
		"lineasCoincidentes":[{"labelLinea":"01","color":"#00A0DF","estimaciones":[
			{"segundos":-30,"destino":{"texto":"Pino Montano"},"distancia":10},
			{"segundos":-90,"destino":{"texto":"Pino Montano"},"distancia":0},
			{"segundos":59,"destino":{"texto":"Pino Montano"},"distancia":200}
		]}]}}`

	var calls int
	svc, _, _ := newTestService(t, timesHandler(&calls, body))

	snapshot, err := svc.StopArrivals(context.Background(), "55")
	require.NoError(t, err)
	require.Len(t, snapshot.Arrivals, 3)

	// Floor division: -30s and -90s are already at the stop, not "0 minutes".
	assert.Equal(t, -2, snapshot.Arrivals[0].Minutes)
	assert.Equal(t, -1, snapshot.Arrivals[1].Minutes)
	assert.Equal(t, 0, snapshot.Arrivals[2].Minutes)
}

func TestStopArrivalsUpstreamFailure(t *testing.T) {
	svc, _, _ := newTestService(t, http.NotFoundHandler())

	_, err := svc.StopArrivals(context.Background(), "43")
	require.Error(t, err)
}
