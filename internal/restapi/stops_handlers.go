package restapi

import (
	"errors"
	"net/http"

	"sevibus.transitlab.org/internal/models"
	"sevibus.transitlab.org/internal/store"
	"sevibus.transitlab.org/internal/upstream"
)

func (api *RestAPI) stopsHandler(w http.ResponseWriter, r *http.Request) {
	stops, err := api.Service.Stops(r.Context())
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusOK, stops)
}

func (api *RestAPI) stopHandler(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	stop, err := api.Service.Stop(r.Context(), code)
	if errors.Is(err, store.ErrNotFound) {
		api.sendNotFound(w, r, "stop not found")
		return
	}
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusOK, stop)
}

// stopArrivalsHandler serves the live arrival board. Upstream unavailability
// is reported as a retryable condition rather than a generic failure.
func (api *RestAPI) stopArrivalsHandler(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	snapshot, err := api.Service.StopArrivals(r.Context(), code)
	if err != nil {
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) {
			api.sendError(w, r, http.StatusServiceUnavailable,
				"arrival data unavailable, try again shortly")
			return
		}
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusOK, snapshot)
}

func (api *RestAPI) stopLinesHandler(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	lines, err := api.Service.LinesForStop(r.Context(), code)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	api.sendJSON(w, r, http.StatusOK, lines)
}

// stopsNearbyHandler is the proximity search without arrival boards, for map
// display.
func (api *RestAPI) stopsNearbyHandler(w http.ResponseWriter, r *http.Request) {
	query, _, err := parseNearbyQuery(r, 500)
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	stops, err := api.Service.FindNearby(r.Context(), query)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	if stops == nil {
		stops = []models.NearbyStop{}
	}
	api.sendJSON(w, r, http.StatusOK, stops)
}
