package restapi

import (
	"net/http"

	"sevibus.transitlab.org/internal/models"
)

// nearbyHandler is the composite one-call endpoint for watch and widget
// clients: nearby stops plus their filtered arrival boards.
func (api *RestAPI) nearbyHandler(w http.ResponseWriter, r *http.Request) {
	query, format, err := parseCompositeQuery(r)
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := api.Service.NearbyWithArrivals(r.Context(), query)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	if format == "geojson" {
		api.sendJSON(w, r, http.StatusOK, models.NearbyToGeoJSON(resp))
		return
	}
	api.sendJSON(w, r, http.StatusOK, resp)
}

// addressHandler reverse-geocodes arbitrary coordinates through the
// long-lived address cache.
func (api *RestAPI) addressHandler(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := parseLocation(r)
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	addr, err := api.Service.AddressForCoords(r.Context(), lat, lon)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusOK, addr)
}
