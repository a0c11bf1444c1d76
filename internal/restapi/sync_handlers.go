package restapi

import (
	"net/http"
)

// requireAPIKey gates the administrative sync endpoints.
func (api *RestAPI) requireAPIKey(w http.ResponseWriter, r *http.Request) bool {
	if api.RequestHasInvalidAPIKey(r) {
		api.sendUnauthorized(w, r)
		return false
	}
	return true
}

func (api *RestAPI) syncStopsHandler(w http.ResponseWriter, r *http.Request) {
	if !api.requireAPIKey(w, r) {
		return
	}
	count, err := api.Service.SyncStops(r.Context())
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusOK, map[string]int{"stops": count})
}

func (api *RestAPI) syncLinesHandler(w http.ResponseWriter, r *http.Request) {
	if !api.requireAPIKey(w, r) {
		return
	}
	count, err := api.Service.SyncLines(r.Context())
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusOK, map[string]int{"lines": count})
}

func (api *RestAPI) syncMembershipsHandler(w http.ResponseWriter, r *http.Request) {
	if !api.requireAPIKey(w, r) {
		return
	}
	count, err := api.Service.SyncMemberships(r.Context())
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusOK, map[string]int{"memberships": count})
}

func (api *RestAPI) syncAddressesHandler(w http.ResponseWriter, r *http.Request) {
	if !api.requireAPIKey(w, r) {
		return
	}
	stats, err := api.Service.SyncAddresses(r.Context())
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusOK, stats)
}

func (api *RestAPI) syncAllHandler(w http.ResponseWriter, r *http.Request) {
	if !api.requireAPIKey(w, r) {
		return
	}
	result, err := api.Service.SyncAll(r.Context())
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusOK, result)
}
