package restapi

import (
	"net/http"

	"sevibus.transitlab.org/internal/models"
)

func (api *RestAPI) linesHandler(w http.ResponseWriter, r *http.Request) {
	lines, err := api.Service.Lines(r.Context())
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, http.StatusOK, lines)
}

func (api *RestAPI) lineStopsHandler(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	stops, err := api.Service.StopsForLine(r.Context(), number)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	if stops == nil {
		stops = []models.LineStop{}
	}
	api.sendJSON(w, r, http.StatusOK, stops)
}
