package restapi

import (
	"net/http"

	"sevibus.transitlab.org/internal/logging"
)

// HealthResponse represents the JSON response from the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (api *RestAPI) rootHandler(w http.ResponseWriter, r *http.Request) {
	api.sendJSON(w, r, http.StatusOK, map[string]string{
		"message": "sevibus API",
		"version": "1.0.0",
	})
}

// healthHandler verifies store reachability for load balancers and Docker
// health checks.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	if api.Store == nil {
		api.sendJSON(w, r, http.StatusServiceUnavailable, HealthResponse{
			Status: "unavailable",
			Detail: "store not initialized",
		})
		return
	}

	if err := api.Store.Ping(r.Context()); err != nil {
		logging.LogError(api.Logger, "health check ping failed", err)
		api.sendJSON(w, r, http.StatusServiceUnavailable, HealthResponse{
			Status: "unavailable",
			Detail: "database connection failed",
		})
		return
	}

	api.sendJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}
