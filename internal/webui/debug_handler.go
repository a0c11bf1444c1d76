// Package webui serves the development-only debug page, an HTML dump of
// whatever the store currently holds.
package webui

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/davecgh/go-spew/spew"

	"sevibus.transitlab.org/internal/store"
)

//go:embed debug_index.html
var templateFS embed.FS

type debugData struct {
	Title string
	Pre   string
}

func writeDebugData(w http.ResponseWriter, logger *slog.Logger, title string, data interface{}) {
	content := spew.Sdump(data)
	w.Header().Set("Content-Type", "text/html")
	tmpl, err := template.ParseFS(templateFS, "debug_index.html")
	if err != nil {
		logger.Error("failed to parse debug template", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := tmpl.Execute(w, debugData{Title: title, Pre: content}); err != nil {
		logger.Error("failed to execute debug template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// DebugHandler returns the handler for the /debug page. The caller decides
// whether to mount it at all; it is never registered in production.
func DebugHandler(st *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dataType := r.URL.Query().Get("dataType")

		var data interface{}
		var title string
		var err error

		switch dataType {
		case "counts":
			data, err = st.TableCounts(r.Context())
			title = "Store - Row Counts"
		case "stops":
			data, err = st.ListStops(r.Context())
			title = "Store - Stops"
		case "lines":
			data, err = st.ListLines(r.Context())
			title = "Store - Lines"
		default:
			data = map[string]string{
				"error": "Please use one of the following: counts, stops, lines.",
			}
			title = "Choose a data type"
		}

		if err != nil {
			logger.Error("failed to load debug data", "dataType", dataType, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		writeDebugData(w, logger, title, data)
	}
}
