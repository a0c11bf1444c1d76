package restapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"sevibus.transitlab.org/internal/models"
	"sevibus.transitlab.org/internal/transit"
)

// paramError marks a query-parameter validation failure, mapped to 400.
type paramError struct{ msg string }

func (e *paramError) Error() string { return e.msg }

func badParam(format string, args ...any) error {
	return &paramError{msg: fmt.Sprintf(format, args...)}
}

// parseLocation extracts and range-checks the mandatory lat/lon pair.
func parseLocation(r *http.Request) (lat, lon float64, err error) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")
	if latStr == "" || lonStr == "" {
		return 0, 0, badParam("lat and lon are required")
	}
	if lat, err = strconv.ParseFloat(latStr, 64); err != nil {
		return 0, 0, badParam("invalid lat")
	}
	if lon, err = strconv.ParseFloat(lonStr, 64); err != nil {
		return 0, 0, badParam("invalid lon")
	}
	if lat < -90 || lat > 90 {
		return 0, 0, badParam("lat must be between -90 and 90")
	}
	if lon < -180 || lon > 180 {
		return 0, 0, badParam("lon must be between -180 and 180")
	}
	return lat, lon, nil
}

// parseRadius reads the radius parameter, clamped to [50, 2000] meters.
func parseRadius(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("radius")
	if raw == "" {
		return fallback, nil
	}
	radius, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badParam("invalid radius")
	}
	return min(max(radius, 50), 2000), nil
}

// parseBearing reads the optional bearing and its tolerance.
func parseBearing(r *http.Request) (bearing *float64, tolerance float64, err error) {
	tolerance = 60
	if raw := r.URL.Query().Get("bearing"); raw != "" {
		b, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, 0, badParam("invalid bearing")
		}
		if b < 0 || b > 360 {
			return nil, 0, badParam("bearing must be between 0 and 360")
		}
		bearing = &b
	}
	if raw := r.URL.Query().Get("bearingTolerance"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, 0, badParam("invalid bearingTolerance")
		}
		if t < 0 || t > 180 {
			return nil, 0, badParam("bearingTolerance must be between 0 and 180")
		}
		tolerance = t
	}
	return bearing, tolerance, nil
}

// parseNearbyQuery parses the parameters shared by both proximity endpoints.
func parseNearbyQuery(r *http.Request, defaultRadius int) (transit.NearbyQuery, float64, error) {
	lat, lon, err := parseLocation(r)
	if err != nil {
		return transit.NearbyQuery{}, 0, err
	}
	radius, err := parseRadius(r, defaultRadius)
	if err != nil {
		return transit.NearbyQuery{}, 0, err
	}
	bearing, tolerance, err := parseBearing(r)
	if err != nil {
		return transit.NearbyQuery{}, 0, err
	}
	return transit.NearbyQuery{
		Lat: lat, Lon: lon, RadiusMeters: radius, Bearing: bearing,
	}, tolerance, nil
}

// parseCompositeQuery parses the full composite endpoint parameter set.
func parseCompositeQuery(r *http.Request) (transit.CompositeQuery, string, error) {
	nearby, tolerance, err := parseNearbyQuery(r, 300)
	if err != nil {
		return transit.CompositeQuery{}, "", err
	}

	q := transit.CompositeQuery{
		NearbyQuery:      nearby,
		MaxStops:         3,
		BearingTolerance: tolerance,
	}
	query := r.URL.Query()

	if raw := query.Get("maxStops"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 10 {
			return transit.CompositeQuery{}, "", badParam("maxStops must be between 1 and 10")
		}
		q.MaxStops = n
	}
	if raw := query.Get("maxMinutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return transit.CompositeQuery{}, "", badParam("maxMinutes must be a non-negative integer")
		}
		q.MaxMinutes = &n
	}
	if raw := query.Get("lines"); raw != "" {
		for _, line := range strings.Split(strings.ToUpper(raw), ",") {
			if line = strings.TrimSpace(line); line != "" {
				q.Lines = append(q.Lines, line)
			}
		}
	}
	if raw := query.Get("direction"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || !models.Direction(n).Valid() {
			return transit.CompositeQuery{}, "", badParam("direction must be 1 or 2")
		}
		d := models.Direction(n)
		q.Direction = &d
	}
	q.IncludeMapURL = query.Get("includeMapURL") == "true"

	format := query.Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "geojson" {
		return transit.CompositeQuery{}, "", badParam("format must be json or geojson")
	}
	return q, format, nil
}
