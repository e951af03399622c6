package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cwbudde/panoview/internal/projector"
)

// writeJSON sends v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// intQuery parses an integer query parameter, returning def when absent.
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

// floatQuery parses a float query parameter, returning def when absent.
func floatQuery(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

// zoomQuery parses the zoom query parameter. Besides a numeric zoom level the
// values "fit" (smallest no-margin zoom) and "horizon" (smallest no-margin
// zoom with centered horizon) are accepted; absent means keeping def.
func zoomQuery(r *http.Request, def float64) (projector.Zoom, error) {
	raw := r.URL.Query().Get("zoom")
	switch raw {
	case "":
		return projector.ExplicitZoom(def), nil
	case "fit":
		return projector.MinNoMarginZoom(), nil
	case "horizon":
		return projector.MinCenteredHorizonZoom(), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return projector.Zoom{}, fmt.Errorf("invalid zoom: %q", raw)
	}
	return projector.ExplicitZoom(v), nil
}
