package handler

import (
	"net/http"
	"strconv"

	"github.com/mfigueroa/linealert/internal/api/respond"
	"github.com/mfigueroa/linealert/internal/transit"
)

// Arrivals returns upcoming arrivals at the stop nearest the user's home.
// @Summary Arrivals near home
// @Description Resolves the stop nearest the user's home and returns live predictions.
// @Tags arrivals
// @Produce json
// @Security BearerAuth
// @Param type query string false "bus, train, or all" default(all)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /api/v1/arrivals [get]
func (h *Handler) Arrivals(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if !user.HasHome() {
		respond.WriteError(w, http.StatusConflict, "NO_HOME", "Set a home location first")
		return
	}

	stop, distance, err := h.stops.NearestDistance(*user.HomeLat, *user.HomeLng)
	if err != nil {
		h.logger.Error("nearest stop lookup failed", "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "STOP_LOOKUP_FAILED", "No stops available")
		return
	}

	var predictions []transit.Prediction
	switch kind := r.URL.Query().Get("type"); kind {
	case "", "all":
		predictions = h.source.AllPredictions(r.Context(), stop.ID)
	case "bus", "train":
		predictions, err = h.source.Predictions(r.Context(), stop.ID, transit.Kind(kind))
		if err != nil {
			h.logger.Warn("prediction fetch failed", "kind", kind, "error", err)
			respond.WriteError(w, http.StatusBadGateway, "GATEWAY_UNCONFIGURED", "Prediction service is not configured")
			return
		}
	default:
		respond.WriteError(w, http.StatusBadRequest, "INVALID_TYPE", "type must be bus, train, or all")
		return
	}
	if predictions == nil {
		predictions = []transit.Prediction{}
	}

	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"stop": map[string]interface{}{
			"id":             stop.ID,
			"name":           stop.Name,
			"lat":            stop.Lat,
			"lng":            stop.Lng,
			"distance_miles": distance,
		},
		"predictions": predictions,
	})
}

// NearestStop resolves the stop nearest to arbitrary coordinates.
// @Summary Nearest stop
// @Tags arrivals
// @Produce json
// @Param lat query number true "Latitude"
// @Param lng query number true "Longitude"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/stops/nearest [get]
func (h *Handler) NearestStop(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "lat and lng query parameters are required")
		return
	}

	stop, distance, err := h.stops.NearestDistance(lat, lng)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STOP_LOOKUP_FAILED", "No stops available")
		return
	}

	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"id":             stop.ID,
		"name":           stop.Name,
		"lat":            stop.Lat,
		"lng":            stop.Lng,
		"distance_miles": distance,
	})
}
