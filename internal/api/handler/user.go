package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mfigueroa/linealert/internal/api/respond"
	"github.com/mfigueroa/linealert/internal/notify"
	"github.com/mfigueroa/linealert/internal/store"
)

// Me returns the current user's profile.
// @Summary Current user profile
// @Tags user
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} respond.ErrorResponse
// @Router /api/v1/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, toUserJSON(user))
}

type setHomeRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// SetHome stores the user's home coordinates.
// @Summary Set home location
// @Tags user
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body setHomeRequest true "Coordinates"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/me/home [put]
func (h *Handler) SetHome(w http.ResponseWriter, r *http.Request) {
	var req setHomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Lat == nil || req.Lng == nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "lat and lng are required")
		return
	}
	if *req.Lat < -90 || *req.Lat > 90 || *req.Lng < -180 || *req.Lng > 180 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_COORDINATES", "lat/lng out of range")
		return
	}

	phone := phoneFromContext(r.Context())
	if err := h.store.SetHome(r.Context(), phone, *req.Lat, *req.Lng); err != nil {
		h.storeError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"status": "updated"})
}

type setCarrierRequest struct {
	Carrier string `json:"carrier"`
}

// SetCarrier stores the user's mobile carrier.
// @Summary Set carrier
// @Tags user
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body setCarrierRequest true "Carrier identifier"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/me/carrier [put]
func (h *Handler) SetCarrier(w http.ResponseWriter, r *http.Request) {
	var req setCarrierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Carrier == "" {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "carrier is required")
		return
	}
	if !notify.ValidCarrier(req.Carrier) {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_CARRIER", "Unknown carrier")
		return
	}

	phone := phoneFromContext(r.Context())
	if err := h.store.SetCarrier(r.Context(), phone, req.Carrier); err != nil {
		h.storeError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"status": "updated"})
}

type favoriteRequest struct {
	Line string `json:"line"`
}

// AddFavorite adds a line to the user's favorites.
// @Summary Add favorite line
// @Tags user
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body favoriteRequest true "Line identifier"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} respond.ErrorResponse
// @Router /api/v1/me/favorites [post]
func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Line == "" {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "line is required")
		return
	}

	phone := phoneFromContext(r.Context())
	lines, err := h.store.AddFavorite(r.Context(), phone, req.Line)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateFavorite) {
			respond.WriteError(w, http.StatusConflict, "DUPLICATE_FAVORITE", "Line already in favorites")
			return
		}
		h.storeError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"favorite_lines": lines})
}

// RemoveFavorite removes a line from the user's favorites.
// @Summary Remove favorite line
// @Tags user
// @Produce json
// @Security BearerAuth
// @Param line path string true "Line identifier"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/me/favorites/{line} [delete]
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	line := chi.URLParam(r, "line")
	phone := phoneFromContext(r.Context())

	lines, err := h.store.RemoveFavorite(r.Context(), phone, line)
	if err != nil {
		if errors.Is(err, store.ErrFavoriteNotFound) {
			respond.WriteError(w, http.StatusNotFound, "FAVORITE_NOT_FOUND", "Line not in favorites")
			return
		}
		h.storeError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"favorite_lines": lines})
}

// UpdateSettings replaces the user's notification settings document.
// @Summary Update notification settings
// @Tags user
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/me/settings [put]
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Body must be a JSON object")
		return
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Body must be a JSON object")
		return
	}

	phone := phoneFromContext(r.Context())
	if err := h.store.SetNotificationSettings(r.Context(), phone, string(raw)); err != nil {
		h.storeError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"status": "updated"})
}

// currentUser loads the session's user, writing an error response on
// failure.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*store.User, bool) {
	phone := phoneFromContext(r.Context())
	user, err := h.store.UserByPhone(r.Context(), phone)
	if err != nil {
		h.storeError(w, err)
		return nil, false
	}
	return user, true
}

func (h *Handler) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrUserNotFound) {
		respond.WriteError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
		return
	}
	h.logger.Error("store operation failed", "error", err)
	respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Storage operation failed")
}
