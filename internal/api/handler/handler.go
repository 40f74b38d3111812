// Package handler provides HTTP handlers for all API endpoints.
// Handlers talk to the user store and the CTA prediction gateway directly —
// no service layer.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mfigueroa/linealert/internal/api/respond"
	"github.com/mfigueroa/linealert/internal/cache"
	"github.com/mfigueroa/linealert/internal/config"
	"github.com/mfigueroa/linealert/internal/otp"
	"github.com/mfigueroa/linealert/internal/stops"
	"github.com/mfigueroa/linealert/internal/store"
	"github.com/mfigueroa/linealert/internal/transit"
)

// PredictionSource fetches arrivals for a stop. Satisfied by
// *transit.Client.
type PredictionSource interface {
	Predictions(ctx context.Context, stopID string, kind transit.Kind) ([]transit.Prediction, error)
	AllPredictions(ctx context.Context, stopID string) []transit.Prediction
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	store    store.Store
	stops    *stops.Index
	source   PredictionSource
	otp      *otp.Service
	sessions *cache.Cache[string] // token -> phone number
	cfg      *config.Config
	logger   *slog.Logger
}

// New creates a Handler with shared dependencies.
func New(st store.Store, idx *stops.Index, source PredictionSource, otpSvc *otp.Service, sessions *cache.Cache[string], cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:    st,
		stops:    idx,
		source:   source,
		otp:      otpSvc,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, status, and stop count.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "LineAlert API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
		"stops":   h.stops.Count(),
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies user store connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// userJSON is the wire shape for a user profile.
type userJSON struct {
	PhoneNumber          string          `json:"phone_number"`
	Email                string          `json:"email,omitempty"`
	Carrier              string          `json:"carrier,omitempty"`
	FavoriteLines        []string        `json:"favorite_lines"`
	NotificationSettings json.RawMessage `json:"notification_settings,omitempty"`
	HomeLat              *float64        `json:"home_lat,omitempty"`
	HomeLng              *float64        `json:"home_lng,omitempty"`
}

func toUserJSON(u *store.User) userJSON {
	out := userJSON{
		PhoneNumber:   u.PhoneNumber,
		Email:         u.Email,
		Carrier:       u.Carrier,
		FavoriteLines: u.FavoriteLines,
		HomeLat:       u.HomeLat,
		HomeLng:       u.HomeLng,
	}
	if out.FavoriteLines == nil {
		out.FavoriteLines = []string{}
	}
	if json.Valid([]byte(u.NotificationSettings)) {
		out.NotificationSettings = json.RawMessage(u.NotificationSettings)
	}
	return out
}
