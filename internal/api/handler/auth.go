package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mfigueroa/linealert/internal/api/respond"
	"github.com/mfigueroa/linealert/internal/notify"
)

type ctxKey int

const userPhoneKey ctxKey = 0

// phoneFromContext returns the verified phone number set by RequireSession.
func phoneFromContext(ctx context.Context) string {
	phone, _ := ctx.Value(userPhoneKey).(string)
	return phone
}

// RequireSession authenticates requests by bearer token and stores the
// session's phone number in the request context.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			respond.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
			return
		}
		phone, ok := h.sessions.Get(token)
		if !ok {
			respond.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Session expired or unknown")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userPhoneKey, phone)))
	})
}

type sendCodeRequest struct {
	PhoneNumber string `json:"phone_number"`
	Carrier     string `json:"carrier"`
}

// SendCode delivers a verification code to a phone number.
// @Summary Send verification code
// @Description Generates a one-time code and delivers it over SMS.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body sendCodeRequest true "Phone and carrier"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/auth/send-code [post]
func (h *Handler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PhoneNumber == "" {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "phone_number is required")
		return
	}
	if req.Carrier != "" && !notify.ValidCarrier(req.Carrier) {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_CARRIER", "Unknown carrier")
		return
	}

	if err := h.otp.Send(r.Context(), req.PhoneNumber, req.Carrier); err != nil {
		h.logger.Error("OTP delivery failed", "phone", req.PhoneNumber, "error", err)
		respond.WriteError(w, http.StatusBadGateway, "DELIVERY_FAILED", "Could not deliver verification code")
		return
	}

	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"status": "sent"})
}

type verifyRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
	Carrier     string `json:"carrier"`
}

// VerifyCode checks a one-time code and opens a session. First-time
// numbers are registered on success.
// @Summary Verify code and create session
// @Description Verifies the code, registers the user if new, returns a session token.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body verifyRequest true "Phone and code"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} respond.ErrorResponse
// @Router /api/v1/auth/verify [post]
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PhoneNumber == "" || req.Code == "" {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "phone_number and code are required")
		return
	}

	if !h.otp.Verify(req.PhoneNumber, req.Code) {
		respond.WriteError(w, http.StatusUnauthorized, "INVALID_CODE", "Code is wrong or expired")
		return
	}

	user, err := h.store.EnsureUser(r.Context(), req.PhoneNumber)
	if err != nil {
		h.logger.Error("user registration failed", "phone", req.PhoneNumber, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Could not load user")
		return
	}
	if req.Carrier != "" && notify.ValidCarrier(req.Carrier) && user.Carrier != req.Carrier {
		if err := h.store.SetCarrier(r.Context(), req.PhoneNumber, req.Carrier); err != nil {
			h.logger.Warn("carrier update failed", "phone", req.PhoneNumber, "error", err)
		} else {
			user.Carrier = req.Carrier
		}
	}

	token := uuid.NewString()
	h.sessions.Set(token, req.PhoneNumber)

	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  toUserJSON(user),
	})
}

// Logout invalidates the current session token.
// @Summary Log out
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token != "" {
		h.sessions.Delete(token)
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"status": "logged_out"})
}
