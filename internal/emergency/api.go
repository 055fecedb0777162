package emergency

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/echoledger/platform/internal/shared/auth"
	"github.com/echoledger/platform/internal/shared/config"
	"github.com/echoledger/platform/internal/shared/errors"
)

// Handler provides HTTP handlers for the emergency bridge
type Handler struct {
	service *Service
	authCfg config.AuthConfig
}

// NewHandler creates a new emergency handler
func NewHandler(service *Service, authCfg config.AuthConfig) *Handler {
	return &Handler{service: service, authCfg: authCfg}
}

// Routes registers the emergency routes. Check and alert monitoring
// require a hospital token with the emergency scope; the impact summary
// is public.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.authCfg))
		r.Use(auth.RequireScope("emergency"))

		r.Post("/check", h.Check)
		r.Get("/alerts", h.RecentAlerts)
	})

	r.Get("/impact", h.Impact)

	return r
}

// Check handles an emergency directive check from a hospital
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok || caller.Type != auth.CallerTypeHospital {
		writeError(w, errors.Forbidden("emergency checks require a hospital token"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body: "+err.Error()))
		return
	}

	// The hospital in the request must be the hospital the token was
	// issued to
	if req.HospitalID != caller.HospitalID {
		writeError(w, errors.Forbidden("hospital_id does not match token"))
		return
	}

	response, err := h.service.Check(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// RecentAlerts returns the latest served alerts for monitoring
func (h *Handler) RecentAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxRecentAlerts {
			writeError(w, errors.BadRequest("invalid limit"))
			return
		}
		limit = parsed
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": h.service.RecentAlerts(limit),
	})
}

// Impact returns the bridge's service metrics
func (h *Handler) Impact(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Impact())
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
