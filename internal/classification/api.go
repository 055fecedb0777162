package classification

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/echoledger/platform/internal/shared/errors"
	"github.com/echoledger/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the classification module
type Handler struct {
	service *Service
	lexicon *Lexicon
}

// NewHandler creates a new classification handler
func NewHandler(service *Service, lexicon *Lexicon) *Handler {
	return &Handler{service: service, lexicon: lexicon}
}

// Routes registers the classification routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/classify", h.Classify)
	r.Get("/stats", h.GetStats)
	r.Get("/directive-types", h.GetDirectiveTypes)
	r.Get("/terminology", h.GetTerminology)

	return r
}

// ClassifyRequest is the classification input
type ClassifyRequest struct {
	PatientID     string `json:"patient_id"`
	DirectiveText string `json:"directive_text"`
}

// Classify handles directive classification requests
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body: "+err.Error()))
		return
	}

	patient, err := types.NewPatientRef(req.PatientID)
	if err != nil {
		writeError(w, errors.BadRequest("patient_id: "+err.Error()))
		return
	}
	// Empty text is a valid zero-confidence input and flows through the
	// pipeline, which always escalates it
	result, err := h.service.Process(r.Context(), patient, req.DirectiveText)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetStats returns a snapshot of the running processing statistics
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Stats())
}

// GetDirectiveTypes returns the supported directive types
func (h *Handler) GetDirectiveTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"directive_types": h.lexicon.DirectiveTypes(),
	})
}

// GetTerminology returns the clinical terminology taxonomy categories
func (h *Handler) GetTerminology(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": h.lexicon.TerminologyCategories(),
	})
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
