package executor

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/echoledger/platform/internal/shared/errors"
	"github.com/echoledger/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the executor module
type Handler struct {
	service  *Service
	networks []string
}

// NewHandler creates a new executor handler
func NewHandler(service *Service, networks []string) *Handler {
	return &Handler{service: service, networks: networks}
}

// Routes registers the executor routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/executions", h.Execute)
	r.Get("/executions", h.GetHistory)
	r.Get("/executions/{executionID}", h.GetExecution)
	r.Get("/networks", h.GetNetworks)
	r.Get("/institutions", h.GetInstitutions)

	return r
}

// ExecuteRequest triggers directive execution for a deceased patient
type ExecuteRequest struct {
	PatientID string `json:"patient_id"`
}

// Execute runs the patient's consented directives
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body: "+err.Error()))
		return
	}

	patient, err := types.NewPatientRef(req.PatientID)
	if err != nil {
		writeError(w, errors.BadRequest("patient_id: "+err.Error()))
		return
	}

	result, err := h.service.Execute(r.Context(), patient)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// GetExecution returns one execution by ID
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "executionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid execution ID"))
		return
	}

	result, err := h.service.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetHistory returns all recorded executions
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	results := h.service.History()
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": results,
		"count":      len(results),
	})
}

// GetNetworks returns the supported organ coordination networks
func (h *Handler) GetNetworks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"networks": h.networks})
}

// GetInstitutions returns the consented research institutions
func (h *Handler) GetInstitutions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"institutions": h.service.institutions})
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
