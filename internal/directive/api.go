package directive

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/echoledger/platform/internal/classification"
	"github.com/echoledger/platform/internal/ehr"
	"github.com/echoledger/platform/internal/shared/errors"
	"github.com/echoledger/platform/internal/shared/events"
	"github.com/echoledger/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the directive registry
type Handler struct {
	classifier *classification.Service
	repo       Repository
	bus        events.EventBus
	records    ehr.Adapter
}

// NewHandler creates a new directive handler. Status changes are
// mirrored into the connected hospital record through records.
func NewHandler(classifier *classification.Service, repo Repository, bus events.EventBus, records ehr.Adapter) *Handler {
	if records == nil {
		records = ehr.NoopAdapter{}
	}
	return &Handler{classifier: classifier, repo: repo, bus: bus, records: records}
}

// Routes registers the directive registry routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/directives", func(r chi.Router) {
		r.Post("/", h.RegisterDirective)
		r.Get("/review-queue", h.GetReviewQueue)

		r.Route("/{directiveID}", func(r chi.Router) {
			r.Get("/", h.GetDirective)
			r.Post("/revoke", h.RevokeDirective)
		})
	})

	r.Get("/patients/{patientID}/directives", h.ListPatientDirectives)
	r.Get("/patients/{patientID}/consent", h.GetConsentStatus)

	return r
}

// RegisterRequest is the directive registration input
type RegisterRequest struct {
	PatientID     string `json:"patient_id"`
	DirectiveText string `json:"directive_text"`
	// RetentionYears defaults to the 50-year maximum when zero
	RetentionYears int `json:"retention_years,omitempty"`
}

// RegisterResponse returns the analysis alongside the persisted records
type RegisterResponse struct {
	Analysis   classification.DirectiveAnalysis `json:"analysis"`
	Directives []*Directive                     `json:"directives"`
}

// RegisterDirective classifies free text and persists every accepted
// directive, superseding previous active directives of the same type
func (h *Handler) RegisterDirective(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body: "+err.Error()))
		return
	}

	patient, err := types.NewPatientRef(req.PatientID)
	if err != nil {
		writeError(w, errors.BadRequest("patient_id: "+err.Error()))
		return
	}
	if req.DirectiveText == "" {
		writeError(w, errors.BadRequest("directive_text is required"))
		return
	}

	retention := MaxRetention
	if req.RetentionYears > 0 {
		retention = time.Duration(req.RetentionYears) * 365 * 24 * time.Hour
	}

	analysis, err := h.classifier.Process(r.Context(), patient, req.DirectiveText)
	if err != nil {
		writeError(w, err)
		return
	}

	registered := make([]*Directive, 0, len(analysis.ExtractedDirectives))
	for _, extracted := range analysis.ExtractedDirectives {
		record, err := NewDirective(patient, req.DirectiveText, extracted, analysis, retention)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := h.repo.Create(r.Context(), record); err != nil {
			writeError(w, err)
			return
		}
		registered = append(registered, record)
		h.mirror(r, record)

		h.publish(r, events.TypeDirectiveRegistered, patient, map[string]any{
			"directive_id":   record.ID,
			"directive_type": record.Type,
			"confidence":     record.Confidence,
		})
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Analysis:   analysis,
		Directives: registered,
	})
}

// GetDirective retrieves one directive by ID
func (h *Handler) GetDirective(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "directiveID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid directive ID"))
		return
	}

	directive, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, directive)
}

// RevokeDirective marks a directive as revoked
func (h *Handler) RevokeDirective(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "directiveID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid directive ID"))
		return
	}

	directive, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if directive.Status == StatusRevoked {
		writeError(w, errors.Conflict("directive already revoked"))
		return
	}

	if err := h.repo.UpdateStatus(r.Context(), id, StatusRevoked); err != nil {
		writeError(w, err)
		return
	}
	directive.Status = StatusRevoked
	h.mirror(r, directive)

	event := events.NewEvent(events.TypeDirectiveRevoked, "directive", map[string]any{
		"directive_id":   directive.ID,
		"directive_type": directive.Type,
	}).WithActor("patient", directive.PatientHash, "")
	if err := h.bus.Publish(r.Context(), event); err != nil {
		log.Printf("Failed to publish revocation event: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(StatusRevoked)})
}

// ListPatientDirectives returns all directives for a patient
func (h *Handler) ListPatientDirectives(w http.ResponseWriter, r *http.Request) {
	patient, err := types.NewPatientRef(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	directives, err := h.repo.ListByPatient(r.Context(), patient.Hash())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"directives": directives,
		"count":      len(directives),
	})
}

// ConsentStatus summarizes a patient's active consent directives
type ConsentStatus struct {
	Granted        bool       `json:"granted"`
	DirectiveID    *types.ID  `json:"directive_id,omitempty"`
	Confidence     float64    `json:"confidence,omitempty"`
	Conditions     []string   `json:"conditions,omitempty"`
	RetentionUntil *time.Time `json:"retention_until,omitempty"`
}

// GetConsentStatus reports the patient's current organ donation and
// data sharing consent, derived from active directives only
func (h *Handler) GetConsentStatus(w http.ResponseWriter, r *http.Request) {
	patient, err := types.NewPatientRef(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	consent := make(map[string]ConsentStatus, 2)
	for name, directiveType := range map[string]classification.DirectiveType{
		"organ_donation": classification.DirectiveOrganDonation,
		"data_sharing":   classification.DirectiveDataConsent,
	} {
		status, err := h.consentFor(r, patient.Hash(), directiveType)
		if err != nil {
			writeError(w, err)
			return
		}
		consent[name] = status
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"patient_hash": patient.Hash(),
		"consent":      consent,
	})
}

// consentFor reports absent consent only on an authoritative not-found
// from the registry; registry failures are surfaced to the caller
func (h *Handler) consentFor(r *http.Request, patientHash string, directiveType classification.DirectiveType) (ConsentStatus, error) {
	found, err := h.repo.FindActiveByType(r.Context(), patientHash, directiveType)
	if err != nil {
		if errors.IsNotFound(err) {
			return ConsentStatus{Granted: false}, nil
		}
		return ConsentStatus{}, errors.ExternalUnavailable("directive registry", err)
	}
	return ConsentStatus{
		Granted:        true,
		DirectiveID:    &found.ID,
		Confidence:     found.Confidence,
		Conditions:     found.Conditions,
		RetentionUntil: &found.RetentionUntil,
	}, nil
}

// GetReviewQueue returns directives awaiting human review
func (h *Handler) GetReviewQueue(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			writeError(w, errors.BadRequest("limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}

	directives, err := h.repo.ListForReview(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"directives": directives,
		"count":      len(directives),
	})
}

// mirror reflects a status change into the hospital record; failures
// are logged rather than surfaced, the registry stays authoritative
func (h *Handler) mirror(r *http.Request, record *Directive) {
	update := ehr.DirectiveStatusUpdate{
		DirectiveType: string(record.Type),
		Status:        string(record.Status),
		Reference:     record.ID.String(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := h.records.PushDirectiveStatus(r.Context(), record.PatientHash, update); err != nil {
		log.Printf("Failed to mirror directive status to %s: %v", h.records.SourceSystem(), err)
	}
}

func (h *Handler) publish(r *http.Request, eventType string, patient types.PatientRef, data map[string]any) {
	event := events.NewEvent(eventType, "directive", data).
		WithActor("patient", patient.Hash(), "")
	if err := h.bus.Publish(r.Context(), event); err != nil {
		log.Printf("Failed to publish %s event: %v", eventType, err)
	}
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
