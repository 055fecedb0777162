package directive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/echoledger/platform/internal/classification"
	"github.com/echoledger/platform/internal/shared/errors"
	"github.com/echoledger/platform/internal/shared/events"
	"github.com/echoledger/platform/internal/shared/types"
)

func testPatient(t *testing.T) types.PatientRef {
	t.Helper()
	patient, err := types.NewPatientRef("patient-dnr-001")
	if err != nil {
		t.Fatalf("Failed to create patient ref: %v", err)
	}
	return patient
}

func testAnalysis() (classification.ExtractedDirective, classification.DirectiveAnalysis) {
	extracted := classification.ExtractedDirective{
		DirectiveType: classification.DirectiveDNR,
		Conditions:    []string{"Comfort care preference"},
		Confidence:    0.95,
		MatchedText:   "do not resuscitate, comfort care only",
	}
	analysis := classification.DirectiveAnalysis{
		ConfidenceScore:     0.95,
		ExtractedDirectives: []classification.ExtractedDirective{extracted},
		LegalValidityScore:  0.85,
		ProcessingTier:      classification.TierLocal,
	}
	return extracted, analysis
}

func TestNewDirective(t *testing.T) {
	patient := testPatient(t)
	extracted, analysis := testAnalysis()

	directive, err := NewDirective(patient, "do not resuscitate", extracted, analysis, 10*365*24*time.Hour)
	if err != nil {
		t.Fatalf("NewDirective failed: %v", err)
	}

	if directive.ID.IsZero() {
		t.Error("Expected non-zero directive ID")
	}
	if directive.PatientHash != patient.Hash() {
		t.Error("Expected patient hash, not raw identifier")
	}
	if directive.Type != classification.DirectiveDNR {
		t.Errorf("Expected 'DNR', got '%s'", directive.Type)
	}
	if directive.Status != StatusActive {
		t.Errorf("Expected 'active', got '%s'", directive.Status)
	}
	if !directive.Active() {
		t.Error("Expected new directive to be active")
	}
}

func TestNewDirectiveRetentionCap(t *testing.T) {
	patient := testPatient(t)
	extracted, analysis := testAnalysis()

	tests := []struct {
		name      string
		retention time.Duration
		wantErr   bool
	}{
		{"at the 50 year cap", MaxRetention, false},
		{"above the cap", MaxRetention + time.Hour, true},
		{"zero", 0, true},
		{"negative", -time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDirective(patient, "do not resuscitate", extracted, analysis, tt.retention)
			if tt.wantErr && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected success, got %v", err)
			}
		})
	}
}

func TestMemoryRepositorySupersedesOnCreate(t *testing.T) {
	repo := NewMemoryRepository()
	patient := testPatient(t)
	extracted, analysis := testAnalysis()
	ctx := context.Background()

	first, err := NewDirective(patient, "do not resuscitate", extracted, analysis, MaxRetention)
	if err != nil {
		t.Fatalf("NewDirective failed: %v", err)
	}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	second, err := NewDirective(patient, "updated: do not resuscitate, comfort care only", extracted, analysis, MaxRetention)
	if err != nil {
		t.Fatalf("NewDirective failed: %v", err)
	}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	stored, err := repo.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != StatusSuperseded {
		t.Errorf("Expected 'superseded', got '%s'", stored.Status)
	}

	active, err := repo.FindActiveByType(ctx, patient.Hash(), classification.DirectiveDNR)
	if err != nil {
		t.Fatalf("FindActiveByType failed: %v", err)
	}
	if active.ID != second.ID {
		t.Error("Expected the newer directive to be the active one")
	}
}

func TestMemoryRepositoryRevoke(t *testing.T) {
	repo := NewMemoryRepository()
	patient := testPatient(t)
	extracted, analysis := testAnalysis()
	ctx := context.Background()

	directive, err := NewDirective(patient, "do not resuscitate", extracted, analysis, MaxRetention)
	if err != nil {
		t.Fatalf("NewDirective failed: %v", err)
	}
	if err := repo.Create(ctx, directive); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.UpdateStatus(ctx, directive.ID, StatusRevoked); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	if _, err := repo.FindActiveByType(ctx, patient.Hash(), classification.DirectiveDNR); err == nil {
		t.Error("Expected no active directive after revocation")
	}
}

func TestMemoryRepositoryReviewQueue(t *testing.T) {
	repo := NewMemoryRepository()
	patient := testPatient(t)
	extracted, analysis := testAnalysis()
	ctx := context.Background()

	analysis.RequiresHumanReview = true
	flagged, err := NewDirective(patient, "ambiguous directive", extracted, analysis, MaxRetention)
	if err != nil {
		t.Fatalf("NewDirective failed: %v", err)
	}
	if err := repo.Create(ctx, flagged); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	queue, err := repo.ListForReview(ctx, 10)
	if err != nil {
		t.Fatalf("ListForReview failed: %v", err)
	}
	if len(queue) != 1 {
		t.Fatalf("Expected 1 directive in review queue, got %d", len(queue))
	}
	if queue[0].ID != flagged.ID {
		t.Error("Expected the flagged directive in the review queue")
	}
}

func TestGetConsentStatus(t *testing.T) {
	repo := NewMemoryRepository()
	patient := testPatient(t)
	ctx := context.Background()

	extracted := classification.ExtractedDirective{
		DirectiveType: classification.DirectiveOrganDonation,
		Conditions:    []string{"Organs: all organs"},
		Confidence:    0.90,
		MatchedText:   "i want to donate my organs",
	}
	analysis := classification.DirectiveAnalysis{
		ConfidenceScore:     0.90,
		ExtractedDirectives: []classification.ExtractedDirective{extracted},
		ProcessingTier:      classification.TierLocal,
	}
	directive, err := NewDirective(patient, "i want to donate my organs", extracted, analysis, MaxRetention)
	if err != nil {
		t.Fatalf("NewDirective failed: %v", err)
	}
	if err := repo.Create(ctx, directive); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	handler := NewHandler(nil, repo, events.NoopBus{}, nil)
	router := handler.Routes()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/patients/patient-dnr-001/consent", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var resp struct {
		PatientHash string                   `json:"patient_hash"`
		Consent     map[string]ConsentStatus `json:"consent"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.PatientHash != patient.Hash() {
		t.Error("Expected hashed patient reference in response")
	}
	organ := resp.Consent["organ_donation"]
	if !organ.Granted {
		t.Error("Expected organ donation consent to be granted")
	}
	if organ.DirectiveID == nil || *organ.DirectiveID != directive.ID {
		t.Error("Expected consent to reference the active directive")
	}
	if resp.Consent["data_sharing"].Granted {
		t.Error("Expected data sharing consent to be absent")
	}

	if err := repo.UpdateStatus(ctx, directive.ID, StatusRevoked); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/patients/patient-dnr-001/consent", nil))
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Consent["organ_donation"].Granted {
		t.Error("Expected consent withdrawn after revocation")
	}
}

type unavailableRepository struct{}

func (unavailableRepository) Create(ctx context.Context, d *Directive) error {
	return errors.Internal(fmt.Errorf("connection refused"))
}

func (unavailableRepository) GetByID(ctx context.Context, id types.ID) (*Directive, error) {
	return nil, errors.Internal(fmt.Errorf("connection refused"))
}

func (unavailableRepository) ListByPatient(ctx context.Context, patientHash string) ([]*Directive, error) {
	return nil, errors.Internal(fmt.Errorf("connection refused"))
}

func (unavailableRepository) FindActiveByType(ctx context.Context, patientHash string, directiveType classification.DirectiveType) (*Directive, error) {
	return nil, errors.Internal(fmt.Errorf("connection refused"))
}

func (unavailableRepository) UpdateStatus(ctx context.Context, id types.ID, status Status) error {
	return errors.Internal(fmt.Errorf("connection refused"))
}

func (unavailableRepository) ListForReview(ctx context.Context, limit int) ([]*Directive, error) {
	return nil, errors.Internal(fmt.Errorf("connection refused"))
}

func TestGetConsentStatusRegistryOutage(t *testing.T) {
	handler := NewHandler(nil, unavailableRepository{}, events.NoopBus{}, nil)
	router := handler.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/patients/patient-dnr-001/consent", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", rec.Code)
	}

	var resp struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Code != "EXTERNAL_UNAVAILABLE" {
		t.Errorf("Expected 'EXTERNAL_UNAVAILABLE', got '%s'", resp.Code)
	}
}

func TestMemoryRepositoryUnknownID(t *testing.T) {
	repo := NewMemoryRepository()

	if _, err := repo.GetByID(context.Background(), types.NewID()); err == nil {
		t.Error("Expected error for unknown directive ID")
	}
	if err := repo.UpdateStatus(context.Background(), types.NewID(), StatusRevoked); err == nil {
		t.Error("Expected error for unknown directive ID")
	}
}
