package emergency

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/echoledger/platform/internal/classification"
	"github.com/echoledger/platform/internal/directive"
	"github.com/echoledger/platform/internal/shared/auth"
	"github.com/echoledger/platform/internal/shared/config"
	"github.com/echoledger/platform/internal/shared/errors"
	"github.com/echoledger/platform/internal/shared/events"
	"github.com/echoledger/platform/internal/shared/types"
)

type recordingAlertSender struct {
	sent []AlertRecord
}

func (s *recordingAlertSender) Send(ctx context.Context, alert AlertRecord) error {
	s.sent = append(s.sent, alert)
	return nil
}

func seedDNR(t *testing.T, repo directive.Repository, patientID string, confidence float64) types.PatientRef {
	t.Helper()

	patient, err := types.NewPatientRef(patientID)
	if err != nil {
		t.Fatalf("Failed to create patient ref: %v", err)
	}

	extracted := classification.ExtractedDirective{
		DirectiveType: classification.DirectiveDNR,
		Conditions:    []string{"No resuscitation", "Comfort care only"},
		Confidence:    confidence,
	}
	analysis := classification.DirectiveAnalysis{
		ConfidenceScore:     confidence,
		ExtractedDirectives: []classification.ExtractedDirective{extracted},
		LegalValidityScore:  0.92,
		ProcessingTier:      classification.TierLocal,
	}

	record, err := directive.NewDirective(patient, "Do not resuscitate per patient's wishes", extracted, analysis, directive.MaxRetention)
	if err != nil {
		t.Fatalf("NewDirective failed: %v", err)
	}
	if err := repo.Create(context.Background(), record); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return patient
}

func TestCheckServesDNRDirective(t *testing.T) {
	repo := directive.NewMemoryRepository()
	alerts := &recordingAlertSender{}
	service := NewService(repo, alerts, events.NoopBus{})

	seedDNR(t, repo, "patient-em-001", 0.94)

	response, err := service.Check(context.Background(), Request{
		PatientID:  "patient-em-001",
		HospitalID: "MAYO-01",
		Situation:  "trauma",
	})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if !response.ActionRequired {
		t.Error("Expected action required")
	}
	if response.DirectiveType != "DNR" {
		t.Errorf("Expected 'DNR', got '%s'", response.DirectiveType)
	}
	if math.Abs(response.ConfidenceScore-0.94) > 1e-9 {
		t.Errorf("Expected unadjusted confidence 0.94, got %f", response.ConfidenceScore)
	}
	if len(alerts.sent) != 1 {
		t.Fatalf("Expected 1 alert sent, got %d", len(alerts.sent))
	}
	if alerts.sent[0].HospitalID != "MAYO-01" {
		t.Errorf("Expected 'MAYO-01', got '%s'", alerts.sent[0].HospitalID)
	}
}

func TestCheckConfidenceAdjustments(t *testing.T) {
	tests := []struct {
		name      string
		situation string
		vitals    string
		expected  float64
	}{
		{"cardiac arrest boosts DNR", "cardiac_arrest", "", 0.95},
		{"respiratory failure boosts DNR", "respiratory_failure", "", 0.93},
		{"unrelated situation", "trauma", "", 0.90},
		{"flatline pulse", "trauma", `{"pulse": 0}`, 0.92},
		{"flatline bp", "trauma", `{"bp": "0/0"}`, 0.92},
		{"cardiac arrest with flatline", "cardiac_arrest", `{"pulse": 0}`, 0.97},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := directive.NewMemoryRepository()
			service := NewService(repo, &recordingAlertSender{}, events.NoopBus{})
			seedDNR(t, repo, "patient-em-002", 0.90)

			response, err := service.Check(context.Background(), Request{
				PatientID:  "patient-em-002",
				HospitalID: "MAYO-01",
				Situation:  tt.situation,
				Vitals:     tt.vitals,
			})
			if err != nil {
				t.Fatalf("Check failed: %v", err)
			}
			if math.Abs(response.ConfidenceScore-tt.expected) > 1e-9 {
				t.Errorf("Expected %.2f, got %.2f", tt.expected, response.ConfidenceScore)
			}
		})
	}
}

func TestCheckConfidenceCappedAtOne(t *testing.T) {
	repo := directive.NewMemoryRepository()
	service := NewService(repo, &recordingAlertSender{}, events.NoopBus{})
	seedDNR(t, repo, "patient-em-003", 0.99)

	response, err := service.Check(context.Background(), Request{
		PatientID:  "patient-em-003",
		HospitalID: "MAYO-01",
		Situation:  "cardiac_arrest",
		Vitals:     `{"pulse": 0}`,
	})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if response.ConfidenceScore > 1.0 {
		t.Errorf("Confidence exceeds 1.0: %f", response.ConfidenceScore)
	}
}

func TestCheckNoDirectiveOnFile(t *testing.T) {
	repo := directive.NewMemoryRepository()
	alerts := &recordingAlertSender{}
	service := NewService(repo, alerts, events.NoopBus{})

	response, err := service.Check(context.Background(), Request{
		PatientID:  "patient-em-004",
		HospitalID: "MAYO-01",
		Situation:  "cardiac_arrest",
	})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if response.ActionRequired {
		t.Error("Expected no action for patient without directives")
	}
	if response.DirectiveType != "NONE" {
		t.Errorf("Expected 'NONE', got '%s'", response.DirectiveType)
	}
	if len(alerts.sent) != 0 {
		t.Errorf("Expected no alerts, got %d", len(alerts.sent))
	}
}

type unavailableRepository struct{}

func (unavailableRepository) Create(ctx context.Context, d *directive.Directive) error {
	return errors.Internal(fmt.Errorf("connection refused"))
}

func (unavailableRepository) GetByID(ctx context.Context, id types.ID) (*directive.Directive, error) {
	return nil, errors.Internal(fmt.Errorf("connection refused"))
}

func (unavailableRepository) ListByPatient(ctx context.Context, patientHash string) ([]*directive.Directive, error) {
	return nil, errors.Internal(fmt.Errorf("connection refused"))
}

func (unavailableRepository) FindActiveByType(ctx context.Context, patientHash string, directiveType classification.DirectiveType) (*directive.Directive, error) {
	return nil, errors.Internal(fmt.Errorf("connection refused"))
}

func (unavailableRepository) UpdateStatus(ctx context.Context, id types.ID, status directive.Status) error {
	return errors.Internal(fmt.Errorf("connection refused"))
}

func (unavailableRepository) ListForReview(ctx context.Context, limit int) ([]*directive.Directive, error) {
	return nil, errors.Internal(fmt.Errorf("connection refused"))
}

func TestCheckSurfacesRegistryOutage(t *testing.T) {
	alerts := &recordingAlertSender{}
	service := NewService(unavailableRepository{}, alerts, events.NoopBus{})

	_, err := service.Check(context.Background(), Request{
		PatientID:  "patient-em-outage",
		HospitalID: "MAYO-01",
		Situation:  "cardiac_arrest",
	})
	if err == nil {
		t.Fatal("Expected error when the directive registry is unreachable")
	}
	if !errors.IsExternalUnavailable(err) {
		t.Errorf("Expected external unavailable error, got %v", err)
	}
	if len(alerts.sent) != 0 {
		t.Errorf("Expected no alerts during an outage, got %d", len(alerts.sent))
	}
}

func TestImpactMetrics(t *testing.T) {
	repo := directive.NewMemoryRepository()
	service := NewService(repo, &recordingAlertSender{}, events.NoopBus{})
	seedDNR(t, repo, "patient-em-005", 0.94)

	for i := 0; i < 3; i++ {
		if _, err := service.Check(context.Background(), Request{
			PatientID:  "patient-em-005",
			HospitalID: "MAYO-01",
			Situation:  "trauma",
		}); err != nil {
			t.Fatalf("Check failed: %v", err)
		}
	}
	if _, err := service.Check(context.Background(), Request{
		PatientID:  "patient-em-unknown",
		HospitalID: "MAYO-01",
		Situation:  "trauma",
	}); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	impact := service.Impact()
	if impact.EmergencyResponsesServed != 4 {
		t.Errorf("Expected 4 served, got %d", impact.EmergencyResponsesServed)
	}
	if impact.DirectivesHonored != 3 {
		t.Errorf("Expected 3 honored, got %d", impact.DirectivesHonored)
	}
	if impact.ChecksWithoutDirective != 1 {
		t.Errorf("Expected 1 without directive, got %d", impact.ChecksWithoutDirective)
	}
}

func TestRecentAlertsNewestFirst(t *testing.T) {
	repo := directive.NewMemoryRepository()
	service := NewService(repo, &recordingAlertSender{}, events.NoopBus{})
	seedDNR(t, repo, "patient-em-006", 0.94)

	situations := []string{"trauma", "cardiac_arrest", "respiratory_failure"}
	for _, situation := range situations {
		if _, err := service.Check(context.Background(), Request{
			PatientID:  "patient-em-006",
			HospitalID: "MAYO-01",
			Situation:  situation,
		}); err != nil {
			t.Fatalf("Check failed: %v", err)
		}
	}

	alerts := service.RecentAlerts(2)
	if len(alerts) != 2 {
		t.Fatalf("Expected 2 alerts, got %d", len(alerts))
	}
	if alerts[0].Situation != "respiratory_failure" {
		t.Errorf("Expected newest alert first, got '%s'", alerts[0].Situation)
	}
}

// --- HTTP layer ---

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
	}
}

func TestCheckEndpointRequiresHospitalToken(t *testing.T) {
	repo := directive.NewMemoryRepository()
	service := NewService(repo, &recordingAlertSender{}, events.NoopBus{})
	handler := NewHandler(service, testAuthConfig())
	server := httptest.NewServer(handler.Routes())
	defer server.Close()

	body, _ := json.Marshal(Request{PatientID: "patient-em-007", HospitalID: "MAYO-01", Situation: "trauma"})
	resp, err := http.Post(server.URL+"/check", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
}

func TestCheckEndpointVerifiesHospitalMatch(t *testing.T) {
	repo := directive.NewMemoryRepository()
	service := NewService(repo, &recordingAlertSender{}, events.NoopBus{})
	seedDNR(t, repo, "patient-em-008", 0.94)

	authCfg := testAuthConfig()
	handler := NewHandler(service, authCfg)
	server := httptest.NewServer(handler.Routes())
	defer server.Close()

	token, err := auth.IssueToken(authCfg, "mayo-emergency", auth.CallerTypeHospital, "MAYO-01", []string{"emergency"})
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	tests := []struct {
		name       string
		hospitalID string
		wantStatus int
	}{
		{"matching hospital", "MAYO-01", http.StatusOK},
		{"mismatched hospital", "OTHER-99", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(Request{PatientID: "patient-em-008", HospitalID: tt.hospitalID, Situation: "trauma"})
			req, _ := http.NewRequest(http.MethodPost, server.URL+"/check", bytes.NewReader(body))
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Content-Type", "application/json")

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}
}
