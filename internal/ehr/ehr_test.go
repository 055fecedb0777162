package ehr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/echoledger/platform/internal/shared/config"
	"github.com/echoledger/platform/internal/shared/errors"
	"github.com/echoledger/platform/internal/shared/types"
)

func TestFHIRFetchPatientSummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Patient/patient-123" {
			t.Errorf("Expected path '/Patient/patient-123', got '%s'", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/fhir+json")
		json.NewEncoder(w).Encode(map[string]any{
			"resourceType": "Patient",
			"id":           "patient-123",
			"active":       true,
			"name": []map[string]any{
				{"family": "Petrov", "given": []string{"Ana"}},
			},
			"gender":    "female",
			"birthDate": "1958-03-14",
			"identifier": []map[string]any{
				{"system": "urn:oid:medical-record-number", "value": "MRN-0042"},
			},
		})
	}))
	defer server.Close()

	adapter := NewFHIRAdapter(server.URL)
	patient, _ := types.NewPatientRef("patient-123")

	summary, err := adapter.FetchPatientSummary(context.Background(), patient)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if summary.FamilyName != "Petrov" {
		t.Errorf("Expected family name 'Petrov', got '%s'", summary.FamilyName)
	}
	if summary.GivenName != "Ana" {
		t.Errorf("Expected given name 'Ana', got '%s'", summary.GivenName)
	}
	if summary.MedicalRecordNumber != "MRN-0042" {
		t.Errorf("Expected MRN 'MRN-0042', got '%s'", summary.MedicalRecordNumber)
	}
	if !summary.Active {
		t.Error("Expected patient to be active")
	}
}

func TestFHIRFetchPatientNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	adapter := NewFHIRAdapter(server.URL)
	patient, _ := types.NewPatientRef("missing")

	_, err := adapter.FetchPatientSummary(context.Background(), patient)
	if err == nil {
		t.Fatal("Expected error for missing patient")
	}
	appErr, ok := err.(*errors.AppError)
	if !ok || appErr.Code != "NOT_FOUND" {
		t.Errorf("Expected NOT_FOUND error, got %v", err)
	}
}

func TestFHIRPushDirectiveStatus(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Flag" {
			t.Errorf("Expected path '/Flag', got '%s'", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected method POST, got '%s'", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	adapter := NewFHIRAdapter(server.URL)
	err := adapter.PushDirectiveStatus(context.Background(), "abc123hash", DirectiveStatusUpdate{
		DirectiveType: "DNR",
		Status:        "revoked",
		Reference:     "11111111-1111-1111-1111-111111111111",
		UpdatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if received["resourceType"] != "Flag" {
		t.Errorf("Expected resourceType 'Flag', got '%v'", received["resourceType"])
	}
	if received["status"] != "inactive" {
		t.Errorf("Expected flag status 'inactive' for revoked directive, got '%v'", received["status"])
	}
	subject := received["subject"].(map[string]any)
	ref := subject["reference"].(string)
	if !strings.Contains(ref, "abc123hash") {
		t.Errorf("Expected subject reference to carry the patient hash, got '%s'", ref)
	}
	if strings.Contains(ref, "patient-123") {
		t.Error("Raw patient identifiers must not appear in pushed records")
	}
}

func TestFHIRHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metadata" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	adapter := NewFHIRAdapter(server.URL)
	if err := adapter.Health(context.Background()); err != nil {
		t.Errorf("Expected healthy, got %v", err)
	}
}

func TestFHIRUnavailableServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	adapter := NewFHIRAdapter(server.URL)
	patient, _ := types.NewPatientRef("patient-123")

	_, err := adapter.FetchPatientSummary(context.Background(), patient)
	if !errors.IsExternalUnavailable(err) {
		t.Errorf("Expected external unavailable error, got %v", err)
	}
}

func TestNewAdapterSelection(t *testing.T) {
	tests := []struct {
		name    string
		adapter string
		source  string
		wantErr bool
	}{
		{"fhir", "fhir", "fhir", false},
		{"none", "none", "none", false},
		{"empty defaults to none", "", "none", false},
		{"unknown", "hl7v2", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := New(config.EHRConfig{Adapter: tt.adapter, FHIRBaseURL: "http://localhost:8090/fhir"})
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error for unknown adapter")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if adapter.SourceSystem() != tt.source {
				t.Errorf("Expected source '%s', got '%s'", tt.source, adapter.SourceSystem())
			}
		})
	}
}

func TestNoopAdapterFetch(t *testing.T) {
	patient, _ := types.NewPatientRef("patient-123")
	summary, err := NoopAdapter{}.FetchPatientSummary(context.Background(), patient)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if summary.ID != patient.Hash() {
		t.Errorf("Expected hashed ID '%s', got '%s'", patient.Hash(), summary.ID)
	}
}
