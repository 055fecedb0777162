package ehr

import (
	"context"
	"fmt"
	"time"

	"github.com/echoledger/platform/internal/shared/config"
	"github.com/echoledger/platform/internal/shared/types"
)

// Adapter defines the interface for EHR integrations. Implementations
// connect to a specific hospital record system (FHIR R4 endpoints,
// legacy HIS databases) and expose a unified API to the platform.
type Adapter interface {
	// FetchPatientSummary retrieves the demographics needed to confirm
	// identity during an emergency check
	FetchPatientSummary(ctx context.Context, patient types.PatientRef) (*PatientSummary, error)

	// PushDirectiveStatus writes a directive's registration or
	// revocation back into the hospital record. The patient is keyed by
	// hash so the raw identifier never leaves the registry.
	PushDirectiveStatus(ctx context.Context, patientHash string, update DirectiveStatusUpdate) error

	// SourceSystem names the connected record system
	SourceSystem() string

	// Health checks connectivity
	Health(ctx context.Context) error

	// Close releases the connection
	Close() error
}

// PatientSummary is the minimal demographic record the platform needs
type PatientSummary struct {
	ID                  string `json:"id"`
	Active              bool   `json:"active"`
	FamilyName          string `json:"family_name"`
	GivenName           string `json:"given_name"`
	Gender              string `json:"gender"`
	BirthDate           string `json:"birth_date"`
	MedicalRecordNumber string `json:"medical_record_number"`
}

// DirectiveStatusUpdate mirrors a registry change into the EHR
type DirectiveStatusUpdate struct {
	DirectiveType string    `json:"directive_type"`
	Status        string    `json:"status"`
	Reference     string    `json:"reference"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NoopAdapter satisfies Adapter when no EHR is configured
type NoopAdapter struct{}

func (NoopAdapter) FetchPatientSummary(ctx context.Context, patient types.PatientRef) (*PatientSummary, error) {
	return &PatientSummary{ID: patient.Hash(), Active: true}, nil
}

func (NoopAdapter) PushDirectiveStatus(ctx context.Context, patientHash string, update DirectiveStatusUpdate) error {
	return nil
}

func (NoopAdapter) SourceSystem() string             { return "none" }
func (NoopAdapter) Health(ctx context.Context) error { return nil }
func (NoopAdapter) Close() error                     { return nil }

// New builds the configured adapter
func New(cfg config.EHRConfig) (Adapter, error) {
	switch cfg.Adapter {
	case "fhir":
		return NewFHIRAdapter(cfg.FHIRBaseURL), nil
	case "legacy":
		return NewLegacyAdapter(cfg)
	case "none", "":
		return NoopAdapter{}, nil
	default:
		return nil, fmt.Errorf("unknown EHR adapter %q", cfg.Adapter)
	}
}

var (
	_ Adapter = (*FHIRAdapter)(nil)
	_ Adapter = (*LegacyAdapter)(nil)
	_ Adapter = NoopAdapter{}
)
