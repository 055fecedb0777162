package directive

import (
	"time"

	"github.com/echoledger/platform/internal/classification"
	"github.com/echoledger/platform/internal/shared/errors"
	"github.com/echoledger/platform/internal/shared/types"
)

// Status represents the lifecycle state of a registered directive
type Status string

const (
	StatusActive     Status = "active"
	StatusRevoked    Status = "revoked"
	StatusSuperseded Status = "superseded"
)

// MaxRetention caps how long directive records may be retained.
// HIPAA-derived limit of 50 years.
const MaxRetention = 50 * 365 * 24 * time.Hour

// Directive is one registered, typed patient directive. The patient is
// stored only as a hash; the raw identifier never reaches the registry.
type Directive struct {
	ID                types.ID                     `json:"id"`
	PatientHash       string                       `json:"patient_hash"`
	Type              classification.DirectiveType `json:"directive_type"`
	Text              string                       `json:"directive_text"`
	Conditions        []string                     `json:"conditions"`
	Contraindications []string                     `json:"contraindications"`
	Confidence        float64                      `json:"confidence"`
	LegalValidity     float64                      `json:"legal_validity"`
	Tier              classification.Tier          `json:"processing_tier"`
	RequiresReview    bool                         `json:"requires_review"`
	Status            Status                       `json:"status"`
	RetentionUntil    time.Time                    `json:"retention_until"`
	CreatedAt         time.Time                    `json:"created_at"`
	UpdatedAt         time.Time                    `json:"updated_at"`
}

// NewDirective builds a registry record from one extracted directive and
// its surrounding analysis. retention bounds how long the record is kept.
func NewDirective(patient types.PatientRef, text string, extracted classification.ExtractedDirective, analysis classification.DirectiveAnalysis, retention time.Duration) (*Directive, error) {
	if patient.IsZero() {
		return nil, errors.BadRequest("patient reference is required")
	}
	if !extracted.DirectiveType.Valid() {
		return nil, errors.BadRequest("unsupported directive type: " + string(extracted.DirectiveType))
	}
	if retention <= 0 {
		return nil, errors.BadRequest("retention period must be positive")
	}
	if retention > MaxRetention {
		return nil, errors.Validation("retention period exceeds HIPAA limits", map[string]string{
			"max_years": "50",
		})
	}

	now := time.Now().UTC()
	return &Directive{
		ID:                types.NewID(),
		PatientHash:       patient.Hash(),
		Type:              extracted.DirectiveType,
		Text:              text,
		Conditions:        extracted.Conditions,
		Contraindications: analysis.Contraindications,
		Confidence:        extracted.Confidence,
		LegalValidity:     analysis.LegalValidityScore,
		Tier:              analysis.ProcessingTier,
		RequiresReview:    analysis.RequiresHumanReview,
		Status:            StatusActive,
		RetentionUntil:    now.Add(retention),
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Active reports whether the directive is currently actionable
func (d *Directive) Active() bool {
	return d.Status == StatusActive && time.Now().UTC().Before(d.RetentionUntil)
}
