package executor

import (
	"time"

	"github.com/echoledger/platform/internal/classification"
	"github.com/echoledger/platform/internal/shared/types"
)

// ExecutionStatus is the outcome of executing one directive
type ExecutionStatus string

const (
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionSkipped   ExecutionStatus = "SKIPPED"
	ExecutionFailed    ExecutionStatus = "FAILED"
)

// OrganAvailability describes one assessed organ
type OrganAvailability struct {
	OrganType        string   `json:"organ_type"`
	BloodType        string   `json:"blood_type"`
	HLATyping        []string `json:"hla_typing"`
	OrganCondition   string   `json:"organ_condition"`
	TimeSinceHarvest int64    `json:"time_since_harvest"`
	Location         string   `json:"location"`
	ViabilityScore   float64  `json:"viability_score"`
}

// RecipientMatch is one candidate recipient for an organ. UrgencyLevel
// runs 1 (critical) to 3 (medium).
type RecipientMatch struct {
	RecipientID              string  `json:"recipient_id"`
	Organ                    string  `json:"organ"`
	CompatibilityScore       float64 `json:"compatibility_score"`
	UrgencyLevel             int     `json:"urgency_level"`
	DistanceKm               int     `json:"distance_km"`
	TransplantCenter         string  `json:"transplant_center"`
	NotificationSent         bool    `json:"notification_sent"`
	EstimatedSurvivalBenefit float64 `json:"estimated_survival_benefit"`
}

// DirectiveExecution is the outcome of executing one directive type
type DirectiveExecution struct {
	DirectiveType           classification.DirectiveType `json:"directive_type"`
	Status                  ExecutionStatus              `json:"execution_status"`
	OrgansProcessed         []string                     `json:"organs_processed"`
	RecipientMatches        []RecipientMatch             `json:"recipient_matches"`
	TotalRecipientsNotified int                          `json:"total_recipients_notified"`
	EstimatedLivesSaved     int                          `json:"estimated_lives_saved"`
	DataSharedWith          []string                     `json:"data_shared_with"`
	AnonymizationVerified   bool                         `json:"anonymization_verified"`
	ResearchImpactScore     float64                      `json:"research_impact_score"`
}

// ExecutionResult summarizes one end-to-end execution run for a patient
type ExecutionResult struct {
	ExecutionID        types.ID             `json:"execution_id"`
	PatientHash        string               `json:"patient_hash"`
	DirectivesExecuted []DirectiveExecution `json:"directives_executed"`
	TotalExecutionMs   int64                `json:"total_execution_time_ms"`
	AuditLogCreated    bool                 `json:"audit_log_created"`
	ExecutedAt         time.Time            `json:"executed_at"`
}

// NetworkAlert is one notification delivered to a transplant network
type NetworkAlert struct {
	AlertID          string    `json:"alert_id"`
	Network          string    `json:"network"`
	TransplantCenter string    `json:"transplant_center"`
	Organ            string    `json:"organ"`
	Recipient        string    `json:"recipient"`
	AlertTime        time.Time `json:"alert_time"`
	DeliveryStatus   string    `json:"delivery_status"`
}
