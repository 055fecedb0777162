package classification

// DirectiveType identifies a legally meaningful patient instruction
type DirectiveType string

const (
	DirectiveDNR             DirectiveType = "DNR"
	DirectiveOrganDonation   DirectiveType = "ORGAN_DONATION"
	DirectiveDataConsent     DirectiveType = "DATA_CONSENT"
	DirectivePowerOfAttorney DirectiveType = "POWER_OF_ATTORNEY"
	DirectiveLivingWill      DirectiveType = "LIVING_WILL"
)

// AllDirectiveTypes lists every supported type in stable order
var AllDirectiveTypes = []DirectiveType{
	DirectiveDNR,
	DirectiveOrganDonation,
	DirectiveDataConsent,
	DirectivePowerOfAttorney,
	DirectiveLivingWill,
}

// Valid reports whether the type is one of the supported set
func (t DirectiveType) Valid() bool {
	switch t {
	case DirectiveDNR, DirectiveOrganDonation, DirectiveDataConsent,
		DirectivePowerOfAttorney, DirectiveLivingWill:
		return true
	}
	return false
}

// Tier identifies which processing path produced the final analysis
type Tier string

const (
	// TierLocal means the lexicon-based classifier was confident enough
	// on its own
	TierLocal Tier = "LOCAL"
	// TierHybrid means the external classifier was consulted. It is also
	// reported when escalation was attempted but failed; see
	// DirectiveAnalysis.EscalationFailed.
	TierHybrid Tier = "HYBRID"
)

// ExtractedDirective is one typed directive found in the patient's text.
// Produced fresh per request; persistence is the directive registry's
// concern, not this package's.
type ExtractedDirective struct {
	DirectiveType      DirectiveType `json:"directive_type"`
	Conditions         []string      `json:"conditions"`
	Confidence         float64       `json:"confidence"`
	MatchedText        string        `json:"matched_text"`
	MedicalTerminology []string      `json:"medical_terminology"`
}

// DirectiveAnalysis is the aggregate result of classifying one directive
// text. ExtractedDirectives holds at most one entry per directive type
// after merging.
type DirectiveAnalysis struct {
	ConfidenceScore     float64              `json:"confidence_score"`
	ExtractedDirectives []ExtractedDirective `json:"extracted_directives"`
	Contraindications   []string             `json:"contraindications"`
	LegalValidityScore  float64              `json:"legal_validity_score"`
	RequiresHumanReview bool                 `json:"requires_human_review"`
	ProcessingTier      Tier                 `json:"processing_tier"`
	// EscalationFailed is set when the external classifier was invoked
	// but failed or timed out and the local result was used instead. The
	// tier stays HYBRID in that case to reflect the attempted escalation.
	EscalationFailed  bool    `json:"escalation_failed,omitempty"`
	CostEstimateUSD   float64 `json:"cost_estimate_usd"`
	ProcessingTimeMs  int64   `json:"processing_time_ms"`
}

// ProcessingStats is the process-wide running aggregate over completed
// classifications. LocalTierCount + HybridTierCount always equals
// TotalProcessed.
type ProcessingStats struct {
	TotalProcessed    int64   `json:"total_processed"`
	LocalTierCount    int64   `json:"local_tier_count"`
	HybridTierCount   int64   `json:"hybrid_tier_count"`
	AvgConfidence     float64 `json:"avg_confidence"`
	AvgLatencyMs      float64 `json:"avg_latency_ms"`
	AvgCostSavingsPct float64 `json:"avg_cost_savings_pct"`
}
