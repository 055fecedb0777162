package classification

import "sort"

// Merge combines the local and external analyses after an escalation.
// Duplicate directive types keep only the higher-confidence entry. The
// merged confidence is the two-term mean of the aggregate confidences,
// not a blend weighted by entry count. Contraindications and legal
// validity come from the external result, which is authoritative for
// those fields once invoked.
func Merge(local, external DirectiveAnalysis, reviewThreshold float64) DirectiveAnalysis {
	combined := make([]ExtractedDirective, 0, len(local.ExtractedDirectives)+len(external.ExtractedDirectives))
	combined = append(combined, local.ExtractedDirectives...)
	combined = append(combined, external.ExtractedDirectives...)

	// Highest confidence first, then first occurrence per type wins
	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Confidence > combined[j].Confidence
	})

	seen := make(map[DirectiveType]bool, len(combined))
	deduped := combined[:0]
	for _, d := range combined {
		if seen[d.DirectiveType] {
			continue
		}
		seen[d.DirectiveType] = true
		deduped = append(deduped, d)
	}

	confidence := (local.ConfidenceScore + external.ConfidenceScore) / 2.0

	return DirectiveAnalysis{
		ConfidenceScore:     confidence,
		ExtractedDirectives: deduped,
		Contraindications:   external.Contraindications,
		LegalValidityScore:  external.LegalValidityScore,
		RequiresHumanReview: confidence < reviewThreshold,
		ProcessingTier:      TierHybrid,
	}
}
