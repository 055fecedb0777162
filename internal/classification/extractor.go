package classification

import "strings"

// Extractor scans normalized text against the lexicon to produce typed
// directive candidates. Matching is case-insensitive substring
// containment, not tokenized: a phrase matches even mid-word. That is a
// deliberate compatibility constraint, do not "fix" it to word-boundary
// matching.
type Extractor struct {
	lexicon *Lexicon
}

// NewExtractor creates an extractor over a lexicon
func NewExtractor(lexicon *Lexicon) *Extractor {
	return &Extractor{lexicon: lexicon}
}

// Extract returns one ExtractedDirective per directive type whose boosted
// confidence reaches that type's threshold. Text must already be
// normalized.
func (e *Extractor) Extract(text string) []ExtractedDirective {
	var directives []ExtractedDirective

	for _, directiveType := range e.lexicon.DirectiveTypes() {
		keywords := e.lexicon.Keywords(directiveType)

		var matched []string
		for _, keyword := range keywords {
			if strings.Contains(text, keyword) {
				matched = append(matched, keyword)
			}
		}
		if len(matched) == 0 {
			continue
		}

		confidence := keywordConfidence(len(matched), len(keywords), text)
		if confidence < e.lexicon.Threshold(directiveType) {
			continue
		}

		directives = append(directives, ExtractedDirective{
			DirectiveType:      directiveType,
			Conditions:         extractConditions(text, directiveType),
			Confidence:         confidence,
			MatchedText:        strings.Join(matched, ", "),
			MedicalTerminology: e.extractTerminology(text),
		})
	}

	return directives
}

// keywordConfidence computes the match ratio with additive boosts for
// stylistic markers, capped at 1.0
func keywordConfidence(matches, totalKeywords int, text string) float64 {
	confidence := float64(matches) / float64(totalKeywords)

	// Explicit first-person refusal
	if strings.Contains(text, "i do not want") || strings.Contains(text, "i refuse") {
		confidence += 0.10
	}
	// Witnessing or signing language
	if strings.Contains(text, "witnessed") || strings.Contains(text, "signed") {
		confidence += 0.05
	}
	// Competency language
	if strings.Contains(text, "sound mind") {
		confidence += 0.05
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// extractConditions returns the per-type modifier conditions found in the text
func extractConditions(text string, directiveType DirectiveType) []string {
	var conditions []string

	switch directiveType {
	case DirectiveDNR:
		if strings.Contains(text, "less than") && (strings.Contains(text, "percent") || strings.Contains(text, "%")) {
			conditions = append(conditions, "Recovery probability threshold specified")
		}
		if strings.Contains(text, "terminal") || strings.Contains(text, "end stage") {
			conditions = append(conditions, "Terminal condition specified")
		}
		if strings.Contains(text, "vegetative") {
			conditions = append(conditions, "Persistent vegetative state specified")
		}
		if strings.Contains(text, "comfort care") || strings.Contains(text, "palliative") {
			conditions = append(conditions, "Comfort care preference")
		}
	case DirectiveOrganDonation:
		if strings.Contains(text, "kidney") {
			conditions = append(conditions, "Kidney donation")
		}
		if strings.Contains(text, "liver") {
			conditions = append(conditions, "Liver donation")
		}
		if strings.Contains(text, "heart") {
			conditions = append(conditions, "Heart donation")
		}
		if strings.Contains(text, "cornea") {
			conditions = append(conditions, "Cornea donation")
		}
		if strings.Contains(text, "tissue") {
			conditions = append(conditions, "Tissue donation")
		}
	case DirectiveDataConsent:
		if strings.Contains(text, "anonymized") {
			conditions = append(conditions, "Anonymization required")
		}
		if strings.Contains(text, "cancer") {
			conditions = append(conditions, "Cancer research consent")
		}
		if strings.Contains(text, "genetic") {
			conditions = append(conditions, "Genetic research consent")
		}
		if strings.Contains(text, "clinical trial") {
			conditions = append(conditions, "Clinical trial participation")
		}
	}

	return conditions
}

// extractTerminology tags clinical terms from the taxonomy found in the
// text as "category: term". Annotation only, never used for scoring.
func (e *Extractor) extractTerminology(text string) []string {
	var terms []string
	for _, category := range e.lexicon.TerminologyCategories() {
		for _, term := range e.lexicon.Terms(category) {
			if strings.Contains(text, term) {
				terms = append(terms, category+": "+term)
			}
		}
	}
	return terms
}

// containsComplexTerms reports whether the text mentions clinical
// terminology complex enough to force human review
func (e *Extractor) containsComplexTerms(text string) bool {
	for _, term := range e.lexicon.complex {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
