package classification

import (
	"strings"
	"unicode/utf8"
)

// LocalClassifier aggregates extractor output into a DirectiveAnalysis
// without leaving the process.
type LocalClassifier struct {
	extractor         *Extractor
	reviewThreshold   float64
	reviewLengthChars int
}

// NewLocalClassifier creates the local tier of the hybrid engine
func NewLocalClassifier(extractor *Extractor, reviewThreshold float64, reviewLengthChars int) *LocalClassifier {
	return &LocalClassifier{
		extractor:         extractor,
		reviewThreshold:   reviewThreshold,
		reviewLengthChars: reviewLengthChars,
	}
}

// Classify produces the local-tier analysis of normalized text. rawLen is
// the character length of the original input, used for the review length
// cap. A zero-confidence result with no accepted directives is a valid
// terminal state, not an error.
func (c *LocalClassifier) Classify(normalized string, rawLen int) DirectiveAnalysis {
	directives := c.extractor.Extract(normalized)

	var confidence float64
	if len(directives) > 0 {
		var total float64
		for _, d := range directives {
			total += d.Confidence
		}
		confidence = total / float64(len(directives))
	}

	requiresReview := confidence < c.reviewThreshold ||
		rawLen > c.reviewLengthChars ||
		c.extractor.containsComplexTerms(normalized)

	return DirectiveAnalysis{
		ConfidenceScore:     confidence,
		ExtractedDirectives: directives,
		Contraindications:   detectContraindications(normalized),
		LegalValidityScore:  assessLegalValidity(normalized),
		RequiresHumanReview: requiresReview,
		ProcessingTier:      TierLocal,
	}
}

// RawLength counts the characters of a directive text
func RawLength(text string) int {
	return utf8.RuneCountInString(text)
}

// detectContraindications flags textual signals that the directive may
// not be reliably actionable. Independent of directive type.
func detectContraindications(text string) []string {
	var contraindications []string

	if strings.Contains(text, "religious") && strings.Contains(text, "objection") {
		contraindications = append(contraindications, "Religious objections noted")
	}
	if strings.Contains(text, "family") && (strings.Contains(text, "disagree") || strings.Contains(text, "oppose")) {
		contraindications = append(contraindications, "Family disagreement potential")
	}
	if strings.Contains(text, "uncertain") || strings.Contains(text, "maybe") || strings.Contains(text, "might") {
		contraindications = append(contraindications, "Uncertain language detected")
	}
	if strings.Contains(text, "coerced") || strings.Contains(text, "forced") || strings.Contains(text, "pressure") {
		contraindications = append(contraindications, "Potential coercion indicators")
	}

	return contraindications
}

// assessLegalValidity estimates formal enforceability from witnessing,
// signature and competency markers. Starts at 0.5 and is clamped to [0,1].
func assessLegalValidity(text string) float64 {
	score := 0.5

	if strings.Contains(text, "sound mind") {
		score += 0.2
	}
	if strings.Contains(text, "witness") {
		score += 0.15
	}
	if strings.Contains(text, "signature") || strings.Contains(text, "signed") {
		score += 0.1
	}
	if strings.Contains(text, "date") {
		score += 0.05
	}
	if strings.Contains(text, "notarized") {
		score += 0.1
	}

	if strings.Contains(text, "coerced") || strings.Contains(text, "forced") {
		score -= 0.3
	}
	if strings.Contains(text, "unclear") || strings.Contains(text, "confused") {
		score -= 0.2
	}
	if strings.Contains(text, "under influence") {
		score -= 0.25
	}

	if score < 0.0 {
		score = 0.0
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
