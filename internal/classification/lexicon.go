package classification

// Lexicon is the immutable-at-runtime mapping from directive type to
// trigger phrases and per-type acceptance thresholds, plus the clinical
// terminology taxonomy used for annotation. It is built once at startup
// and shared across concurrent requests without locking.
type Lexicon struct {
	keywords    map[DirectiveType][]string
	thresholds  map[DirectiveType]float64
	terminology map[string][]string
	complex     []string
}

// DefaultLexicon returns the standard advance-directive lexicon.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		keywords: map[DirectiveType][]string{
			DirectiveDNR: {
				"do not resuscitate",
				"dnr",
				"no resuscitation",
				"do not revive",
				"no cpr",
				"no life support",
				"no mechanical ventilation",
				"comfort care only",
				"palliative care",
				"end of life",
			},
			DirectiveOrganDonation: {
				"donate organs",
				"organ donation",
				"donate my",
				"kidney",
				"liver",
				"heart",
				"cornea",
				"tissue donation",
				"transplant",
				"organ harvesting",
			},
			DirectiveDataConsent: {
				"research",
				"anonymized data",
				"medical research",
				"share data",
				"cancer research",
				"genetic studies",
				"clinical trials",
				"medical studies",
			},
			DirectivePowerOfAttorney: {
				"power of attorney",
				"healthcare proxy",
				"medical decisions",
				"surrogate",
				"healthcare agent",
			},
			DirectiveLivingWill: {
				"living will",
				"advance directive",
				"healthcare directive",
				"medical directive",
				"end-of-life wishes",
			},
		},
		thresholds: map[DirectiveType]float64{
			DirectiveDNR:             0.85,
			DirectiveOrganDonation:   0.80,
			DirectiveDataConsent:     0.75,
			DirectivePowerOfAttorney: 0.88,
			DirectiveLivingWill:      0.82,
		},
		terminology: map[string][]string{
			"cardiovascular": {
				"myocardial infarction",
				"cardiac arrest",
				"heart failure",
				"arrhythmia",
				"coronary artery disease",
			},
			"respiratory": {
				"respiratory failure",
				"pneumonia",
				"copd",
				"pulmonary embolism",
				"acute respiratory distress",
			},
			"neurological": {
				"stroke",
				"cerebrovascular accident",
				"traumatic brain injury",
				"coma",
				"persistent vegetative state",
				"brain death",
			},
			"oncological": {
				"cancer",
				"malignancy",
				"metastasis",
				"chemotherapy",
				"radiation therapy",
				"terminal cancer",
			},
		},
		complex: []string{
			"myocardial infarction",
			"cerebrovascular accident",
			"pulmonary embolism",
			"sepsis",
			"multi-organ failure",
			"intracranial pressure",
			"glasgow coma scale",
			"acute respiratory distress syndrome",
			"disseminated intravascular coagulation",
		},
	}
}

// Keywords returns the trigger phrases for a directive type
func (l *Lexicon) Keywords(t DirectiveType) []string {
	return l.keywords[t]
}

// Threshold returns the acceptance threshold for a directive type.
// Unknown types fall back to 0.7.
func (l *Lexicon) Threshold(t DirectiveType) float64 {
	if threshold, ok := l.thresholds[t]; ok {
		return threshold
	}
	return 0.7
}

// DirectiveTypes returns the supported directive types in stable order
func (l *Lexicon) DirectiveTypes() []DirectiveType {
	types := make([]DirectiveType, 0, len(AllDirectiveTypes))
	for _, t := range AllDirectiveTypes {
		if _, ok := l.keywords[t]; ok {
			types = append(types, t)
		}
	}
	return types
}

// TerminologyCategories returns the taxonomy category names in stable order
func (l *Lexicon) TerminologyCategories() []string {
	// Fixed order keeps API responses deterministic
	order := []string{"cardiovascular", "respiratory", "neurological", "oncological"}
	categories := make([]string, 0, len(order))
	for _, c := range order {
		if _, ok := l.terminology[c]; ok {
			categories = append(categories, c)
		}
	}
	return categories
}

// Terms returns the clinical terms in a taxonomy category
func (l *Lexicon) Terms(category string) []string {
	return l.terminology[category]
}
