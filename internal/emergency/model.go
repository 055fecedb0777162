package emergency

import (
	"sync"
	"time"
)

// Request is an emergency directive check from a hospital system
type Request struct {
	PatientID  string `json:"patient_id"`
	HospitalID string `json:"hospital_id"`
	// Situation is the presenting emergency, e.g. "cardiac_arrest"
	Situation string `json:"situation"`
	// Vitals is an optional raw vitals payload from the monitor feed
	Vitals string `json:"vitals,omitempty"`
}

// Response tells the hospital whether a directive applies and how
// confident the platform is in it
type Response struct {
	ActionRequired  bool      `json:"action_required"`
	DirectiveType   string    `json:"directive_type"`
	Message         string    `json:"message"`
	ConfidenceScore float64   `json:"confidence_score"`
	Conditions      []string  `json:"conditions,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// AlertRecord is a served emergency check kept for monitoring
type AlertRecord struct {
	AlertID       string    `json:"alert_id"`
	PatientHash   string    `json:"patient_hash"`
	HospitalID    string    `json:"hospital_id"`
	Situation     string    `json:"situation"`
	DirectiveType string    `json:"directive_type"`
	ServedAt      time.Time `json:"served_at"`
}

// ImpactMetrics summarizes the emergency bridge's service history
type ImpactMetrics struct {
	EmergencyResponsesServed int64   `json:"emergency_responses_served"`
	AverageResponseTimeMs    float64 `json:"average_response_time_ms"`
	DirectivesHonored        int64   `json:"directives_honored"`
	ChecksWithoutDirective   int64   `json:"checks_without_directive"`
}

// impactTracker serializes metric updates behind a mutex
type impactTracker struct {
	mu      sync.Mutex
	metrics ImpactMetrics
}

func (t *impactTracker) recordServed(latency time.Duration, honored bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.EmergencyResponsesServed++
	n := float64(t.metrics.EmergencyResponsesServed)
	t.metrics.AverageResponseTimeMs = (t.metrics.AverageResponseTimeMs*(n-1) + float64(latency.Milliseconds())) / n
	if honored {
		t.metrics.DirectivesHonored++
	} else {
		t.metrics.ChecksWithoutDirective++
	}
}

func (t *impactTracker) snapshot() ImpactMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}
