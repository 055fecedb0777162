package emergency

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/echoledger/platform/internal/classification"
	"github.com/echoledger/platform/internal/directive"
	"github.com/echoledger/platform/internal/shared/errors"
	"github.com/echoledger/platform/internal/shared/events"
	"github.com/echoledger/platform/internal/shared/metrics"
	"github.com/echoledger/platform/internal/shared/types"
)

// AlertSender delivers emergency alerts to hospital systems
type AlertSender interface {
	Send(ctx context.Context, alert AlertRecord) error
}

// LogAlertSender writes alerts to the process log. Stands in for a real
// hospital push channel.
type LogAlertSender struct{}

func (LogAlertSender) Send(ctx context.Context, alert AlertRecord) error {
	log.Printf("EMERGENCY ALERT %s: hospital=%s directive=%s", alert.AlertID, alert.HospitalID, alert.DirectiveType)
	return nil
}

// Service answers emergency directive checks from verified hospitals.
// The lookup order is fixed: DNR first, then the remaining types, so the
// most time-critical directive wins when a patient has several.
var lookupOrder = []classification.DirectiveType{
	classification.DirectiveDNR,
	classification.DirectiveLivingWill,
	classification.DirectivePowerOfAttorney,
	classification.DirectiveOrganDonation,
	classification.DirectiveDataConsent,
}

type Service struct {
	repo   directive.Repository
	alerts AlertSender
	bus    events.EventBus
	impact impactTracker

	mu     sync.Mutex
	recent []AlertRecord
}

// NewService creates the emergency bridge service
func NewService(repo directive.Repository, alerts AlertSender, bus events.EventBus) *Service {
	return &Service{repo: repo, alerts: alerts, bus: bus}
}

// maxRecentAlerts bounds the in-memory monitoring buffer
const maxRecentAlerts = 256

// Check looks up the patient's active directives and returns the most
// relevant one with a situation-adjusted confidence. A patient with no
// directive on file is a valid no-action response, not an error.
func (s *Service) Check(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	patient, err := types.NewPatientRef(req.PatientID)
	if err != nil {
		return Response{}, errors.BadRequest("patient_id: " + err.Error())
	}
	if req.HospitalID == "" {
		return Response{}, errors.BadRequest("hospital_id is required")
	}

	found, err := s.lookup(ctx, patient.Hash())
	if err != nil {
		metrics.RecordEmergencyCheck("none", "registry_unavailable")
		return Response{}, err
	}
	if found == nil {
		s.impact.recordServed(time.Since(start), false)
		metrics.RecordEmergencyCheck("none", "no_directive")
		return Response{
			ActionRequired:  false,
			DirectiveType:   "NONE",
			Message:         "No active directive on file",
			ConfidenceScore: 0,
			Timestamp:       time.Now().UTC(),
		}, nil
	}

	confidence := adjustConfidence(found, req)

	alert := AlertRecord{
		AlertID:       fmt.Sprintf("ALERT_%s_%d", patient.Hash()[:12], start.UnixNano()),
		PatientHash:   patient.Hash(),
		HospitalID:    req.HospitalID,
		Situation:     req.Situation,
		DirectiveType: string(found.Type),
		ServedAt:      time.Now().UTC(),
	}
	if err := s.alerts.Send(ctx, alert); err != nil {
		log.Printf("Failed to send emergency alert: %v", err)
	}
	s.remember(alert)

	latency := time.Since(start)
	s.impact.recordServed(latency, true)
	metrics.RecordEmergencyCheck(string(found.Type), "directive_served")
	metrics.RecordEmergencyAlert(latency)

	event := events.NewEvent(events.TypeEmergencyChecked, "emergency", map[string]any{
		"directive_type": found.Type,
		"situation":      req.Situation,
		"confidence":     confidence,
	}).WithActor("hospital", patient.Hash(), req.HospitalID)
	if err := s.bus.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish emergency event: %v", err)
	}

	return Response{
		ActionRequired:  true,
		DirectiveType:   string(found.Type),
		Message:         fmt.Sprintf("%s directive verified. %s", found.Type, found.Text),
		ConfidenceScore: confidence,
		Conditions:      found.Conditions,
		Timestamp:       time.Now().UTC(),
	}, nil
}

// lookup returns the patient's highest-priority active directive. A
// missing directive yields nil; a registry failure is returned as an
// error so an outage is never reported as "no directive".
func (s *Service) lookup(ctx context.Context, patientHash string) (*directive.Directive, error) {
	for _, directiveType := range lookupOrder {
		found, err := s.repo.FindActiveByType(ctx, patientHash, directiveType)
		if err == nil {
			return found, nil
		}
		if !errors.IsNotFound(err) {
			return nil, errors.ExternalUnavailable("directive registry", err)
		}
	}
	return nil, nil
}

// adjustConfidence nudges the stored confidence using the presenting
// situation and the vitals feed, capped at 1.0
func adjustConfidence(found *directive.Directive, req Request) float64 {
	confidence := found.Confidence

	switch req.Situation {
	case "cardiac_arrest":
		if found.Type == classification.DirectiveDNR {
			confidence += 0.05
		}
	case "respiratory_failure":
		if found.Type == classification.DirectiveDNR {
			confidence += 0.03
		}
	}

	// Flatline vitals corroborate that the directive situation applies
	if strings.Contains(req.Vitals, `pulse": 0`) || strings.Contains(req.Vitals, `bp": "0/0`) {
		confidence += 0.02
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func (s *Service) remember(alert AlertRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append(s.recent, alert)
	if len(s.recent) > maxRecentAlerts {
		s.recent = s.recent[len(s.recent)-maxRecentAlerts:]
	}
}

// RecentAlerts returns the latest served alerts, newest first
func (s *Service) RecentAlerts(limit int) []AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]AlertRecord, 0, limit)
	for i := len(s.recent) - 1; i >= len(s.recent)-limit; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

// Impact returns a snapshot of the bridge's service metrics
func (s *Service) Impact() ImpactMetrics {
	return s.impact.snapshot()
}
