package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/echoledger/platform/internal/shared/events"
	"github.com/echoledger/platform/internal/shared/metrics"
	"github.com/echoledger/platform/internal/shared/types"
)

// Subscriber listens to domain events and creates audit entries
type Subscriber struct {
	repo Repository
	bus  events.EventBus
}

// NewSubscriber creates a new audit subscriber
func NewSubscriber(repo Repository, bus events.EventBus) *Subscriber {
	return &Subscriber{repo: repo, bus: bus}
}

// Start subscribes to all relevant events
func (s *Subscriber) Start(ctx context.Context) error {
	patterns := []struct {
		pattern      string
		consumerName string
	}{
		{"directive.*", "audit-directive-subscriber"},
		{"emergency.*", "audit-emergency-subscriber"},
		{"execution.*", "audit-execution-subscriber"},
	}

	for _, p := range patterns {
		if err := s.bus.Subscribe(ctx, p.pattern, p.consumerName, s.HandleEvent); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", p.pattern, err)
		}
	}

	return nil
}

// HandleEvent processes one incoming event and appends an audit entry
func (s *Subscriber) HandleEvent(ctx context.Context, event events.Event) error {
	entry := s.eventToEntry(event)
	if entry == nil {
		return nil
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	metrics.RecordAuditEntry()

	return nil
}

// eventToEntry converts a domain event to an audit entry
func (s *Subscriber) eventToEntry(event events.Event) *Entry {
	parts := strings.SplitN(event.Type, ".", 2)
	if len(parts) < 2 {
		return nil
	}

	resourceType := parts[0]
	action := event.Type

	var resourceID *types.ID
	if data, ok := event.Data.(map[string]any); ok {
		idFields := []string{
			resourceType + "_id",
			"id",
		}
		for _, field := range idFields {
			if idVal, ok := data[field]; ok {
				if idStr, ok := idVal.(string); ok {
					id := types.ID(idStr)
					resourceID = &id
					break
				}
				if id, ok := idVal.(types.ID); ok {
					resourceID = &id
					break
				}
			}
		}
	}

	actorType := ActorTypeSystem
	switch event.ActorType {
	case "patient":
		actorType = ActorTypePatient
	case "clinician":
		actorType = ActorTypeClinician
	case "hospital":
		actorType = ActorTypeHospital
	}

	// Truncate timestamp to microseconds for deterministic hash verification
	entry := &Entry{
		ID:            types.NewID(),
		Timestamp:     event.Timestamp.UTC().Truncate(time.Microsecond),
		ActorType:     actorType,
		PatientHash:   event.PatientHash,
		FacilityID:    event.FacilityID,
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		CorrelationID: event.CorrelationID,
	}

	if data, ok := event.Data.(map[string]any); ok {
		entry.Changes = data
	}

	return entry
}
