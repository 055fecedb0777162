package events

import "context"

// Well-known event types published by the platform
const (
	TypeDirectiveClassified = "directive.classified"
	TypeDirectiveRegistered = "directive.registered"
	TypeDirectiveRevoked    = "directive.revoked"
	TypeEmergencyChecked    = "emergency.checked"
	TypeExecutionCompleted  = "execution.completed"
)

// EventBus defines the interface for event publishing and subscription
type EventBus interface {
	// Publish publishes an event to the bus
	Publish(ctx context.Context, event Event) error

	// Subscribe creates a subscription to events matching a pattern
	Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error

	// Close closes the event bus connection
	Close()

	// Health checks the event bus connection
	Health() error
}

// NoopBus discards all events. Used when the event store is disabled.
type NoopBus struct{}

func (NoopBus) Publish(ctx context.Context, event Event) error { return nil }
func (NoopBus) Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error {
	return nil
}
func (NoopBus) Close()        {}
func (NoopBus) Health() error { return nil }

// Ensure Bus implements EventBus
var _ EventBus = (*Bus)(nil)
var _ EventBus = NoopBus{}
