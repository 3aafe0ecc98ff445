package shared

import "context"

// EventHandler reacts to ledger events published after commit
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the types the handler wants; empty means all
	EventTypes() []string
}

// EventPublisher is what the engines see of the bus. Publishing happens only
// after the writing transaction commits, and never for replayed documents.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus is an EventPublisher with handler registration and a lifecycle
type EventBus interface {
	EventPublisher
	// Subscribe registers handler for eventTypes, or for its own EventTypes when none are given
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NopEventPublisher discards all events.
type NopEventPublisher struct{}

// Publish implements EventPublisher
func (NopEventPublisher) Publish(context.Context, ...DomainEvent) error { return nil }
