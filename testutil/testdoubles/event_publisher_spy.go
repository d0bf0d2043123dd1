package testdoubles

import (
	"context"
	"sync"

	"github.com/librarystack/inventory-storage-go/inventory"
)

// EventPublisherSpy is an EventPublisher that keeps every published DomainEvent in order.
type EventPublisherSpy struct {
	events []inventory.DomainEvent
	calls  int
	mu     sync.Mutex
}

// NewEventPublisherSpy creates a new EventPublisherSpy.
func NewEventPublisherSpy() *EventPublisherSpy {
	return &EventPublisherSpy{}
}

// Publish implements the EventPublisher interface.
func (s *EventPublisherSpy) Publish(_ context.Context, events ...inventory.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.events = append(s.events, events...)
}

// Events returns a copy of all published events.
func (s *EventPublisherSpy) Events() []inventory.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]inventory.DomainEvent(nil), s.events...)
}

// EventsOf returns the published events of one entity and type.
func (s *EventPublisherSpy) EventsOf(entity inventory.EntityKind, eventType inventory.EventType) []inventory.DomainEvent {
	matching := make([]inventory.DomainEvent, 0)
	for _, event := range s.Events() {
		if event.Entity == entity && event.Type == eventType {
			matching = append(matching, event)
		}
	}

	return matching
}

// Calls returns how often Publish was called.
func (s *EventPublisherSpy) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

// Reset forgets all published events.
func (s *EventPublisherSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = nil
	s.calls = 0
}

// Compile-time check to ensure EventPublisherSpy implements EventPublisher interface.
var _ inventory.EventPublisher = (*EventPublisherSpy)(nil)
