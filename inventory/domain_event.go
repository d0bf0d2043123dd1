package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType is the kind of change a DomainEvent describes.
type EventType string

const (
	EventTypeCreate     EventType = "CREATE"
	EventTypeUpdate     EventType = "UPDATE"
	EventTypeDelete     EventType = "DELETE"
	EventTypeAllRemoved EventType = "DELETE_ALL"
)

// EntityKind names the entity type an event belongs to. It doubles as the topic suffix.
type EntityKind string

const (
	EntityInstance       EntityKind = "instance"
	EntityHoldingsRecord EntityKind = "holdings-record"
	EntityItem           EntityKind = "item"
)

// EventPublisher hands committed DomainEvents to the message bus.
// Publish returns without waiting for the bus, and publishing outlives the caller's context.
// Events passed in one call, and events of one key across calls, reach the bus in the given order.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent)
}

// AllRemovedKey is the message key of the synthetic event emitted when all records of a type were removed.
const AllRemovedKey = "00000000-0000-0000-0000-000000000000"

// ErrInvalidEventSnapshot is returned when an old or new snapshot could not be encoded.
var ErrInvalidEventSnapshot = errors.New("event snapshot could not be encoded")

// DomainEvent is the change notification emitted after a committed mutation.
// CREATE has no Old, DELETE has no New, DELETE_ALL has neither.
type DomainEvent struct {
	EventID   string          `json:"eventId"`
	Timestamp int64           `json:"eventTs"`
	Type      EventType       `json:"type"`
	Tenant    string          `json:"tenant"`
	Old       json.RawMessage `json:"old,omitempty"`
	New       json.RawMessage `json:"new,omitempty"`
	Entity    EntityKind      `json:"-"`
	Key       string          `json:"-"`
}

// Topic returns the logical topic of the event, e.g. "inventory.item".
func (e DomainEvent) Topic() string {
	return "inventory." + string(e.Entity)
}

// DecodeNew decodes the new snapshot into v.
func (e DomainEvent) DecodeNew(v any) error {
	return DecodeDocument(e.New, v)
}

// DecodeOld decodes the old snapshot into v.
func (e DomainEvent) DecodeOld(v any) error {
	return DecodeDocument(e.Old, v)
}

// BuildCreatedEvent builds a CREATE event for a newly stored record.
func BuildCreatedEvent(entity EntityKind, tenant string, key string, created any) (DomainEvent, error) {
	return buildEvent(entity, EventTypeCreate, tenant, key, nil, created)
}

// BuildUpdatedEvent builds an UPDATE event carrying both full snapshots.
func BuildUpdatedEvent(entity EntityKind, tenant string, key string, old, updated any) (DomainEvent, error) {
	return buildEvent(entity, EventTypeUpdate, tenant, key, old, updated)
}

// BuildDeletedEvent builds a DELETE event for a removed record.
func BuildDeletedEvent(entity EntityKind, tenant string, key string, deleted any) (DomainEvent, error) {
	return buildEvent(entity, EventTypeDelete, tenant, key, deleted, nil)
}

// BuildAllRemovedEvent builds the single synthetic event of a delete-all.
func BuildAllRemovedEvent(entity EntityKind, tenant string) DomainEvent {
	event, _ := buildEvent(entity, EventTypeAllRemoved, tenant, AllRemovedKey, nil, nil)
	return event
}

func buildEvent(entity EntityKind, eventType EventType, tenant, key string, old, updated any) (DomainEvent, error) {
	event := DomainEvent{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Type:      eventType,
		Tenant:    tenant,
		Entity:    entity,
		Key:       key,
	}

	var err error
	if event.Old, err = encodeSnapshot(old); err != nil {
		return DomainEvent{}, err
	}

	if event.New, err = encodeSnapshot(updated); err != nil {
		return DomainEvent{}, err
	}

	return event, nil
}

func encodeSnapshot(snapshot any) (json.RawMessage, error) {
	if snapshot == nil {
		return nil, nil
	}

	data, err := EncodeDocument(snapshot)
	if err != nil {
		return nil, errors.Join(ErrInvalidEventSnapshot, err)
	}

	if string(data) == "null" {
		return nil, nil
	}

	return data, nil
}
