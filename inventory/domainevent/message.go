package domainevent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/librarystack/inventory-storage-go/inventory"
)

// Transport headers of every Message.
const (
	HeaderTenant   = "x-okapi-tenant"
	HeaderOkapiURL = "x-okapi-url"
	HeaderTraceID  = "x-okapi-trace-id"
)

const topicPrefix = "inventory."

// Message is one DomainEvent in its bus representation.
// Key is the record id, or inventory.AllRemovedKey for the event of a delete-all.
type Message struct {
	Topic   string
	Tenant  string
	Key     string
	Headers map[string]string
	Value   []byte
}

// Producer delivers Messages to the bus. Send returns once the bus accepted the Message.
// Errors wrapping ErrPermanent are not retried.
type Producer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMessage encodes a DomainEvent. The headers are taken from the RequestContext carried by ctx,
// the trace id falls back to the span of ctx.
func NewMessage(ctx context.Context, event inventory.DomainEvent) (Message, error) {
	value, err := inventory.EncodeDocument(event)
	if err != nil {
		return Message{}, err
	}

	headers := map[string]string{HeaderTenant: event.Tenant}

	rc, _ := inventory.RequestFromContext(ctx)
	if rc.OkapiURL != "" {
		headers[HeaderOkapiURL] = rc.OkapiURL
	}

	traceID := rc.TraceID
	if spanContext := trace.SpanContextFromContext(ctx); traceID == "" && spanContext.HasTraceID() {
		traceID = spanContext.TraceID().String()
	}

	if traceID != "" {
		headers[HeaderTraceID] = traceID
	}

	return Message{
		Topic:   event.Topic(),
		Tenant:  event.Tenant,
		Key:     event.Key,
		Headers: headers,
		Value:   value,
	}, nil
}

// ErrUnknownTopic is returned when a Message topic names no entity kind.
var ErrUnknownTopic = errors.New("message topic names no inventory entity")

// DecodeMessage restores the DomainEvent carried by a Message.
func DecodeMessage(msg Message) (inventory.DomainEvent, error) {
	var event inventory.DomainEvent
	if err := inventory.DecodeDocument(msg.Value, &event); err != nil {
		return inventory.DomainEvent{}, err
	}

	switch entity := inventory.EntityKind(strings.TrimPrefix(msg.Topic, topicPrefix)); entity {
	case inventory.EntityInstance, inventory.EntityHoldingsRecord, inventory.EntityItem:
		event.Entity = entity
	default:
		return inventory.DomainEvent{}, fmt.Errorf("%w: %s", ErrUnknownTopic, msg.Topic)
	}

	event.Key = msg.Key
	if event.Tenant == "" {
		event.Tenant = msg.Tenant
	}

	return event, nil
}
