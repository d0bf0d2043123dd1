package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/librarystack/inventory-storage-go/inventory"
)

const attrErrorType = "error_type"

// TracingCollector starts one OpenTelemetry span per inventory operation.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a collector on a tracer of the application's TracerProvider.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan starts a span carrying attrs and returns the context holding it.
func (t *TracingCollector) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, inventory.SpanContext) {
	spanCtx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attributesOf(attrs)...))

	return spanCtx, &OTelSpanContext{span: span}
}

// FinishSpan sets the final attributes and status of a span started by StartSpan and ends it.
// Spans of other collectors are ignored.
func (t *TracingCollector) FinishSpan(spanCtx inventory.SpanContext, status string, attrs map[string]string) {
	otelSpanCtx, ok := spanCtx.(*OTelSpanContext)
	if !ok {
		return
	}

	otelSpanCtx.span.SetAttributes(attributesOf(attrs)...)
	otelSpanCtx.setSpanStatus(status, attrs[attrErrorType])
	otelSpanCtx.span.End()
}

var _ inventory.TracingCollector = (*TracingCollector)(nil)

// OTelSpanContext wraps an OpenTelemetry span.
type OTelSpanContext struct {
	span trace.Span
}

// SetStatus sets the span status.
func (s *OTelSpanContext) SetStatus(status string) {
	s.setSpanStatus(status, "")
}

// AddAttribute adds a string attribute to the span.
func (s *OTelSpanContext) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

// setSpanStatus maps an operation status and its error type onto a span status.
func (s *OTelSpanContext) setSpanStatus(status, errorType string) {
	switch status {
	case "success", string(inventory.OutcomeNoContent):
		s.span.SetStatus(codes.Ok, "")
	case "error", string(inventory.OutcomeServerError):
		s.span.SetStatus(codes.Error, describeError(errorType))
	case string(inventory.OutcomeConflict):
		s.span.SetStatus(codes.Error, describeError("lock_conflict"))
	case "canceled", "cancelled":
		s.span.SetStatus(codes.Error, "Operation canceled")
	default:
		s.span.SetAttributes(attribute.String("status", status))
	}
}

func describeError(errorType string) string {
	switch errorType {
	case "lock_conflict":
		return "Optimistic lock conflict"
	case "not_found":
		return "Record not found"
	case "client_error":
		return "Rejected request"
	default:
		return "Operation failed"
	}
}

var _ inventory.SpanContext = (*OTelSpanContext)(nil)
