package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/librarystack/inventory-storage-go/inventory/oteladapters"
)

func givenTracingCollector() (*oteladapters.TracingCollector, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	return oteladapters.NewTracingCollector(provider.Tracer("test")), exporter
}

func attributeValue(span tracetest.SpanStub, key string) (string, bool) {
	for _, attr := range span.Attributes {
		if attr.Key == attribute.Key(key) {
			return attr.Value.AsString(), true
		}
	}

	return "", false
}

func Test_TracingCollector_ShouldRecordSpanWithAttributes(t *testing.T) {
	collector, exporter := givenTracingCollector()

	ctx, spanCtx := collector.StartSpan(context.Background(), "inventory.upsert_items",
		map[string]string{"operation": "upsert_items", "tenant": "diku"})
	assert.True(t, trace.SpanContextFromContext(ctx).IsValid())

	spanCtx.AddAttribute("record_count", "3")
	collector.FinishSpan(spanCtx, "success", map[string]string{"duration_ms": "1.25"})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "inventory.upsert_items", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)

	for key, expected := range map[string]string{"tenant": "diku", "record_count": "3", "duration_ms": "1.25"} {
		value, ok := attributeValue(spans[0], key)
		assert.True(t, ok, key)
		assert.Equal(t, expected, value)
	}
}

func Test_TracingCollector_ShouldDescribeFailuresByErrorType(t *testing.T) {
	testCases := []struct {
		errorType   string
		description string
	}{
		{errorType: "lock_conflict", description: "Optimistic lock conflict"},
		{errorType: "not_found", description: "Record not found"},
		{errorType: "client_error", description: "Rejected request"},
		{errorType: "server_error", description: "Operation failed"},
	}

	for _, tc := range testCases {
		t.Run(tc.errorType, func(t *testing.T) {
			collector, exporter := givenTracingCollector()

			_, spanCtx := collector.StartSpan(context.Background(), "inventory.update_item", nil)
			collector.FinishSpan(spanCtx, "error", map[string]string{"error_type": tc.errorType})

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, codes.Error, spans[0].Status.Code)
			assert.Equal(t, tc.description, spans[0].Status.Description)
		})
	}
}

func Test_TracingCollector_When_StatusIsUnknown_ShouldRecordItAsAttribute(t *testing.T) {
	collector, exporter := givenTracingCollector()

	_, spanCtx := collector.StartSpan(context.Background(), "inventory.refresh_view", nil)
	collector.FinishSpan(spanCtx, "skipped", nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)

	value, ok := attributeValue(spans[0], "status")
	assert.True(t, ok)
	assert.Equal(t, "skipped", value)
}

type foreignSpan struct{}

func (foreignSpan) SetStatus(string)            {}
func (foreignSpan) AddAttribute(string, string) {}

func Test_TracingCollector_When_SpanIsForeign_ShouldIgnoreIt(t *testing.T) {
	collector, exporter := givenTracingCollector()

	assert.NotPanics(t, func() {
		collector.FinishSpan(foreignSpan{}, "success", nil)
	})
	assert.Empty(t, exporter.GetSpans())
}
