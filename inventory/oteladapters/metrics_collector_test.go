package oteladapters_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/librarystack/inventory-storage-go/inventory/oteladapters"
)

func givenCollector() (*oteladapters.MetricsCollector, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return oteladapters.NewMetricsCollector(provider.Meter("test")), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Aggregation {
	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics))

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}

	t.Fatalf("metric %s not found", name)

	return nil
}

func Test_MetricsCollector_RecordDuration_ShouldRecordSeconds(t *testing.T) {
	collector, reader := givenCollector()

	collector.RecordDuration("inventory_operation_duration_seconds", 250*time.Millisecond,
		map[string]string{"operation": "upsert_items", "status": "success"})

	histogram, ok := collect(t, reader, "inventory_operation_duration_seconds").(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histogram.DataPoints, 1)

	dataPoint := histogram.DataPoints[0]
	assert.Equal(t, uint64(1), dataPoint.Count)
	assert.InDelta(t, 0.25, dataPoint.Sum, 0.0001)

	expected := attribute.NewSet(attribute.String("operation", "upsert_items"), attribute.String("status", "success"))
	assert.True(t, dataPoint.Attributes.Equals(&expected))
}

func Test_MetricsCollector_IncrementCounter_ShouldCountConcurrentCalls(t *testing.T) {
	collector, reader := givenCollector()
	labels := map[string]string{"operation": "update_item", "error_type": "lock_conflict"}

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.IncrementCounterContext(context.Background(), "inventory_lock_conflicts_total", labels)
		}()
	}
	wg.Wait()

	sum, ok := collect(t, reader, "inventory_lock_conflicts_total").(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(20), sum.DataPoints[0].Value)
}

func Test_MetricsCollector_RecordValue_ShouldKeepTheLastValue(t *testing.T) {
	collector, reader := givenCollector()
	labels := map[string]string{"operation": "update_holdings"}

	collector.RecordValue("inventory_items_cascaded", 3, labels)
	collector.RecordValue("inventory_items_cascaded", 7, labels)

	gauge, ok := collect(t, reader, "inventory_items_cascaded").(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, 7.0, gauge.DataPoints[0].Value)
}
