package promadapters_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/librarystack/inventory-storage-go/inventory/promadapters"
)

func Test_IncrementCounter_ShouldCountPerLabelSet(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollector(registry)

	// act
	collector.IncrementCounter("inventory_lock_conflicts_total", map[string]string{"operation": "update_item", "status": "error"})
	collector.IncrementCounter("inventory_lock_conflicts_total", map[string]string{"operation": "update_item", "status": "error"})
	collector.IncrementCounter("inventory_lock_conflicts_total", map[string]string{"operation": "upsert_items", "status": "error"})

	// assert
	expected := `
# HELP inventory_lock_conflicts_total Inventory operation counter.
# TYPE inventory_lock_conflicts_total counter
inventory_lock_conflicts_total{operation="update_item",status="error"} 2
inventory_lock_conflicts_total{operation="upsert_items",status="error"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "inventory_lock_conflicts_total"))
}

func Test_IncrementCounter_When_LabelsDiffer_ShouldKeepTheFirstLabelNames(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollector(registry)

	// act
	collector.IncrementCounter("inventory_domain_events_sent_total", map[string]string{"topic": "inventory.item"})
	collector.IncrementCounter("inventory_domain_events_sent_total", map[string]string{"topic": "inventory.item", "extra": "x"})
	collector.IncrementCounter("inventory_domain_events_sent_total", nil)

	// assert
	expected := `
# HELP inventory_domain_events_sent_total Inventory operation counter.
# TYPE inventory_domain_events_sent_total counter
inventory_domain_events_sent_total{topic=""} 1
inventory_domain_events_sent_total{topic="inventory.item"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "inventory_domain_events_sent_total"))
}

func Test_RecordDuration_ShouldObserveSeconds(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollector(registry, WithNamespace("folio"), WithBuckets([]float64{0.1, 1}))

	// act
	collector.RecordDuration("inventory_operation_duration_seconds", 500*time.Millisecond, map[string]string{"operation": "create_item"})

	// assert
	expected := `
# HELP folio_inventory_operation_duration_seconds Inventory operation duration in seconds.
# TYPE folio_inventory_operation_duration_seconds histogram
folio_inventory_operation_duration_seconds_bucket{operation="create_item",le="0.1"} 0
folio_inventory_operation_duration_seconds_bucket{operation="create_item",le="1"} 1
folio_inventory_operation_duration_seconds_bucket{operation="create_item",le="+Inf"} 1
folio_inventory_operation_duration_seconds_sum{operation="create_item"} 0.5
folio_inventory_operation_duration_seconds_count{operation="create_item"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "folio_inventory_operation_duration_seconds"))
}

func Test_RecordValue_ShouldSetTheGauge(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollector(registry)

	// act
	collector.RecordValue("inventory_items_cascaded", 4, map[string]string{"operation": "holdings"})
	collector.RecordValue("inventory_items_cascaded", 2, map[string]string{"operation": "holdings"})

	// assert
	count, err := testutil.GatherAndCount(registry, "inventory_items_cascaded")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expected := `
# HELP inventory_items_cascaded Inventory current value.
# TYPE inventory_items_cascaded gauge
inventory_items_cascaded{operation="holdings"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "inventory_items_cascaded"))
}

func Test_NewMetricsCollector_When_RegistryIsShared_ShouldReuseRegisteredVectors(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	first := NewMetricsCollector(registry)
	second := NewMetricsCollector(registry)
	labels := map[string]string{"operation": "delete_item"}

	// act
	first.IncrementCounter("inventory_operations_total", labels)
	second.IncrementCounter("inventory_operations_total", labels)

	// assert
	expected := `
# HELP inventory_operations_total Inventory operation counter.
# TYPE inventory_operations_total counter
inventory_operations_total{operation="delete_item"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "inventory_operations_total"))
}

func Test_Handler_ShouldServeTheTextFormat(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	NewMetricsCollector(registry).IncrementCounter("inventory_operations_total", map[string]string{"operation": "get_item"})
	server := httptest.NewServer(Handler(registry))
	defer server.Close()

	// act
	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `inventory_operations_total{operation="get_item"} 1`)
}
