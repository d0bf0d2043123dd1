// Package promadapters implements the inventory metrics interface with Prometheus collectors.
package promadapters

import (
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/librarystack/inventory-storage-go/inventory"
)

// MetricsCollector registers one vector per metric name on first use.
// The label names of that first use are fixed for the metric: later calls leave missing labels
// empty and drop labels the metric does not know.
type MetricsCollector struct {
	registerer prometheus.Registerer
	namespace  string
	buckets    []float64

	mu         sync.Mutex
	histograms map[string]*vector[*prometheus.HistogramVec]
	counters   map[string]*vector[*prometheus.CounterVec]
	gauges     map[string]*vector[*prometheus.GaugeVec]
}

type vector[V any] struct {
	vec    V
	labels []string
}

// Option defines a functional option for configuring the MetricsCollector.
type Option func(*MetricsCollector)

// WithNamespace prefixes every metric name with namespace and an underscore.
func WithNamespace(namespace string) Option {
	return func(m *MetricsCollector) {
		m.namespace = namespace
	}
}

// WithBuckets sets the histogram buckets in seconds.
func WithBuckets(buckets []float64) Option {
	return func(m *MetricsCollector) {
		m.buckets = buckets
	}
}

// NewMetricsCollector creates a collector registering its vectors on registerer.
func NewMetricsCollector(registerer prometheus.Registerer, options ...Option) *MetricsCollector {
	m := &MetricsCollector{
		registerer: registerer,
		buckets:    prometheus.DefBuckets,
		histograms: make(map[string]*vector[*prometheus.HistogramVec]),
		counters:   make(map[string]*vector[*prometheus.CounterVec]),
		gauges:     make(map[string]*vector[*prometheus.GaugeVec]),
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// Handler serves the metrics gathered by gatherer in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordDuration observes a duration in seconds.
func (m *MetricsCollector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.histograms[metric]
	if !ok {
		names := labelNames(labels)
		vec, err := register(m.registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      metric,
			Help:      "Inventory operation duration in seconds.",
			Buckets:   m.buckets,
		}, names))
		if err != nil {
			return
		}

		v = &vector[*prometheus.HistogramVec]{vec: vec, labels: names}
		m.histograms[metric] = v
	}

	v.vec.WithLabelValues(labelValues(v.labels, labels)...).Observe(duration.Seconds())
}

// IncrementCounter adds one to a counter.
func (m *MetricsCollector) IncrementCounter(metric string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.counters[metric]
	if !ok {
		names := labelNames(labels)
		vec, err := register(m.registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      metric,
			Help:      "Inventory operation counter.",
		}, names))
		if err != nil {
			return
		}

		v = &vector[*prometheus.CounterVec]{vec: vec, labels: names}
		m.counters[metric] = v
	}

	v.vec.WithLabelValues(labelValues(v.labels, labels)...).Inc()
}

// RecordValue sets a gauge.
func (m *MetricsCollector) RecordValue(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.gauges[metric]
	if !ok {
		names := labelNames(labels)
		vec, err := register(m.registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      metric,
			Help:      "Inventory current value.",
		}, names))
		if err != nil {
			return
		}

		v = &vector[*prometheus.GaugeVec]{vec: vec, labels: names}
		m.gauges[metric] = v
	}

	v.vec.WithLabelValues(labelValues(v.labels, labels)...).Set(value)
}

// register registers c, or returns the collector registered before under the same description.
func register[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	err := registerer.Register(c)
	if err == nil {
		return c, nil
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
	}

	return c, err
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func labelValues(names []string, labels map[string]string) []string {
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = labels[name]
	}

	return values
}

var _ inventory.MetricsCollector = (*MetricsCollector)(nil)
