package postgresengine

import (
	"context"
	"time"

	"github.com/librarystack/inventory-storage-go/inventory"
	"github.com/librarystack/inventory-storage-go/inventory/effectivevalues"
	"github.com/librarystack/inventory-storage-go/inventory/optimisticlock"
)

// InstanceSharer makes an Instance owned by the consortium central tenant available in a member tenant.
// It reports false when the tenant is not a consortium member.
type InstanceSharer interface {
	ShareInstance(ctx context.Context, rc inventory.RequestContext, instanceID string) (bool, error)
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine) error

// WithTenant sets the tenant used when a RequestContext carries none.
func WithTenant(tenant string) Option {
	return func(e *Engine) error {
		if tenant == "" {
			return inventory.ErrEmptyTenant
		}

		if !tenantPattern.MatchString(tenant) {
			return inventory.ErrInvalidTenant
		}

		e.defaultTenant = tenant

		return nil
	}
}

// WithLockPolicy sets the policy deciding whether the -1 version may suppress the optimistic lock.
// Without it suppression is never allowed.
func WithLockPolicy(policy optimisticlock.Policy) Option {
	return func(e *Engine) error {
		e.guard = optimisticlock.NewGuard(policy)
		return nil
	}
}

// WithMaxBatchSize sets the maximum number of records accepted by one batch call.
func WithMaxBatchSize(size int) Option {
	return func(e *Engine) error {
		if size < 1 {
			return ErrInvalidMaxBatchSize
		}

		e.maxBatchSize = size

		return nil
	}
}

// WithCalculator replaces the effective value calculator, e.g. to register more shelf key generators.
func WithCalculator(calculator effectivevalues.Calculator) Option {
	return func(e *Engine) error {
		e.calculator = calculator
		return nil
	}
}

// WithEventPublisher sets the publisher receiving the DomainEvents of every committed mutation.
func WithEventPublisher(publisher inventory.EventPublisher) Option {
	return func(e *Engine) error {
		e.publisher = publisher
		return nil
	}
}

// WithInstanceSharer enables sharing of missing central Instances when HoldingsRecords are created.
func WithInstanceSharer(sharer InstanceSharer) Option {
	return func(e *Engine) error {
		e.sharer = sharer
		return nil
	}
}

// WithClock sets the clock used for metadata and status dates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		e.now = now
		return nil
	}
}

// WithLogger sets the logger for the Engine.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Info level: record counts, durations, lock conflicts (production-safe)
// Warn level: non-critical issues like failed rollbacks
// Error level: failures that cause an operation to fail.
func WithLogger(logger inventory.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Engine.
// It receives the same messages as the Logger, with trace correlation taken from the context.
func WithContextualLogger(logger inventory.ContextualLogger) Option {
	return func(e *Engine) error {
		e.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine.
// It receives operation durations, record counts, lock conflicts and database errors.
func WithMetrics(collector inventory.MetricsCollector) Option {
	return func(e *Engine) error {
		e.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Engine.
// Every public operation runs in its own span.
func WithTracing(collector inventory.TracingCollector) Option {
	return func(e *Engine) error {
		e.tracingCollector = collector
		return nil
	}
}
