package domainevent

import (
	"context"
	"time"

	"github.com/librarystack/inventory-storage-go/inventory"
)

const (
	logMsgSendFailed     = "unable to send domain event"
	logMsgPublisherClose = "domain event publisher closed, dropping events"
	logAttrError         = "error"
	logAttrTopic         = "topic"
	logAttrKey           = "key"
	logAttrTenant        = "tenant"
	logAttrEventID       = "event_id"
	logAttrEventType     = "event_type"
	logAttrAttempts      = "attempts"
	logAttrCount         = "count"
	metricEventsSent     = "inventory_domain_events_sent_total"
	metricEventsFailed   = "inventory_domain_events_failed_total"
	metricEventsDropped  = "inventory_domain_events_dropped_total"
	metricSendDuration   = "inventory_domain_event_send_duration_seconds"
	labelTopic           = "topic"
	labelErrorType       = "error_type"
)

func (p *Publisher) logErrorContext(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if p.logger != nil {
		p.logger.Error(message, allArgs...)
	}

	if p.contextualLogger != nil {
		p.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}

func (p *Publisher) logWarnContext(ctx context.Context, message string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(message, args...)
	}

	if p.contextualLogger != nil {
		p.contextualLogger.WarnContext(ctx, message, args...)
	}
}

func (p *Publisher) incrementCounterContext(ctx context.Context, metric string, labels map[string]string) {
	if p.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := p.metricsCollector.(inventory.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metric, labels)
	} else {
		p.metricsCollector.IncrementCounter(metric, labels)
	}
}

func (p *Publisher) recordDurationContext(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if p.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := p.metricsCollector.(inventory.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metric, duration, labels)
	} else {
		p.metricsCollector.RecordDuration(metric, duration, labels)
	}
}
