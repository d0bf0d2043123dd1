package redisbus

import "context"

const (
	logMsgUndecodable          = "discarding undecodable stream entry"
	logMsgHandlerFailed        = "handling stream entry failed, leaving it pending"
	logMsgDeadLettered         = "dead-lettering stream entry after too many deliveries"
	logAttrError               = "error"
	logAttrStream              = "stream"
	logAttrEntryID             = "entry_id"
	logAttrEventID             = "event_id"
	logAttrDeliveries          = "deliveries"
	metricMessagesHandled      = "inventory_bus_messages_handled_total"
	metricMessagesFailed       = "inventory_bus_messages_failed_total"
	metricMessagesDiscarded    = "inventory_bus_messages_discarded_total"
	metricMessagesDeadLettered = "inventory_bus_messages_dead_lettered_total"
	labelStream                = "stream"
)

func (c *Consumer) logErrorContext(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if c.logger != nil {
		c.logger.Error(message, allArgs...)
	}

	if c.contextualLogger != nil {
		c.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}

func (c *Consumer) logWarnContext(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if c.logger != nil {
		c.logger.Warn(message, allArgs...)
	}

	if c.contextualLogger != nil {
		c.contextualLogger.WarnContext(ctx, message, allArgs...)
	}
}

func (c *Consumer) incrementCounter(metric, stream string) {
	if c.metricsCollector != nil {
		c.metricsCollector.IncrementCounter(metric, map[string]string{labelStream: stream})
	}
}
