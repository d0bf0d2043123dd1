package consortium

import "context"

const (
	logMsgSyncStarted    = "updating shadow instances"
	logMsgSyncFailed     = "shadow instance synchronization failed"
	logMsgShadowUpdated  = "shadow instance has been updated"
	logMsgShadowFailed   = "error during shadow instance update"
	logAttrError         = "error"
	logAttrTenant        = "tenant"
	logAttrInstanceID    = "instance_id"
	logAttrTenantCount   = "tenant_count"
	metricShadowsUpdated = "inventory_shadow_instances_updated_total"
	metricShadowsFailed  = "inventory_shadow_instances_failed_total"
)

func (s *Synchronizer) logInfoContext(ctx context.Context, message string, args ...any) {
	if s.logger != nil {
		s.logger.Info(message, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, message, args...)
	}
}

func (s *Synchronizer) logWarnContext(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if s.logger != nil {
		s.logger.Warn(message, allArgs...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, message, allArgs...)
	}
}

func (s *Synchronizer) incrementCounter(metric string) {
	if s.metricsCollector != nil {
		s.metricsCollector.IncrementCounter(metric, nil)
	}
}
