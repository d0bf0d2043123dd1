package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/librarystack/inventory-storage-go/inventory"
)

const (
	logMsgSQLExecuted          = "executed sql for: "
	logMsgOperation            = "inventory operation: "
	logMsgBeginTxFailed        = "failed to begin transaction"
	logMsgCommitFailed         = "failed to commit transaction"
	logMsgRollbackFailed       = "failed to roll back transaction"
	logMsgCloseRowsFailed      = "failed to close database rows"
	logMsgBuildQueryFailed     = "failed to build query"
	logMsgDBQueryFailed        = "database query execution failed"
	logMsgDBExecFailed         = "database execution failed"
	logMsgLockConflict         = "optimistic lock conflict detected"
	logMsgRecordsWritten       = "records written"
	logMsgItemsCascaded        = "items recomputed for changed holdings record"
	logMsgUpdateSkipped        = "update skipped, record unchanged"
	logMsgShareInstanceFailed  = "failed to share instance from central tenant"
	logMsgRefreshLeaseFailed   = "failed to acquire materialized view refresh lease"
	logMsgRefreshFailed        = "failed to refresh materialized view"
	logMsgRefreshReleaseFailed = "failed to release materialized view refresh lease"
	logMsgViewStatusFailed     = "error checking materialized view status"
	logMsgViewRefreshed        = "materialized view refreshed"
	logAttrError               = "error"
	logAttrQuery               = "query"
	logAttrDurationMS          = "duration_ms"
	logAttrEntity              = "entity"
	logAttrRecordCount         = "record_count"
	logAttrRecordID            = "record_id"
	logAttrTenant              = "tenant"
	logAttrView                = "view"
	logAttrExpected            = "expected"
	logAttrWritten             = "written"
	metricOperationDuration    = "inventory_operation_duration_seconds"
	metricRecordsWritten       = "inventory_records_written"
	metricEventsPublished      = "inventory_events_published"
	metricDatabaseErrors       = "inventory_database_errors_total"
	metricLockConflicts        = "inventory_lock_conflicts_total"
	metricItemsCascaded        = "inventory_items_cascaded"
	spanNamePrefix             = "inventory."
	spanAttrOperation          = "operation"
	spanAttrTenant             = "tenant"
	spanAttrErrorType          = "error_type"
	spanAttrDurationMS         = "duration_ms"
	labelStatus                = "status"
	labelEntity                = "entity"
	statusSuccess              = "success"
	statusError                = "error"
	operationPublish           = "publish"
	errorTypeLockConflict      = "lock_conflict"
	errorTypeClient            = "client_error"
	errorTypeNotFound          = "not_found"
	errorTypeServer            = "server_error"
)

// logQueryWithDuration logs SQL statements with execution time at debug level if a logger is configured.
func (e *Engine) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	if e.logger != nil {
		e.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, e.toMilliseconds(duration), logAttrQuery, sqlQuery)
	}

	if e.contextualLogger != nil {
		e.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action,
			logAttrDurationMS, e.toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if a logger is configured.
func (e *Engine) logOperation(ctx context.Context, action string, args ...any) {
	if e.logger != nil {
		e.logger.Info(logMsgOperation+action, args...)
	}

	if e.contextualLogger != nil {
		e.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
	}
}

// logWarnContext logs non-critical failures at warn level.
func (e *Engine) logWarnContext(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if e.logger != nil {
		e.logger.Warn(message, allArgs...)
	}

	if e.contextualLogger != nil {
		e.contextualLogger.WarnContext(ctx, message, allArgs...)
	}
}

// logErrorContext logs error information at error level.
func (e *Engine) logErrorContext(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if e.logger != nil {
		e.logger.Error(message, allArgs...)
	}

	if e.contextualLogger != nil {
		e.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (e *Engine) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// recordDurationMetricsContext records duration metrics with context if the collector supports it.
func (e *Engine) recordDurationMetricsContext(
	ctx context.Context,
	metricName string,
	duration time.Duration,
	operation, status string,
) {
	if e.metricsCollector == nil {
		return
	}

	labels := map[string]string{spanAttrOperation: operation, labelStatus: status}

	// Use context-aware method if available
	if contextualCollector, ok := e.metricsCollector.(inventory.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricName, duration, labels)
	} else {
		e.metricsCollector.RecordDuration(metricName, duration, labels)
	}
}

// recordValueMetricsContext records value metrics with context if the collector supports it.
func (e *Engine) recordValueMetricsContext(
	ctx context.Context,
	metricName string,
	value float64,
	operation, status string,
) {
	if e.metricsCollector == nil {
		return
	}

	labels := map[string]string{spanAttrOperation: operation, labelStatus: status}

	if contextualCollector, ok := e.metricsCollector.(inventory.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metricName, value, labels)
	} else {
		e.metricsCollector.RecordValue(metricName, value, labels)
	}
}

// recordErrorMetricsContext counts failed operations by error type.
func (e *Engine) recordErrorMetricsContext(ctx context.Context, operation, errorType string) {
	if e.metricsCollector == nil {
		return
	}

	metricName := metricDatabaseErrors
	if errorType == errorTypeLockConflict {
		metricName = metricLockConflicts
	}

	labels := map[string]string{spanAttrOperation: operation, labelStatus: statusError, spanAttrErrorType: errorType}

	if contextualCollector, ok := e.metricsCollector.(inventory.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricName, labels)
	} else {
		e.metricsCollector.IncrementCounter(metricName, labels)
	}
}

// startOperationSpan starts a tracing span if the tracing collector is configured.
func (e *Engine) startOperationSpan(ctx context.Context, operation, tenant string) (context.Context, inventory.SpanContext) {
	if e.tracingCollector == nil {
		return ctx, nil
	}

	return e.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, map[string]string{
		spanAttrOperation: operation,
		spanAttrTenant:    tenant,
	})
}

// finishOperation finishes the span of an operation and records its metrics.
func (e *Engine) finishOperation(
	ctx context.Context,
	span inventory.SpanContext,
	operation string,
	duration time.Duration,
	err error,
) {
	status := statusSuccess
	attrs := map[string]string{spanAttrDurationMS: fmt.Sprintf("%.2f", e.toMilliseconds(duration))}

	if err != nil {
		status = statusError
		errorType := getErrorType(err)
		attrs[spanAttrErrorType] = errorType
		e.recordErrorMetricsContext(ctx, operation, errorType)
	}

	e.recordDurationMetricsContext(ctx, metricOperationDuration, duration, operation, status)

	if e.tracingCollector != nil && span != nil {
		e.tracingCollector.FinishSpan(span, status, attrs)
	}
}

// getErrorType categorizes errors for metrics and span attributes.
func getErrorType(err error) string {
	switch {
	case errors.Is(err, inventory.ErrOptimisticLockConflict):
		return errorTypeLockConflict
	case errors.Is(err, inventory.ErrNotFound):
		return errorTypeNotFound
	case inventory.ClassifyOutcome(err) == inventory.OutcomeClientError:
		return errorTypeClient
	default:
		return errorTypeServer
	}
}
