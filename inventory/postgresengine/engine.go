package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/librarystack/inventory-storage-go/inventory"
	"github.com/librarystack/inventory-storage-go/inventory/effectivevalues"
	"github.com/librarystack/inventory-storage-go/inventory/optimisticlock"
	"github.com/librarystack/inventory-storage-go/inventory/postgresengine/internal/adapters"
)

// DefaultMaxBatchSize is the maximum number of records of one batch call unless configured otherwise.
const DefaultMaxBatchSize = 10000

const (
	dialectPostgres      = "postgres"
	schemaSuffix         = "_mod_inventory_storage"
	tableInstance        = "instance"
	tableHoldings        = "holdings_record"
	tableItem            = "item"
	tableSubjectSource   = "instance_subject_source"
	tableSubjectType     = "instance_subject_type"
	tableHRIDSettings    = "hrid_settings"
	tableMatViewMetadata = "mat_view_metadata"
	colID                = "id"
	colJsonb             = "jsonb"
	colInstanceID        = "instanceid"
	colHoldingsRecordID  = "holdingsrecordid"
	colSubjectInstanceID = "instance_id"
	colSourceID          = "source_id"
	colTypeID            = "type_id"
	castUUID             = "?::uuid"
	castJsonb            = "?::jsonb"
	selectJsonbText      = "jsonb::text"
)

// ErrInvalidMaxBatchSize is returned when a batch size limit below one is configured.
var ErrInvalidMaxBatchSize = errors.New("max batch size must be at least 1")

var tenantPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Engine is the storage engine of the Instance, HoldingsRecord and Item hierarchy.
// It keeps the effective values of Items consistent with their HoldingsRecords, enforces
// the optimistic lock protocol and hands a DomainEvent per committed mutation to the publisher.
type Engine struct {
	db               adapters.DBAdapter
	defaultTenant    string
	guard            optimisticlock.Guard
	calculator       effectivevalues.Calculator
	maxBatchSize     int
	publisher        inventory.EventPublisher
	sharer           InstanceSharer
	now              func() time.Time
	logger           inventory.Logger
	contextualLogger inventory.ContextualLogger
	metricsCollector inventory.MetricsCollector
	tracingCollector inventory.TracingCollector
}

// NewEngineFromPGXPool creates a new Engine using a pgx Pool with optional configuration.
func NewEngineFromPGXPool(db *pgxpool.Pool, options ...Option) (Engine, error) {
	if db == nil {
		return Engine{}, inventory.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewPGXAdapter(db), options...)
}

// NewEngineFromSQLDB creates a new Engine using a sql.DB with optional configuration.
func NewEngineFromSQLDB(db *sql.DB, options ...Option) (Engine, error) {
	if db == nil {
		return Engine{}, inventory.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLAdapter(db), options...)
}

// NewEngineFromSQLX creates a new Engine using a sqlx.DB with optional configuration.
func NewEngineFromSQLX(db *sqlx.DB, options ...Option) (Engine, error) {
	if db == nil {
		return Engine{}, inventory.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLXAdapter(db), options...)
}

func newEngine(db adapters.DBAdapter, options ...Option) (Engine, error) {
	e := Engine{
		db:           db,
		guard:        optimisticlock.NewGuard(optimisticlock.ForbidSuppression()),
		calculator:   effectivevalues.NewCalculator(),
		maxBatchSize: DefaultMaxBatchSize,
		now:          time.Now,
	}

	for _, option := range options {
		if err := option(&e); err != nil {
			return Engine{}, err
		}
	}

	return e, nil
}

// SchemaName returns the database schema holding the tables of a tenant.
func SchemaName(tenant string) string {
	return tenant + schemaSuffix
}

// scope is the state of one operation: the tenant schema, the transaction and the events to publish after commit.
type scope struct {
	engine *Engine
	rc     inventory.RequestContext
	schema string
	now    time.Time
	q      adapters.Querier
	events []inventory.DomainEvent
}

type scopedFunc func(ctx context.Context, s *scope) error

func (e *Engine) tenantOf(rc inventory.RequestContext) string {
	if rc.Tenant == "" {
		return e.defaultTenant
	}

	return rc.Tenant
}

func (e *Engine) newScope(rc inventory.RequestContext) (*scope, error) {
	rc.Tenant = e.tenantOf(rc)

	if rc.Tenant == "" {
		return nil, inventory.ErrEmptyTenant
	}

	if !tenantPattern.MatchString(rc.Tenant) {
		return nil, inventory.ErrInvalidTenant
	}

	return &scope{
		engine: e,
		rc:     rc,
		schema: SchemaName(rc.Tenant),
		now:    e.now().UTC(),
		q:      e.db,
	}, nil
}

func (s *scope) table(name string) exp.IdentifierExpression {
	return goqu.S(s.schema).Table(name)
}

func (s *scope) record(event inventory.DomainEvent, err error) error {
	if err != nil {
		return err
	}

	s.events = append(s.events, event)

	return nil
}

// read runs fn outside of a transaction.
func (e *Engine) read(ctx context.Context, rc inventory.RequestContext, operation string, fn scopedFunc) error {
	s, err := e.newScope(rc)
	if err != nil {
		return err
	}

	ctx, span := e.startOperationSpan(ctx, operation, s.rc.Tenant)
	start := time.Now()

	err = fn(ctx, s)
	e.finishOperation(ctx, span, operation, time.Since(start), err)

	return err
}

// inTransaction runs fn in one transaction and publishes the recorded events after a successful commit.
func (e *Engine) inTransaction(ctx context.Context, rc inventory.RequestContext, operation string, fn scopedFunc) error {
	s, err := e.newScope(rc)
	if err != nil {
		return err
	}

	ctx, span := e.startOperationSpan(ctx, operation, s.rc.Tenant)
	start := time.Now()

	err = e.runTransaction(ctx, s, fn)
	e.finishOperation(ctx, span, operation, time.Since(start), err)

	if err != nil {
		return err
	}

	e.publish(inventory.ContextWithRequest(ctx, s.rc), s.events)

	return nil
}

func (e *Engine) runTransaction(ctx context.Context, s *scope, fn scopedFunc) error {
	tx, beginErr := e.db.Begin(ctx)
	if beginErr != nil {
		e.logErrorContext(ctx, logMsgBeginTxFailed, beginErr)
		return errors.Join(inventory.ErrBeginTxFailed, beginErr)
	}

	s.q = tx

	if fnErr := fn(ctx, s); fnErr != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			e.logWarnContext(ctx, logMsgRollbackFailed, rollbackErr)
			return errors.Join(fnErr, inventory.ErrRollbackFailed, rollbackErr)
		}

		return fnErr
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		e.logErrorContext(ctx, logMsgCommitFailed, commitErr)
		return errors.Join(inventory.ErrCommitFailed, translateDriverError(commitErr))
	}

	return nil
}

func (e *Engine) publish(ctx context.Context, events []inventory.DomainEvent) {
	if e.publisher == nil || len(events) == 0 {
		return
	}

	e.publisher.Publish(ctx, events...)
	e.recordValueMetricsContext(ctx, metricEventsPublished, float64(len(events)), operationPublish, statusSuccess)
}

func newID() string {
	return uuid.NewString()
}
