package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/librarystack/inventory-storage-go/inventory"
)

// InstanceCountsView is the materialized view of holdings and item counts per Instance.
const InstanceCountsView = "instance_holdings_item_counts"

const (
	logActionMigrate = "migrate"
	logActionDrop    = "drop tenant"
	maxHRIDSequence  = 99999999999
)

// schemaStatements create the tables of one tenant. %[1]s is the quoted schema name.
// Every statement is idempotent.
var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS %[1]s`,

	// accent folding is the identity unless replaced by a function backed by the unaccent extension
	`CREATE OR REPLACE FUNCTION %[1]s.f_unaccent(text) RETURNS text AS $$ SELECT $1 $$
		LANGUAGE sql IMMUTABLE PARALLEL SAFE STRICT`,

	`CREATE TABLE IF NOT EXISTS %[1]s.instance (
		id uuid PRIMARY KEY,
		jsonb jsonb NOT NULL)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS instance_hrid_idx
		ON %[1]s.instance (lower(%[1]s.f_unaccent(jsonb ->> 'hrid')))`,

	`CREATE TABLE IF NOT EXISTS %[1]s.instance_source_marc (
		id uuid PRIMARY KEY REFERENCES %[1]s.instance (id) ON DELETE CASCADE,
		jsonb jsonb NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.instance_relationship (
		id uuid PRIMARY KEY,
		super_instance_id uuid NOT NULL REFERENCES %[1]s.instance (id) ON DELETE CASCADE,
		sub_instance_id uuid NOT NULL REFERENCES %[1]s.instance (id) ON DELETE CASCADE,
		jsonb jsonb)`,

	`CREATE TABLE IF NOT EXISTS %[1]s.holdings_record (
		id uuid PRIMARY KEY,
		jsonb jsonb NOT NULL,
		instanceid uuid GENERATED ALWAYS AS ((jsonb ->> 'instanceId')::uuid) STORED
			REFERENCES %[1]s.instance (id))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS holdings_record_hrid_idx
		ON %[1]s.holdings_record (lower(%[1]s.f_unaccent(jsonb ->> 'hrid')))`,
	`CREATE INDEX IF NOT EXISTS holdings_record_instanceid_idx ON %[1]s.holdings_record (instanceid)`,

	`CREATE TABLE IF NOT EXISTS %[1]s.item (
		id uuid PRIMARY KEY,
		jsonb jsonb NOT NULL,
		holdingsrecordid uuid GENERATED ALWAYS AS ((jsonb ->> 'holdingsRecordId')::uuid) STORED
			REFERENCES %[1]s.holdings_record (id))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS item_hrid_idx
		ON %[1]s.item (lower(%[1]s.f_unaccent(jsonb ->> 'hrid')))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS item_barcode_idx ON %[1]s.item (lower(jsonb ->> 'barcode'))`,
	`CREATE INDEX IF NOT EXISTS item_holdingsrecordid_idx ON %[1]s.item (holdingsrecordid)`,

	`CREATE TABLE IF NOT EXISTS %[1]s.instance_subject_source (
		instance_id uuid NOT NULL REFERENCES %[1]s.instance (id) ON DELETE CASCADE,
		source_id uuid NOT NULL,
		PRIMARY KEY (instance_id, source_id))`,
	`CREATE TABLE IF NOT EXISTS %[1]s.instance_subject_type (
		instance_id uuid NOT NULL REFERENCES %[1]s.instance (id) ON DELETE CASCADE,
		type_id uuid NOT NULL,
		PRIMARY KEY (instance_id, type_id))`,

	`CREATE TABLE IF NOT EXISTS %[1]s.hrid_settings (
		id integer PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		jsonb jsonb NOT NULL)`,
	`INSERT INTO %[1]s.hrid_settings (id, jsonb) VALUES (1, '{
		"instances": {"prefix": "in", "startNumber": 1},
		"holdings": {"prefix": "ho", "startNumber": 1},
		"items": {"prefix": "it", "startNumber": 1},
		"commonRetainLeadingZeroes": true}') ON CONFLICT (id) DO NOTHING`,
	`CREATE SEQUENCE IF NOT EXISTS %[1]s.hrid_instances_seq MINVALUE 1 MAXVALUE %[2]d`,
	`CREATE SEQUENCE IF NOT EXISTS %[1]s.hrid_holdings_seq MINVALUE 1 MAXVALUE %[2]d`,
	`CREATE SEQUENCE IF NOT EXISTS %[1]s.hrid_items_seq MINVALUE 1 MAXVALUE %[2]d`,

	`CREATE TABLE IF NOT EXISTS %[1]s.mat_view_metadata (
		view_name text PRIMARY KEY,
		last_refresh timestamptz,
		is_refreshing boolean NOT NULL DEFAULT FALSE,
		refresh_started_at timestamptz,
		refresh_instance_id uuid)`,
	`CREATE MATERIALIZED VIEW IF NOT EXISTS %[1]s.instance_holdings_item_counts AS
		SELECT i.id AS instance_id,
			count(DISTINCT h.id) AS holdings_count,
			count(it.id) AS item_count
		FROM %[1]s.instance i
		LEFT JOIN %[1]s.holdings_record h ON h.instanceid = i.id
		LEFT JOIN %[1]s.item it ON it.holdingsrecordid = h.id
		GROUP BY i.id`,
	`CREATE UNIQUE INDEX IF NOT EXISTS instance_holdings_item_counts_idx
		ON %[1]s.instance_holdings_item_counts (instance_id)`,
	`INSERT INTO %[1]s.mat_view_metadata (view_name) VALUES ('instance_holdings_item_counts')
		ON CONFLICT (view_name) DO NOTHING`,
}

// Migrate creates or completes the schema of a tenant.
func (e *Engine) Migrate(ctx context.Context, tenant string) error {
	s, err := e.newScope(inventory.RequestContext{Tenant: tenant})
	if err != nil {
		return err
	}

	for _, statement := range schemaStatements {
		if err := s.exec(ctx, fmt.Sprintf(statement, quoteIdentifier(s.schema), maxHRIDSequence), logActionMigrate); err != nil {
			return err
		}
	}

	e.logOperation(ctx, logActionMigrate, logAttrTenant, tenant)

	return nil
}

// DropTenant removes the schema of a tenant with all its data.
func (e *Engine) DropTenant(ctx context.Context, tenant string) error {
	s, err := e.newScope(inventory.RequestContext{Tenant: tenant})
	if err != nil {
		return err
	}

	return s.exec(ctx, "DROP SCHEMA IF EXISTS "+quoteIdentifier(s.schema)+" CASCADE", logActionDrop)
}

// exec runs a statement that returns no rows.
func (s *scope) exec(ctx context.Context, sqlQuery, action string) error {
	_, err := s.execAffected(ctx, sqlQuery, action)
	return err
}

// execAffected runs a statement and returns the number of affected rows.
func (s *scope) execAffected(ctx context.Context, sqlQuery, action string) (int64, error) {
	start := time.Now()
	result, execErr := s.q.Exec(ctx, sqlQuery)
	s.engine.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if execErr != nil {
		s.engine.logErrorContext(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return 0, errors.Join(inventory.ErrWritingFailed, translateDriverError(execErr))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Join(inventory.ErrGettingRowsAffectedFailed, err)
	}

	return affected, nil
}

// quoteIdentifier quotes a schema name that passed the tenant check.
func quoteIdentifier(name string) string {
	return `"` + name + `"`
}
