package postgresengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/librarystack/inventory-storage-go/inventory"
	. "github.com/librarystack/inventory-storage-go/inventory/postgresengine"
	"github.com/librarystack/inventory-storage-go/testutil/config"
	. "github.com/librarystack/inventory-storage-go/testutil/helper"
	. "github.com/librarystack/inventory-storage-go/testutil/testdoubles"
)

func Test_FactoryFunctions_ShouldFail_WithNilDatabaseConnection(t *testing.T) {
	testCases := []struct {
		name        string
		factoryFunc func() (Engine, error)
	}{
		{
			name:        "NewEngineFromPGXPool with nil",
			factoryFunc: func() (Engine, error) { return NewEngineFromPGXPool(nil) },
		},
		{
			name:        "NewEngineFromSQLDB with nil",
			factoryFunc: func() (Engine, error) { return NewEngineFromSQLDB(nil) },
		},
		{
			name:        "NewEngineFromSQLX with nil",
			factoryFunc: func() (Engine, error) { return NewEngineFromSQLX(nil) },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.factoryFunc()
			assert.ErrorIs(t, err, ErrNilDatabaseConnection)
		})
	}
}

func Test_Options_ShouldRejectInvalidValues(t *testing.T) {
	connPool := GivenConnPool(t)

	testCases := []struct {
		name     string
		option   Option
		expected error
	}{
		{name: "tenant with upper case letters", option: WithTenant("Bad-Tenant"), expected: ErrInvalidTenant},
		{name: "empty tenant", option: WithTenant(""), expected: ErrEmptyTenant},
		{name: "batch size of zero", option: WithMaxBatchSize(0), expected: ErrInvalidMaxBatchSize},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEngineFromPGXPool(connPool, tc.option)
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func Test_Operation_When_NoTenantIsKnown_ShouldFail(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	engine, err := NewEngineFromPGXPool(GivenConnPool(t))
	require.NoError(t, err)

	// act
	_, err = engine.GetInstance(ctxWithTimeout, RequestContext{}, GivenUniqueID(t))

	// assert
	assert.ErrorIs(t, err, ErrEmptyTenant)
}

func Test_Operation_When_RequestHasNoTenant_ShouldUseDefaultTenant(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connPool := GivenConnPool(t)
	migrated, rc := GivenEngine(t, ctxWithTimeout, connPool)
	instance := GivenInstance(t, ctxWithTimeout, migrated, rc)

	engine, err := NewEngineFromPGXPool(connPool, WithTenant(rc.Tenant))
	require.NoError(t, err)

	// act
	found, err := engine.GetInstance(ctxWithTimeout, RequestContext{}, instance.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, instance.ID, found.ID)
}

func Test_Engine_ShouldRecordOperationMetrics(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := NewMetricsCollectorSpy(true)
	engine, rc := GivenEngine(t, ctxWithTimeout, GivenConnPool(t), WithMetrics(metrics))

	// arrange
	instance := GivenInstance(t, ctxWithTimeout, engine, rc)
	stale := instance.Clone()
	stale.Title = "Stale"
	stale.Version = VersionOf(3)

	// act
	err := engine.UpdateInstance(ctxWithTimeout, rc, stale)

	// assert
	assert.ErrorIs(t, err, ErrOptimisticLockConflict)
	assert.True(t, metrics.HasDurationRecord("inventory_operation_duration_seconds"))
	assert.True(t, metrics.HasCounterRecord("inventory_lock_conflicts_total"))
}

func Test_Engine_ShouldLogExecutedSQL(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger := NewContextualLoggerSpy(true)
	engine, rc := GivenEngine(t, ctxWithTimeout, GivenConnPool(t), WithContextualLogger(logger))
	logger.Reset()

	// act
	GivenInstance(t, ctxWithTimeout, engine, rc)

	// assert
	assert.True(t, logger.HasLog("debug", "executed sql for: insert"))
	assert.True(t, logger.HasLog("info", "inventory operation: records written"))
}

func Test_Engine_ShouldWorkWithDatabaseSQLAdapters(t *testing.T) {
	testCases := []struct {
		name   string
		create func(t *testing.T) (Engine, error)
	}{
		{
			name: "sql.DB",
			create: func(t *testing.T) (Engine, error) {
				db := config.PostgresSQLDBTestConfig()
				t.Cleanup(func() { _ = db.Close() })

				return NewEngineFromSQLDB(db)
			},
		},
		{
			name: "sqlx.DB",
			create: func(t *testing.T) (Engine, error) {
				db := config.PostgresSQLXTestConfig()
				t.Cleanup(func() { _ = db.Close() })

				return NewEngineFromSQLX(db)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			engine, err := tc.create(t)
			require.NoError(t, err)

			tenant := GivenUniqueTenant(t)
			require.NoError(t, engine.Migrate(ctxWithTimeout, tenant))
			t.Cleanup(func() { _ = engine.DropTenant(context.Background(), tenant) })

			rc := RequestContext{Tenant: tenant, UserID: GivenUniqueID(t)}

			// arrange
			instance := GivenInstance(t, ctxWithTimeout, &engine, rc)
			holdings := GivenHoldingsRecord(t, ctxWithTimeout, &engine, rc, instance.ID, LocationMain)
			item := GivenItem(t, ctxWithTimeout, &engine, rc, holdings.ID)

			// act
			moved := holdings.Clone()
			moved.TemporaryLocationID = LocationAnnex
			err = engine.UpdateHoldingsRecord(ctxWithTimeout, rc, moved)

			// assert
			require.NoError(t, err)
			stored, err := engine.GetItem(ctxWithTimeout, rc, item.ID)
			require.NoError(t, err)
			assert.Equal(t, LocationAnnex, stored.EffectiveLocationID)
		})
	}
}
