package helper

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/librarystack/inventory-storage-go/inventory"
	"github.com/librarystack/inventory-storage-go/inventory/postgresengine"
	"github.com/librarystack/inventory-storage-go/testutil/config"
)

const (
	CallNumberTypeSuDoc = "fc388041-6cd0-4806-8a74-ebe3b9ab4c6e"
	LocationMain        = "fcd64ce1-6995-48f0-840e-89ffa2288371"
	LocationAnnex       = "53cf956f-c1df-410b-8bea-27f712cca7c0"
	LocationReserve     = "b241764c-1466-4e1d-a028-1a3684a5da87"
)

func GivenUniqueID(t testing.TB) string {
	id, err := uuid.NewV7()
	require.NoError(t, err, "error in arranging test data")

	return id.String()
}

// GivenUniqueTenant returns a tenant id no other test uses, so every test gets its own schema.
func GivenUniqueTenant(t testing.TB) string {
	return "test_" + strings.ReplaceAll(GivenUniqueID(t), "-", "")[20:]
}

func GivenConnPool(t testing.TB) *pgxpool.Pool {
	connPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolTestConfig())
	require.NoError(t, err, "error connecting to DB pool in test setup")
	t.Cleanup(connPool.Close)

	return connPool
}

// GivenEngine creates an Engine on a freshly migrated tenant schema that is dropped when the test ends.
func GivenEngine(
	t testing.TB,
	ctx context.Context,
	connPool *pgxpool.Pool,
	options ...postgresengine.Option,
) (*postgresengine.Engine, inventory.RequestContext) {
	tenant := GivenUniqueTenant(t)

	engine, err := postgresengine.NewEngineFromPGXPool(connPool, options...)
	require.NoError(t, err, "creating the engine failed")

	require.NoError(t, engine.Migrate(ctx, tenant), "migrating the tenant failed")
	t.Cleanup(func() {
		_ = engine.DropTenant(context.Background(), tenant)
	})

	return &engine, inventory.RequestContext{Tenant: tenant, UserID: GivenUniqueID(t), OkapiURL: "http://okapi:9130"}
}

func FixtureInstance(title string) *inventory.Instance {
	return &inventory.Instance{
		Title:          title,
		Source:         "FOLIO",
		InstanceTypeID: "6312d172-f0cf-40f6-b27d-9fa8feaf332f",
	}
}

func FixtureHoldingsRecord(instanceID, permanentLocationID string) *inventory.HoldingsRecord {
	return &inventory.HoldingsRecord{
		InstanceID:          instanceID,
		PermanentLocationID: permanentLocationID,
		CallNumber:          "A 13.28:986",
		CallNumberTypeID:    CallNumberTypeSuDoc,
	}
}

func FixtureItem(holdingsRecordID string) *inventory.Item {
	return &inventory.Item{
		HoldingsRecordID: holdingsRecordID,
		Status:           inventory.ItemStatus{Name: "Available"},
		Volume:           "v.1",
	}
}

func GivenInstance(
	t testing.TB,
	ctx context.Context,
	engine *postgresengine.Engine,
	rc inventory.RequestContext,
) *inventory.Instance {
	created, err := engine.CreateInstance(ctx, rc, FixtureInstance("Learning Domain-Driven Design"))
	require.NoError(t, err, "error in arranging test data")

	return created
}

func GivenHoldingsRecord(
	t testing.TB,
	ctx context.Context,
	engine *postgresengine.Engine,
	rc inventory.RequestContext,
	instanceID string,
	permanentLocationID string,
) *inventory.HoldingsRecord {
	created, err := engine.CreateHoldingsRecord(ctx, rc, FixtureHoldingsRecord(instanceID, permanentLocationID))
	require.NoError(t, err, "error in arranging test data")

	return created
}

func GivenItem(
	t testing.TB,
	ctx context.Context,
	engine *postgresengine.Engine,
	rc inventory.RequestContext,
	holdingsRecordID string,
) *inventory.Item {
	created, err := engine.CreateItem(ctx, rc, FixtureItem(holdingsRecordID))
	require.NoError(t, err, "error in arranging test data")

	return created
}

// GivenHierarchy creates an Instance with one HoldingsRecord at the location and the given number of Items.
func GivenHierarchy(
	t testing.TB,
	ctx context.Context,
	engine *postgresengine.Engine,
	rc inventory.RequestContext,
	permanentLocationID string,
	items int,
) (*inventory.Instance, *inventory.HoldingsRecord, []*inventory.Item) {
	instance := GivenInstance(t, ctx, engine, rc)
	holdings := GivenHoldingsRecord(t, ctx, engine, rc, instance.ID, permanentLocationID)

	created := make([]*inventory.Item, 0, items)
	for range items {
		created = append(created, GivenItem(t, ctx, engine, rc, holdings.ID))
	}

	return instance, holdings, created
}
