package postgresengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/librarystack/inventory-storage-go/inventory"
	"github.com/librarystack/inventory-storage-go/inventory/optimisticlock"
	. "github.com/librarystack/inventory-storage-go/inventory/postgresengine"
	. "github.com/librarystack/inventory-storage-go/testutil/helper"
	. "github.com/librarystack/inventory-storage-go/testutil/testdoubles"
)

func Test_CreateInstance_ShouldAssignHRIDVersionAndMetadata(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	publisher := NewEventPublisherSpy()
	engine, rc := GivenEngine(t, ctxWithTimeout, GivenConnPool(t), WithEventPublisher(publisher))

	// act
	created, err := engine.CreateInstance(ctxWithTimeout, rc, FixtureInstance("Implementing Domain-Driven Design"))

	// assert
	require.NoError(t, err)
	assert.Equal(t, "in00000000001", created.HRID)
	assert.Equal(t, 1, *created.Version)
	require.NotNil(t, created.Metadata)
	assert.Equal(t, rc.UserID, created.Metadata.CreatedByUserID)
	assert.Equal(t, rc.UserID, created.Metadata.UpdatedByUserID)

	stored, err := engine.GetInstance(ctxWithTimeout, rc, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, stored.Title)

	events := publisher.EventsOf(EntityInstance, EventTypeCreate)
	require.Len(t, events, 1)
	assert.Equal(t, created.ID, events[0].Key)
	assert.Equal(t, "inventory.instance", events[0].Topic())
}

func Test_CreateInstance_When_HRID_IsTaken_ShouldFailWithHRIDConflict(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	engine, rc := GivenEngine(t, ctxWithTimeout, GivenConnPool(t))

	// arrange
	existing := GivenInstance(t, ctxWithTimeout, engine, rc)
	duplicate := FixtureInstance("Another title")
	duplicate.HRID = existing.HRID

	// act
	_, err := engine.CreateInstance(ctxWithTimeout, rc, duplicate)

	// assert
	assert.ErrorIs(t, err, ErrHRIDConflict)
	assert.Equal(t, OutcomeClientError, ClassifyOutcome(err))
}

func Test_GetInstance_When_Instance_DoesNotExist_ShouldReturnNotFound(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	engine, rc := GivenEngine(t, ctxWithTimeout, GivenConnPool(t))

	// act
	_, err := engine.GetInstance(ctxWithTimeout, rc, GivenUniqueID(t))

	// assert
	assert.ErrorIs(t, err, ErrNotFound)
}

func Test_UpdateInstance_When_HRID_Changes_ShouldFail(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	publisher := NewEventPublisherSpy()
	engine, rc := GivenEngine(t, ctxWithTimeout, GivenConnPool(t), WithEventPublisher(publisher))

	// arrange
	instance := GivenInstance(t, ctxWithTimeout, engine, rc)
	publisher.Reset()

	// act
	changed := instance.Clone()
	changed.HRID = "in99"
	err := engine.UpdateInstance(ctxWithTimeout, rc, changed)

	// assert
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.ErrorIs(t, err, ErrHRIDChanged)
	assert.Equal(t, "hrid", validationErr.Errors[0].Field)
	assert.Equal(t, "The hrid field cannot be changed: new=in99, old=in00000000001", validationErr.Errors[0].Message)
	assert.Empty(t, publisher.Events())
}

func Test_UpdateInstance_When_ShadowCopy_ShouldAllowHRIDChange(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	engine, rc := GivenEngine(t, ctxWithTimeout, GivenConnPool(t))

	// arrange
	shadow := FixtureInstance("Shared title")
	shadow.Source = ConsortiumSourcePrefix + "FOLIO"
	created, err := engine.CreateInstance(ctxWithTimeout, rc, shadow)
	require.NoError(t, err)

	// act
	changed := created.Clone()
	changed.HRID = "cin0001"
	err = engine.UpdateInstance(ctxWithTimeout, rc, changed)

	// assert
	require.NoError(t, err)
	stored, err := engine.GetInstance(ctxWithTimeout, rc, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "cin0001", stored.HRID)
}

func Test_UpdateInstance_When_EmptyHRID_ShouldKeepStoredHRID(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	engine, rc := GivenEngine(t, ctxWithTimeout, GivenConnPool(t))

	// arrange
	instance := GivenInstance(t, ctxWithTimeout, engine, rc)

	// act
	changed := instance.Clone()
	changed.HRID = ""
	changed.Title = "Renamed"
	err := engine.UpdateInstance(ctxWithTimeout, rc, changed)

	// assert
	require.NoError(t, err)
	stored, err := engine.GetInstance(ctxWithTimeout, rc, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, instance.HRID, stored.HRID)
	assert.Equal(t, "Renamed", stored.Title)
}

func Test_UpdateInstance_When_Version_IsStale_ShouldFailWithLockConflict(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	publisher := NewEventPublisherSpy()
	engine, rc := GivenEngine(t, ctxWithTimeout, GivenConnPool(t), WithEventPublisher(publisher))

	// arrange
	instance := GivenInstance(t, ctxWithTimeout, engine, rc)
	first := instance.Clone()
	first.Title = "First writer"
	require.NoError(t, engine.UpdateInstance(ctxWithTimeout, rc, first))
	publisher.Reset()

	// act
	second := instance.Clone()
	second.Title = "Second writer"
	err := engine.UpdateInstance(ctxWithTimeout, rc, second)

	// assert
	assert.ErrorIs(t, err, ErrOptimisticLockConflict)
	assert.Equal(t, OutcomeConflict, ClassifyNoBodyOutcome(err))
	assert.Empty(t, publisher.Events())

	stored, err := engine.GetInstance(ctxWithTimeout, rc, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "First writer", stored.Title)
	assert.Equal(t, 2, *stored.Version)
}

func Test_UpdateInstance_When_VersionSuppressed_And_PolicyForbids_ShouldFailWithLockConflict(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	engine, rc := GivenEngine(t, ctxWithTimeout, GivenConnPool(t))

	// arrange
	instance := GivenInstance(t, ctxWithTimeout, engine, rc)

	// act
	changed := instance.Clone()
	changed.Title = "Suppressed"
	changed.Version = VersionOf(SuppressVersion)
	err := engine.UpdateInstance(ctxWithTimeout, rc, changed)

	// assert
	assert.ErrorIs(t, err, ErrOptimisticLockConflict)
}

func Test_UpdateInstance_When_VersionSuppressed_And_PolicyAllows_ShouldStoreWithoutVersion(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	policy := optimisticlock.NewPolicy(time.Now().Add(time.Hour))
	engine, rc := GivenEngine(t, ctxWithTimeout, GivenConnPool(t), WithLockPolicy(policy))

	// arrange
	instance := GivenInstance(t, ctxWithTimeout, engine, rc)

	// act
	changed := instance.Clone()
	changed.Title = "Suppressed"
	changed.Version = VersionOf(SuppressVersion)
	err := engine.UpdateInstance(ctxWithTimeout, rc, changed)

	// assert
	require.NoError(t, err)
	stored, err := engine.GetInstance(ctxWithTimeout, rc, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "Suppressed", stored.Title)
	assert.Nil(t, stored.Version)
}

func Test_UpdateInstance_ShouldMaintainSubjectJoinTables(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	engine, rc := GivenEngine(t, ctxWithTimeout, GivenConnPool(t))

	// arrange
	sourceKept, sourceRemoved, typeAdded := GivenUniqueID(t), GivenUniqueID(t), GivenUniqueID(t)

	instance := FixtureInstance("Subjects")
	instance.Subjects = []Subject{
		{Value: "Software design", SourceID: sourceKept},
		{Value: "Architecture", SourceID: sourceRemoved},
	}
	created, err := engine.CreateInstance(ctxWithTimeout, rc, instance)
	require.NoError(t, err)

	inUse, err := engine.SubjectSourceInUse(ctxWithTimeout, rc, sourceRemoved)
	require.NoError(t, err)
	require.True(t, inUse)

	// act
	changed := created.Clone()
	changed.Subjects = []Subject{
		{Value: "Software design", SourceID: sourceKept, TypeID: typeAdded},
	}
	err = engine.UpdateInstance(ctxWithTimeout, rc, changed)

	// assert
	require.NoError(t, err)

	inUse, err = engine.SubjectSourceInUse(ctxWithTimeout, rc, sourceKept)
	require.NoError(t, err)
	assert.True(t, inUse)

	inUse, err = engine.SubjectSourceInUse(ctxWithTimeout, rc, sourceRemoved)
	require.NoError(t, err)
	assert.False(t, inUse)

	inUse, err = engine.SubjectTypeInUse(ctxWithTimeout, rc, typeAdded)
	require.NoError(t, err)
	assert.True(t, inUse)
}

func Test_DeleteInstance_ShouldReleaseSubjectReferences(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	engine, rc := GivenEngine(t, ctxWithTimeout, GivenConnPool(t))

	// arrange
	typeID := GivenUniqueID(t)
	instance := FixtureInstance("Subjects")
	instance.Subjects = []Subject{{Value: "Testing", TypeID: typeID}}
	created, err := engine.CreateInstance(ctxWithTimeout, rc, instance)
	require.NoError(t, err)

	// act
	err = engine.DeleteInstance(ctxWithTimeout, rc, created.ID)

	// assert
	require.NoError(t, err)
	inUse, err := engine.SubjectTypeInUse(ctxWithTimeout, rc, typeID)
	require.NoError(t, err)
	assert.False(t, inUse)
}
