package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/librarystack/inventory-storage-go/inventory"
)

func Test_BuildCreatedEvent_ShouldHaveNoOldSnapshot(t *testing.T) {
	event, err := BuildCreatedEvent(EntityItem, "diku", "x", &Item{ID: "x", HoldingsRecordID: "h"})

	require.NoError(t, err)
	assert.Equal(t, EventTypeCreate, event.Type)
	assert.Nil(t, event.Old)
	assert.Equal(t, "inventory.item", event.Topic())

	var decoded Item
	require.NoError(t, event.DecodeNew(&decoded))
	assert.Equal(t, "h", decoded.HoldingsRecordID)
}

func Test_BuildUpdatedEvent_ShouldCarryBothSnapshots(t *testing.T) {
	event, err := BuildUpdatedEvent(EntityHoldingsRecord, "diku", "h",
		&HoldingsRecord{ID: "h", PermanentLocationID: "L1"},
		&HoldingsRecord{ID: "h", PermanentLocationID: "L1", TemporaryLocationID: "L2"})

	require.NoError(t, err)

	var old, updated HoldingsRecord
	require.NoError(t, event.DecodeOld(&old))
	require.NoError(t, event.DecodeNew(&updated))
	assert.Empty(t, old.TemporaryLocationID)
	assert.Equal(t, "L2", updated.TemporaryLocationID)
	assert.Equal(t, "inventory.holdings-record", event.Topic())
}

func Test_BuildDeletedEvent_ShouldHaveNoNewSnapshot(t *testing.T) {
	event, err := BuildDeletedEvent(EntityInstance, "diku", "i", &Instance{ID: "i"})

	require.NoError(t, err)
	assert.Equal(t, EventTypeDelete, event.Type)
	assert.NotNil(t, event.Old)
	assert.Nil(t, event.New)
}

func Test_BuildAllRemovedEvent_ShouldUseTheSentinelKey(t *testing.T) {
	event := BuildAllRemovedEvent(EntityItem, "diku")

	assert.Equal(t, EventTypeAllRemoved, event.Type)
	assert.Equal(t, AllRemovedKey, event.Key)
	assert.Nil(t, event.Old)
	assert.Nil(t, event.New)
	assert.NotEmpty(t, event.EventID)
}

func Test_DomainEvent_Encoding_ShouldOmitAbsentSnapshots(t *testing.T) {
	event, err := BuildDeletedEvent(EntityItem, "diku", "x", &Item{ID: "x"})
	require.NoError(t, err)

	data, err := EncodeDocument(event)

	require.NoError(t, err)
	assert.NotContains(t, string(data), `"new"`)
	assert.Contains(t, string(data), `"tenant":"diku"`)
	assert.NotContains(t, string(data), `"Key"`)
}
