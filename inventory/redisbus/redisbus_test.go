package redisbus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librarystack/inventory-storage-go/inventory"
	"github.com/librarystack/inventory-storage-go/inventory/domainevent"
	. "github.com/librarystack/inventory-storage-go/inventory/redisbus"
	. "github.com/librarystack/inventory-storage-go/testutil/testdoubles"
)

const (
	testGroup    = "inventory-test"
	testConsumer = "consumer-1"
)

var itemStream = StreamName(DefaultStreamPrefix, "diku", "inventory.item")

func givenRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return server, client
}

func givenMessage(t *testing.T, key string) domainevent.Message {
	event, err := inventory.BuildCreatedEvent(inventory.EntityItem, "diku", key, &inventory.Item{ID: key})
	require.NoError(t, err, "error in arranging test data")

	ctx := inventory.ContextWithRequest(context.Background(), inventory.RequestContext{
		Tenant:   "diku",
		OkapiURL: "http://okapi:9130",
	})

	msg, err := domainevent.NewMessage(ctx, event)
	require.NoError(t, err, "error in arranging test data")

	return msg
}

type recordingHandler struct {
	events   []inventory.DomainEvent
	fail     error
	failKeys map[string]int
	attempts map[string]int
}

func (h *recordingHandler) handle(_ context.Context, event inventory.DomainEvent) error {
	if h.attempts == nil {
		h.attempts = map[string]int{}
	}
	h.attempts[event.Key]++

	if h.fail != nil {
		return h.fail
	}

	if remaining, ok := h.failKeys[event.Key]; ok && (remaining < 0 || h.attempts[event.Key] <= remaining) {
		return errors.New("handling " + event.Key + " failed")
	}

	h.events = append(h.events, event)

	return nil
}

func Test_NewProducer_ShouldRejectInvalidConfiguration(t *testing.T) {
	_, client := givenRedis(t)

	_, err := NewProducer(nil)
	assert.ErrorIs(t, err, ErrNilClient)

	_, err = NewProducer(client, WithStreamPrefix(""))
	assert.ErrorIs(t, err, ErrEmptyPrefix)
}

func Test_Send_ShouldAppendToTheStreamOfTenantAndTopic(t *testing.T) {
	// setup
	server, client := givenRedis(t)
	producer, err := NewProducer(client, WithStreamPrefix("test"))
	require.NoError(t, err)

	msg := givenMessage(t, "i-1")

	// act
	err = producer.Send(context.Background(), msg)

	// assert
	require.NoError(t, err)

	entries, err := server.Stream("test.diku.inventory.item")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	fields := map[string]string{}
	for i := 0; i+1 < len(entries[0].Values); i += 2 {
		fields[entries[0].Values[i]] = entries[0].Values[i+1]
	}

	assert.Equal(t, "i-1", fields["key"])
	assert.Equal(t, "inventory.item", fields["topic"])
	assert.Equal(t, "diku", fields["h:x-okapi-tenant"])
	assert.Equal(t, "http://okapi:9130", fields["h:x-okapi-url"])
	assert.JSONEq(t, string(msg.Value), fields["value"])
}

func Test_Send_When_ServerRejectsTheCommand_ShouldFailPermanently(t *testing.T) {
	// setup
	server, client := givenRedis(t)
	producer, err := NewProducer(client)
	require.NoError(t, err)

	// arrange
	require.NoError(t, server.Set(itemStream, "not a stream"))

	// act
	err = producer.Send(context.Background(), givenMessage(t, "i-1"))

	// assert
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.ErrorIs(t, err, domainevent.ErrPermanent)
}

func Test_Send_When_ServerIsDown_ShouldFailTransiently(t *testing.T) {
	// setup
	server, client := givenRedis(t)
	producer, err := NewProducer(client)
	require.NoError(t, err)
	server.Close()

	// act
	err = producer.Send(context.Background(), givenMessage(t, "i-1"))

	// assert
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.NotErrorIs(t, err, domainevent.ErrPermanent)
}

func Test_NewConsumer_ShouldRejectInvalidConfiguration(t *testing.T) {
	_, client := givenRedis(t)
	handler := (&recordingHandler{}).handle

	_, err := NewConsumer(nil, testGroup, testConsumer, []string{itemStream}, handler)
	assert.ErrorIs(t, err, ErrNilClient)

	_, err = NewConsumer(client, "", testConsumer, []string{itemStream}, handler)
	assert.ErrorIs(t, err, ErrEmptyGroup)

	_, err = NewConsumer(client, testGroup, testConsumer, nil, handler)
	assert.ErrorIs(t, err, ErrNoStreams)

	_, err = NewConsumer(client, testGroup, testConsumer, []string{itemStream}, nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	_, err = NewConsumer(client, testGroup, testConsumer, []string{itemStream}, handler, WithClaimMinIdle(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidClaimMinIdle)

	_, err = NewConsumer(client, testGroup, testConsumer, []string{itemStream}, handler, WithMaxDeliveries(0))
	assert.ErrorIs(t, err, ErrInvalidMaxDeliveries)
}

func Test_Poll_ShouldHandleEventsInStreamOrderAndAcknowledgeThem(t *testing.T) {
	// setup
	ctx := context.Background()
	_, client := givenRedis(t)
	producer, err := NewProducer(client)
	require.NoError(t, err)

	handler := &recordingHandler{}
	consumer, err := NewConsumer(client, testGroup, testConsumer, []string{itemStream}, handler.handle, WithBlock(0))
	require.NoError(t, err)

	// arrange
	_, err = consumer.Poll(ctx)
	require.NoError(t, err)

	for _, key := range []string{"i-1", "i-2", "i-3"} {
		require.NoError(t, producer.Send(ctx, givenMessage(t, key)))
	}

	// act
	acknowledged, err := consumer.Poll(ctx)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 3, acknowledged)
	require.Len(t, handler.events, 3)
	assert.Equal(t, "i-1", handler.events[0].Key)
	assert.Equal(t, "i-3", handler.events[2].Key)
	assert.Equal(t, inventory.EntityItem, handler.events[0].Entity)

	pending, err := client.XPending(ctx, itemStream, testGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func Test_Poll_When_HandlerFails_ShouldRedeliverOnceIdleToARestartedConsumer(t *testing.T) {
	// setup
	ctx := context.Background()
	_, client := givenRedis(t)
	producer, err := NewProducer(client)
	require.NoError(t, err)

	logger := NewContextualLoggerSpy(true)
	failing := &recordingHandler{fail: errors.New("tenant unavailable")}
	consumer, err := NewConsumer(client, testGroup, testConsumer, []string{itemStream}, failing.handle,
		WithBlock(0), WithConsumerContextualLogger(logger))
	require.NoError(t, err)

	_, err = consumer.Poll(ctx)
	require.NoError(t, err)
	require.NoError(t, producer.Send(ctx, givenMessage(t, "i-1")))

	// arrange
	acknowledged, err := consumer.Poll(ctx)
	require.NoError(t, err)
	require.Zero(t, acknowledged)
	assert.True(t, logger.HasLog("warn", "handling stream entry failed, leaving it pending"))

	recovered := &recordingHandler{}
	restarted, err := NewConsumer(client, testGroup, testConsumer, []string{itemStream}, recovered.handle,
		WithBlock(0), WithClaimMinIdle(0))
	require.NoError(t, err)

	// act
	acknowledged, err = restarted.Poll(ctx)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, acknowledged)
	require.Len(t, recovered.events, 1)
	assert.Equal(t, "i-1", recovered.events[0].Key)
}

func Test_Poll_When_HandlerFailsOnce_ShouldRetryInTheRunningConsumer(t *testing.T) {
	// setup
	ctx := context.Background()
	_, client := givenRedis(t)
	producer, err := NewProducer(client)
	require.NoError(t, err)

	handler := &recordingHandler{failKeys: map[string]int{"i-1": 1}}
	consumer, err := NewConsumer(client, testGroup, testConsumer, []string{itemStream}, handler.handle,
		WithBlock(0), WithClaimMinIdle(0))
	require.NoError(t, err)

	_, err = consumer.Poll(ctx)
	require.NoError(t, err)

	// arrange
	require.NoError(t, producer.Send(ctx, givenMessage(t, "i-1")))

	// act
	acknowledged, err := consumer.Poll(ctx)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, acknowledged)
	assert.Equal(t, 2, handler.attempts["i-1"])
	require.Len(t, handler.events, 1)
}

func Test_Poll_When_EntryKeepsFailing_ShouldNotBlockLaterEntriesAndDeadLetterIt(t *testing.T) {
	// setup
	ctx := context.Background()
	_, client := givenRedis(t)
	producer, err := NewProducer(client)
	require.NoError(t, err)

	logger := NewContextualLoggerSpy(true)
	metrics := NewMetricsCollectorSpy(true)
	handler := &recordingHandler{failKeys: map[string]int{"poison": -1}}
	consumer, err := NewConsumer(client, testGroup, testConsumer, []string{itemStream}, handler.handle,
		WithBlock(0), WithClaimMinIdle(0), WithMaxDeliveries(3),
		WithConsumerContextualLogger(logger), WithConsumerMetrics(metrics))
	require.NoError(t, err)

	_, err = consumer.Poll(ctx)
	require.NoError(t, err)

	// arrange
	require.NoError(t, producer.Send(ctx, givenMessage(t, "poison")))
	_, err = consumer.Poll(ctx)
	require.NoError(t, err)
	require.NoError(t, producer.Send(ctx, givenMessage(t, "healthy")))

	// act
	_, err = consumer.Poll(ctx)
	require.NoError(t, err)

	// assert
	require.Len(t, handler.events, 1)
	assert.Equal(t, "healthy", handler.events[0].Key)

	var pending int64 = -1
	for range 5 {
		_, err = consumer.Poll(ctx)
		require.NoError(t, err)

		summary, err := client.XPending(ctx, itemStream, testGroup).Result()
		require.NoError(t, err)

		if pending = summary.Count; pending == 0 {
			break
		}
	}

	assert.Zero(t, pending)
	assert.Equal(t, 3, handler.attempts["poison"])
	assert.True(t, logger.HasLog("error", "dead-lettering stream entry after too many deliveries"))
	assert.True(t, metrics.HasCounterRecord("inventory_bus_messages_dead_lettered_total"))
}

func Test_Poll_When_EntryIsUndecodable_ShouldDiscardIt(t *testing.T) {
	// setup
	ctx := context.Background()
	_, client := givenRedis(t)

	logger := NewContextualLoggerSpy(true)
	metrics := NewMetricsCollectorSpy(true)
	handler := &recordingHandler{}
	consumer, err := NewConsumer(client, testGroup, testConsumer, []string{itemStream}, handler.handle,
		WithBlock(0), WithConsumerContextualLogger(logger), WithConsumerMetrics(metrics))
	require.NoError(t, err)

	_, err = consumer.Poll(ctx)
	require.NoError(t, err)

	// arrange
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: itemStream,
		Values: map[string]any{"topic": "inventory.item", "value": "{broken"},
	}).Err())

	// act
	acknowledged, err := consumer.Poll(ctx)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, acknowledged)
	assert.Empty(t, handler.events)
	assert.True(t, logger.HasLog("error", "discarding undecodable stream entry"))
	assert.True(t, metrics.HasCounterRecord("inventory_bus_messages_discarded_total"))
}

func Test_Run_ShouldStopWhenContextIsDone(t *testing.T) {
	// setup
	_, client := givenRedis(t)
	consumer, err := NewConsumer(client, testGroup, testConsumer, []string{itemStream},
		(&recordingHandler{}).handle, WithBlock(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// act
	err = consumer.Run(ctx)

	// assert
	assert.NoError(t, err)
}
