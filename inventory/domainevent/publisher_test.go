package domainevent_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/librarystack/inventory-storage-go/inventory"
	. "github.com/librarystack/inventory-storage-go/inventory/domainevent"
	. "github.com/librarystack/inventory-storage-go/testutil/testdoubles"
)

var errBusUnavailable = errors.New("bus unavailable")

func givenItemEvent(t *testing.T, tenant, key, title string) inventory.DomainEvent {
	event, err := inventory.BuildCreatedEvent(inventory.EntityItem, tenant, key, &inventory.Item{ID: key, Barcode: title})
	require.NoError(t, err, "error in arranging test data")

	return event
}

func closePublisher(t *testing.T, publisher *Publisher) {
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, publisher.Close(ctxWithTimeout))
}

func Test_NewPublisher_ShouldRejectInvalidConfiguration(t *testing.T) {
	testCases := []struct {
		name     string
		producer Producer
		options  []Option
		expected error
	}{
		{name: "nil producer", producer: nil, expected: ErrNilProducer},
		{name: "zero shards", producer: NewProducerSpy(), options: []Option{WithShards(0)}, expected: ErrInvalidShards},
		{name: "negative queue", producer: NewProducerSpy(), options: []Option{WithQueueSize(-1)}, expected: ErrInvalidQueueSize},
		{
			name:     "invalid retry",
			producer: NewProducerSpy(),
			options:  []Option{WithRetry(WithMaxAttempts(0))},
			expected: ErrInvalidMaxAttempts,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPublisher(tc.producer, tc.options...)
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func Test_Publish_ShouldSendEventsOfOneTenantInOrder(t *testing.T) {
	// setup
	producer := NewProducerSpy()
	publisher, err := NewPublisher(producer, WithShards(3))
	require.NoError(t, err)

	// arrange
	var published []string
	for i := range 20 {
		tenant := fmt.Sprintf("tenant_%d", i%2)
		key := fmt.Sprintf("key-%d", i%4)
		event := givenItemEvent(t, tenant, key, fmt.Sprintf("%02d", i))
		published = append(published, event.EventID)

		// act
		publisher.Publish(context.Background(), event)
	}

	closePublisher(t, publisher)

	// assert
	messages := producer.Messages()
	require.Len(t, messages, 20)

	positions := map[string]int{}
	for i, msg := range messages {
		var decoded inventory.DomainEvent
		require.NoError(t, inventory.DecodeDocument(msg.Value, &decoded))
		positions[decoded.EventID] = i
	}

	for i := 2; i < len(published); i++ {
		assert.Less(t, positions[published[i-2]], positions[published[i]], "events of one tenant keep their order")
	}
}

func Test_Publish_ShouldSendEventsOfOneCallInGivenOrder(t *testing.T) {
	// setup
	producer := NewProducerSpy()
	publisher, err := NewPublisher(producer)
	require.NoError(t, err)

	// arrange
	holdings, err := inventory.BuildUpdatedEvent(inventory.EntityHoldingsRecord, "diku", "h-1",
		&inventory.HoldingsRecord{ID: "h-1"}, &inventory.HoldingsRecord{ID: "h-1", TemporaryLocationID: "l2"})
	require.NoError(t, err)
	item := givenItemEvent(t, "diku", "i-1", "")

	// act
	publisher.Publish(context.Background(), holdings, item)
	closePublisher(t, publisher)

	// assert
	messages := producer.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "inventory.holdings-record", messages[0].Topic)
	assert.Equal(t, "h-1", messages[0].Key)
	assert.Equal(t, "inventory.item", messages[1].Topic)
}

func Test_Publish_ShouldNotBeCanceledWithTheRequest(t *testing.T) {
	// setup
	producer := NewProducerSpy()
	publisher, err := NewPublisher(producer)
	require.NoError(t, err)

	// arrange
	requestCtx, cancelRequest := context.WithCancel(context.Background())

	// act
	publisher.Publish(requestCtx, givenItemEvent(t, "diku", "i-1", ""))
	cancelRequest()
	closePublisher(t, publisher)

	// assert
	assert.Len(t, producer.Messages(), 1)
}

func Test_Publish_ShouldCarryTransportHeaders(t *testing.T) {
	// setup
	producer := NewProducerSpy()
	publisher, err := NewPublisher(producer)
	require.NoError(t, err)

	// arrange
	ctx := inventory.ContextWithRequest(context.Background(), inventory.RequestContext{
		Tenant:   "diku",
		OkapiURL: "http://okapi:9130",
		TraceID:  "4bf92f3577b34da6a3ce929d0e0e4736",
	})

	// act
	publisher.Publish(ctx, givenItemEvent(t, "diku", "i-1", ""))
	closePublisher(t, publisher)

	// assert
	messages := producer.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "diku", messages[0].Headers[HeaderTenant])
	assert.Equal(t, "http://okapi:9130", messages[0].Headers[HeaderOkapiURL])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", messages[0].Headers[HeaderTraceID])
}

func Test_NewMessage_When_RequestHasNoTraceID_ShouldUseSpanContext(t *testing.T) {
	// arrange
	traceID, err := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("b7ad6b7169203331")
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	// act
	msg, err := NewMessage(ctx, inventory.BuildAllRemovedEvent(inventory.EntityItem, "diku"))

	// assert
	require.NoError(t, err)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", msg.Headers[HeaderTraceID])
	assert.Equal(t, inventory.AllRemovedKey, msg.Key)
	assert.NotContains(t, msg.Headers, HeaderOkapiURL)

	var decoded map[string]any
	require.NoError(t, inventory.DecodeDocument(msg.Value, &decoded))
	assert.Equal(t, "DELETE_ALL", decoded["type"])
	assert.Equal(t, "diku", decoded["tenant"])
	assert.NotContains(t, decoded, "old")
	assert.NotContains(t, decoded, "new")
}

func Test_Publish_When_SendFailsTransiently_ShouldRetry(t *testing.T) {
	// setup
	producer := NewProducerSpy()
	producer.FailNext(2, errBusUnavailable)
	logger := NewContextualLoggerSpy(true)
	publisher, err := NewPublisher(producer,
		WithRetry(WithBaseDelay(time.Millisecond)),
		WithContextualLogger(logger))
	require.NoError(t, err)

	// act
	publisher.Publish(context.Background(), givenItemEvent(t, "diku", "i-1", ""))
	closePublisher(t, publisher)

	// assert
	assert.Len(t, producer.Messages(), 1)
	assert.Equal(t, 3, producer.Calls())
	assert.Empty(t, logger.GetRecords("error"))
}

func Test_Publish_When_SendKeepsFailing_ShouldLogAndContinue(t *testing.T) {
	// setup
	producer := NewProducerSpy()
	producer.FailNext(1, fmt.Errorf("rejected: %w", ErrPermanent))
	logger := NewContextualLoggerSpy(true)
	metrics := NewMetricsCollectorSpy(true)
	publisher, err := NewPublisher(producer, WithContextualLogger(logger), WithMetrics(metrics))
	require.NoError(t, err)

	// act
	publisher.Publish(context.Background(),
		givenItemEvent(t, "diku", "i-1", "lost"),
		givenItemEvent(t, "diku", "i-2", "sent"))
	closePublisher(t, publisher)

	// assert
	assert.True(t, logger.HasLog("error", "unable to send domain event"))
	assert.True(t, metrics.HasCounterRecord("inventory_domain_events_failed_total"))

	messages := producer.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "i-2", messages[0].Key)
	assert.Equal(t, 2, producer.Calls(), "permanent failures are not retried")
}

func Test_Publish_When_PublisherIsClosed_ShouldDropEvents(t *testing.T) {
	// setup
	producer := NewProducerSpy()
	logger := NewContextualLoggerSpy(true)
	publisher, err := NewPublisher(producer, WithContextualLogger(logger))
	require.NoError(t, err)
	closePublisher(t, publisher)

	// act
	publisher.Publish(context.Background(), givenItemEvent(t, "diku", "i-1", ""))

	// assert
	assert.Empty(t, producer.Messages())
	assert.True(t, logger.HasLog("warn", "domain event publisher closed, dropping events"))
	closePublisher(t, publisher)
}

func Test_DecodeMessage_ShouldRestoreTheEvent(t *testing.T) {
	// arrange
	event := givenItemEvent(t, "diku", "i-1", "31234")
	msg, err := NewMessage(context.Background(), event)
	require.NoError(t, err)

	// act
	decoded, err := DecodeMessage(msg)

	// assert
	require.NoError(t, err)
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, inventory.EntityItem, decoded.Entity)
	assert.Equal(t, "i-1", decoded.Key)

	var item inventory.Item
	require.NoError(t, decoded.DecodeNew(&item))
	assert.Equal(t, "31234", item.Barcode)
}

func Test_DecodeMessage_When_TopicIsUnknown_ShouldFail(t *testing.T) {
	// arrange
	msg, err := NewMessage(context.Background(), givenItemEvent(t, "diku", "i-1", ""))
	require.NoError(t, err)
	msg.Topic = "inventory.bound-with"

	// act
	_, err = DecodeMessage(msg)

	// assert
	assert.ErrorIs(t, err, ErrUnknownTopic)
}
