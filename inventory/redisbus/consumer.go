package redisbus

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/librarystack/inventory-storage-go/inventory"
	"github.com/librarystack/inventory-storage-go/inventory/domainevent"
)

const (
	defaultBatchCount    = 100
	defaultBlock         = 5 * time.Second
	defaultClaimMinIdle  = time.Minute
	defaultMaxDeliveries = 5
	groupStartID         = "0"
	newMessagesID        = ">"
	claimCursorStart     = "0-0"
)

var (
	// ErrEmptyGroup is returned when the consumer group or consumer name is empty.
	ErrEmptyGroup = errors.New("consumer group and consumer name must not be empty")

	// ErrNoStreams is returned when a Consumer is created without streams.
	ErrNoStreams = errors.New("at least one stream is required")

	// ErrNilHandler is returned when a nil Handler is supplied.
	ErrNilHandler = errors.New("handler must not be nil")

	// ErrReadFailed is returned when reading from the consumer group failed.
	ErrReadFailed = errors.New("reading from consumer group failed")

	// ErrAckFailed is returned when a handled message could not be acknowledged.
	ErrAckFailed = errors.New("acknowledging message failed")

	// ErrClaimFailed is returned when stale pending messages could not be claimed.
	ErrClaimFailed = errors.New("claiming pending messages failed")

	// ErrInvalidClaimMinIdle is returned when a negative claim idle time is configured.
	ErrInvalidClaimMinIdle = errors.New("claim min idle time must not be negative")

	// ErrMaxDeliveriesExceeded is logged for a message dropped after too many deliveries.
	ErrMaxDeliveriesExceeded = errors.New("message exceeded its delivery limit")

	// ErrInvalidMaxDeliveries is returned when the delivery cap is less than 1.
	ErrInvalidMaxDeliveries = errors.New("max deliveries must be at least 1")
)

// Handler processes one DomainEvent. A returned error leaves the message pending, so it is
// delivered again once it was idle for the claim min idle time.
type Handler func(ctx context.Context, event inventory.DomainEvent) error

// Consumer reads DomainEvents from streams as a member of a consumer group.
//
// New messages are read with ">". Messages that stayed pending for the claim min idle time,
// left by a failed handler or by a consumer that went away, are claimed with XAUTOCLAIM and
// handled again. A message delivered more than max deliveries times is acknowledged without
// handling and logged as dead-lettered, so it cannot block the stream.
//
// A Consumer is not safe for concurrent use; run one Consumer per goroutine.
type Consumer struct {
	client           redis.UniversalClient
	group            string
	name             string
	streams          []string
	handler          Handler
	count            int64
	block            time.Duration
	logger           inventory.Logger
	contextualLogger inventory.ContextualLogger
	metricsCollector inventory.MetricsCollector
	claimMinIdle     time.Duration
	maxDeliveries    int64

	groupsReady  bool
	claimCursors map[string]string
}

// ConsumerOption defines a functional option for configuring the Consumer.
type ConsumerOption func(*Consumer) error

// WithBatchCount sets the maximum number of messages read per stream and Poll.
func WithBatchCount(count int64) ConsumerOption {
	return func(c *Consumer) error {
		c.count = count
		return nil
	}
}

// WithBlock sets how long Poll waits for new messages. Zero or less does not wait.
func WithBlock(block time.Duration) ConsumerOption {
	return func(c *Consumer) error {
		c.block = block
		return nil
	}
}

// WithClaimMinIdle sets how long a message stays pending before it is claimed and delivered again.
func WithClaimMinIdle(minIdle time.Duration) ConsumerOption {
	return func(c *Consumer) error {
		if minIdle < 0 {
			return ErrInvalidClaimMinIdle
		}

		c.claimMinIdle = minIdle

		return nil
	}
}

// WithMaxDeliveries sets how often a message is delivered before it is dead-lettered.
func WithMaxDeliveries(deliveries int64) ConsumerOption {
	return func(c *Consumer) error {
		if deliveries < 1 {
			return ErrInvalidMaxDeliveries
		}

		c.maxDeliveries = deliveries

		return nil
	}
}

// WithConsumerLogger sets the logger of the Consumer.
func WithConsumerLogger(logger inventory.Logger) ConsumerOption {
	return func(c *Consumer) error {
		c.logger = logger
		return nil
	}
}

// WithConsumerContextualLogger sets the context-aware logger of the Consumer.
func WithConsumerContextualLogger(logger inventory.ContextualLogger) ConsumerOption {
	return func(c *Consumer) error {
		c.contextualLogger = logger
		return nil
	}
}

// WithConsumerMetrics sets the metrics collector of the Consumer.
func WithConsumerMetrics(collector inventory.MetricsCollector) ConsumerOption {
	return func(c *Consumer) error {
		c.metricsCollector = collector
		return nil
	}
}

// NewConsumer creates a Consumer named name in group, reading the given streams.
func NewConsumer(
	client redis.UniversalClient,
	group, name string,
	streams []string,
	handler Handler,
	options ...ConsumerOption,
) (*Consumer, error) {
	switch {
	case client == nil:
		return nil, ErrNilClient
	case group == "" || name == "":
		return nil, ErrEmptyGroup
	case len(streams) == 0:
		return nil, ErrNoStreams
	case handler == nil:
		return nil, ErrNilHandler
	}

	c := &Consumer{
		client:  client,
		group:   group,
		name:    name,
		streams: streams,
		handler: handler,
		count:         defaultBatchCount,
		block:         defaultBlock,
		claimMinIdle:  defaultClaimMinIdle,
		maxDeliveries: defaultMaxDeliveries,
		claimCursors:  make(map[string]string, len(streams)),
	}

	for _, option := range options {
		if err := option(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Run polls until ctx is done. It returns nil on cancellation and the first read error otherwise.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if _, err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// Poll handles one batch of new messages, then one batch of stale pending messages,
// and returns the number of acknowledged messages.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	if err := c.ensureGroups(ctx); err != nil {
		return 0, err
	}

	streams, err := c.read(ctx)
	if err != nil {
		return 0, err
	}

	acknowledged, err := c.handle(ctx, streams)
	if err != nil {
		return acknowledged, err
	}

	reclaimed, err := c.reclaim(ctx)

	return acknowledged + reclaimed, err
}

// ensureGroups creates the consumer group on every stream, creating missing streams.
func (c *Consumer) ensureGroups(ctx context.Context) error {
	if c.groupsReady {
		return nil
	}

	for _, stream := range c.streams {
		err := c.client.XGroupCreateMkStream(ctx, stream, c.group, groupStartID).Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return errors.Join(ErrReadFailed, err)
		}
	}

	c.groupsReady = true

	return nil
}

func (c *Consumer) read(ctx context.Context) ([]redis.XStream, error) {
	ids := make([]string, 0, 2*len(c.streams))
	ids = append(ids, c.streams...)
	for range c.streams {
		ids = append(ids, newMessagesID)
	}

	block := c.block
	if block <= 0 {
		block = -1
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  ids,
		Count:    c.count,
		Block:    block,
	}).Result()

	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, errors.Join(ErrReadFailed, err)
	}

	return streams, nil
}

func (c *Consumer) handle(ctx context.Context, streams []redis.XStream) (int, error) {
	acknowledged := 0

	for _, stream := range streams {
		for _, entry := range stream.Messages {
			if !c.process(ctx, stream.Stream, entry) {
				continue
			}

			if err := c.ack(ctx, stream.Stream, entry.ID); err != nil {
				return acknowledged, err
			}

			acknowledged++
		}
	}

	return acknowledged, nil
}

// reclaim claims the messages of every stream that stayed pending for the claim min idle time.
// The claim cursor of a stream advances across Polls and wraps around at the end of the pending list.
func (c *Consumer) reclaim(ctx context.Context) (int, error) {
	acknowledged := 0

	for _, stream := range c.streams {
		start := c.claimCursors[stream]
		if start == "" {
			start = claimCursorStart
		}

		entries, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    c.group,
			Consumer: c.name,
			MinIdle:  c.claimMinIdle,
			Start:    start,
			Count:    c.count,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return acknowledged, errors.Join(ErrClaimFailed, err)
		}

		c.claimCursors[stream] = next

		for _, entry := range entries {
			var done bool
			if deliveries := c.deliveries(ctx, stream, entry.ID); deliveries > c.maxDeliveries {
				c.logErrorContext(ctx, logMsgDeadLettered, ErrMaxDeliveriesExceeded,
					logAttrStream, stream, logAttrEntryID, entry.ID, logAttrDeliveries, deliveries)
				c.incrementCounter(metricMessagesDeadLettered, stream)
				done = true
			} else {
				done = c.process(ctx, stream, entry)
			}

			if !done {
				continue
			}

			if err := c.ack(ctx, stream, entry.ID); err != nil {
				return acknowledged, err
			}

			acknowledged++
		}
	}

	return acknowledged, nil
}

// deliveries returns how often an entry was delivered, the claim that returned it included.
// An unknown count is reported as zero, so the entry is handled.
func (c *Consumer) deliveries(ctx context.Context, stream, id string) int64 {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  c.group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}

	return pending[0].RetryCount
}

func (c *Consumer) ack(ctx context.Context, stream, id string) error {
	if err := c.client.XAck(ctx, stream, c.group, id).Err(); err != nil {
		return errors.Join(ErrAckFailed, err)
	}

	return nil
}

// process reports whether the entry is done with. Entries that cannot be decoded are done with as well.
func (c *Consumer) process(ctx context.Context, stream string, entry redis.XMessage) bool {
	event, err := domainevent.DecodeMessage(messageFromValues(entry.Values))
	if err != nil {
		c.logErrorContext(ctx, logMsgUndecodable, err, logAttrStream, stream, logAttrEntryID, entry.ID)
		c.incrementCounter(metricMessagesDiscarded, stream)

		return true
	}

	if err := c.handler(ctx, event); err != nil {
		c.logWarnContext(ctx, logMsgHandlerFailed, err,
			logAttrStream, stream, logAttrEntryID, entry.ID, logAttrEventID, event.EventID)
		c.incrementCounter(metricMessagesFailed, stream)

		return false
	}

	c.incrementCounter(metricMessagesHandled, stream)

	return true
}
