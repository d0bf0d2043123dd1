package domainevent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/librarystack/inventory-storage-go/inventory"
)

const (
	defaultShards    = 4
	defaultQueueSize = 1024
)

var (
	// ErrNilProducer is returned when a nil Producer is supplied.
	ErrNilProducer = errors.New("producer must not be nil")

	// ErrInvalidShards is returned when fewer than one shard is configured.
	ErrInvalidShards = errors.New("shards must be at least 1")

	// ErrInvalidQueueSize is returned when a negative queue size is configured.
	ErrInvalidQueueSize = errors.New("queue size must not be negative")
)

// job is the events of one Publish call, sent in order by one shard.
type job struct {
	ctx    context.Context
	events []inventory.DomainEvent
}

// Publisher is the inventory.EventPublisher backed by a Producer.
type Publisher struct {
	producer         Producer
	shards           []chan job
	queueSize        int
	retry            *retryConfig
	retryOptions     []RetryOption
	logger           inventory.Logger
	contextualLogger inventory.ContextualLogger
	metricsCollector inventory.MetricsCollector

	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup
}

// Option defines a functional option for configuring the Publisher.
type Option func(*Publisher) error

// WithShards sets the number of independent send queues.
// Events of one tenant always share a queue.
func WithShards(shards int) Option {
	return func(p *Publisher) error {
		if shards < 1 {
			return ErrInvalidShards
		}

		p.shards = make([]chan job, shards)

		return nil
	}
}

// WithQueueSize sets how many Publish calls a queue buffers before Publish blocks.
func WithQueueSize(size int) Option {
	return func(p *Publisher) error {
		if size < 0 {
			return ErrInvalidQueueSize
		}

		p.queueSize = size

		return nil
	}
}

// WithRetry configures the backoff of failed sends.
func WithRetry(options ...RetryOption) Option {
	return func(p *Publisher) error {
		p.retryOptions = append(p.retryOptions, options...)
		return nil
	}
}

// WithLogger sets the logger for the Publisher.
func WithLogger(logger inventory.Logger) Option {
	return func(p *Publisher) error {
		p.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Publisher.
func WithContextualLogger(logger inventory.ContextualLogger) Option {
	return func(p *Publisher) error {
		p.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Publisher.
func WithMetrics(collector inventory.MetricsCollector) Option {
	return func(p *Publisher) error {
		p.metricsCollector = collector
		return nil
	}
}

// NewPublisher creates a Publisher and starts its workers. Close stops them.
func NewPublisher(producer Producer, options ...Option) (*Publisher, error) {
	if producer == nil {
		return nil, ErrNilProducer
	}

	p := &Publisher{
		producer:  producer,
		shards:    make([]chan job, defaultShards),
		queueSize: defaultQueueSize,
	}

	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}

	retryConfig, err := newRetryConfig(p.retryOptions...)
	if err != nil {
		return nil, err
	}
	p.retry = retryConfig

	for i := range p.shards {
		p.shards[i] = make(chan job, p.queueSize)
		p.workers.Add(1)

		go p.work(p.shards[i])
	}

	return p, nil
}

// Publish queues the events and returns. The events are sent with a context that keeps the
// values of ctx but is never canceled. Events of a closed Publisher are dropped.
func (p *Publisher) Publish(ctx context.Context, events ...inventory.DomainEvent) {
	if len(events) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logWarnContext(detached, logMsgPublisherClose, logAttrCount, len(events))
		p.incrementCounterContext(detached, metricEventsDropped, map[string]string{labelTopic: events[0].Topic()})

		return
	}

	p.shards[p.shardOf(events[0].Tenant)] <- job{ctx: detached, events: events}
}

// Close stops accepting events and waits until the queued ones are sent or ctx is done.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		for _, shard := range p.shards {
			close(shard)
		}
	}
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) shardOf(tenant string) int {
	return int(xxhash.Sum64String(tenant) % uint64(len(p.shards)))
}

func (p *Publisher) work(queue <-chan job) {
	defer p.workers.Done()

	for j := range queue {
		for _, event := range j.events {
			p.send(j.ctx, event)
		}
	}
}

// send delivers one event with retries. A final failure is logged and the event is dropped.
func (p *Publisher) send(ctx context.Context, event inventory.DomainEvent) {
	labels := map[string]string{labelTopic: event.Topic()}

	msg, err := NewMessage(ctx, event)
	if err != nil {
		p.failed(ctx, event, err, 0)
		return
	}

	start := time.Now()
	meta, err := retry(ctx, p.retry, func(ctx context.Context) error {
		return p.producer.Send(ctx, msg)
	})
	p.recordDurationContext(ctx, metricSendDuration, time.Since(start), labels)

	if err != nil {
		p.failed(ctx, event, err, meta.Attempts)
		return
	}

	p.incrementCounterContext(ctx, metricEventsSent, labels)
}

func (p *Publisher) failed(ctx context.Context, event inventory.DomainEvent, err error, attempts int) {
	p.logErrorContext(ctx, logMsgSendFailed, err,
		logAttrTopic, event.Topic(),
		logAttrKey, event.Key,
		logAttrTenant, event.Tenant,
		logAttrEventID, event.EventID,
		logAttrEventType, string(event.Type),
		logAttrAttempts, attempts)
	p.incrementCounterContext(ctx, metricEventsFailed, map[string]string{labelTopic: event.Topic(), labelErrorType: getErrorType(err)})
}

// Compile-time check to ensure Publisher implements EventPublisher interface.
var _ inventory.EventPublisher = (*Publisher)(nil)
