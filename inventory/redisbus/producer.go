package redisbus

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/librarystack/inventory-storage-go/inventory/domainevent"
)

// Stream entry fields.
const (
	fieldTopic   = "topic"
	fieldTenant  = "tenant"
	fieldKey     = "key"
	fieldValue   = "value"
	headerPrefix = "h:"
)

// DefaultStreamPrefix is the environment name used when none is configured.
const DefaultStreamPrefix = "folio"

var (
	// ErrNilClient is returned when a nil Redis client is supplied.
	ErrNilClient = errors.New("redis client must not be nil")

	// ErrEmptyPrefix is returned when an empty stream prefix is configured.
	ErrEmptyPrefix = errors.New("stream prefix must not be empty")

	// ErrSendFailed is returned when a message could not be appended to its stream.
	ErrSendFailed = errors.New("appending message to stream failed")
)

// StreamName returns the stream of a tenant and topic.
func StreamName(prefix, tenant, topic string) string {
	return prefix + "." + tenant + "." + topic
}

// Producer is a domainevent.Producer writing to Redis Streams.
type Producer struct {
	client redis.UniversalClient
	prefix string
	maxLen int64
}

// ProducerOption defines a functional option for configuring the Producer.
type ProducerOption func(*Producer) error

// WithStreamPrefix sets the environment prefix of the stream names.
func WithStreamPrefix(prefix string) ProducerOption {
	return func(p *Producer) error {
		if prefix == "" {
			return ErrEmptyPrefix
		}

		p.prefix = prefix

		return nil
	}
}

// WithMaxLen caps every stream at about maxLen entries. Zero keeps all entries.
func WithMaxLen(maxLen int64) ProducerOption {
	return func(p *Producer) error {
		p.maxLen = maxLen
		return nil
	}
}

// NewProducer creates a Producer on a Redis client.
func NewProducer(client redis.UniversalClient, options ...ProducerOption) (*Producer, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	p := &Producer{
		client: client,
		prefix: DefaultStreamPrefix,
	}

	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Send appends the Message to its stream. Errors replied by the server are permanent.
func (p *Producer) Send(ctx context.Context, msg domainevent.Message) error {
	values := map[string]any{
		fieldTopic:  msg.Topic,
		fieldTenant: msg.Tenant,
		fieldKey:    msg.Key,
		fieldValue:  string(msg.Value),
	}

	for name, value := range msg.Headers {
		values[headerPrefix+name] = value
	}

	args := &redis.XAddArgs{
		Stream: StreamName(p.prefix, msg.Tenant, msg.Topic),
		Values: values,
	}

	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		if isServerReply(err) {
			return errors.Join(ErrSendFailed, domainevent.ErrPermanent, err)
		}

		return errors.Join(ErrSendFailed, err)
	}

	return nil
}

// isServerReply reports whether the server rejected the command, as opposed to a network failure.
func isServerReply(err error) bool {
	var reply interface{ RedisError() }
	return errors.As(err, &reply)
}

// messageFromValues restores a Message from the fields of a stream entry.
func messageFromValues(values map[string]any) domainevent.Message {
	msg := domainevent.Message{Headers: make(map[string]string)}

	for field, raw := range values {
		value, _ := raw.(string)

		switch {
		case field == fieldTopic:
			msg.Topic = value
		case field == fieldTenant:
			msg.Tenant = value
		case field == fieldKey:
			msg.Key = value
		case field == fieldValue:
			msg.Value = []byte(value)
		case strings.HasPrefix(field, headerPrefix):
			msg.Headers[strings.TrimPrefix(field, headerPrefix)] = value
		}
	}

	return msg
}

// Compile-time check to ensure Producer implements the domainevent.Producer interface.
var _ domainevent.Producer = (*Producer)(nil)
