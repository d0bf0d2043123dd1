// Package domainevent hands committed DomainEvents to the message bus.
//
// The Publisher returns immediately; events are queued and sent by background workers with a
// context detached from the request, so a finished request never cancels its events. Queues are
// sharded by tenant: all events of one tenant, and therefore all events of one key, are sent in
// the order they were published. Failed sends are retried with exponential backoff and jitter,
// what still fails is logged and dropped; consumers rely on at-least-once redelivery.
//
// Usage:
//
//	publisher, _ := domainevent.NewPublisher(producer,
//		domainevent.WithShards(8),
//		domainevent.WithContextualLogger(logger),
//	)
//	defer publisher.Close(ctx)
//
//	engine, _ := postgresengine.NewEngineFromPGXPool(pool, postgresengine.WithEventPublisher(publisher))
package domainevent
