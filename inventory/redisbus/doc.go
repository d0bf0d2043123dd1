// Package redisbus carries domain events over Redis Streams.
//
// The Producer appends every Message to the stream "<prefix>.<tenant>.<topic>", so one stream holds the
// events of one tenant and entity type in the order they were sent. The Consumer reads streams through a
// consumer group and acknowledges a message only after its handler succeeded; unacknowledged messages are
// delivered again when a consumer of the same name starts.
package redisbus
