// Package events carries messages from the bus to the reconciler and the
// telemetry ingestor. A Source yields messages from Kafka or a Redis stream,
// a Consumer hands each one to its Handler and commits it afterwards, and
// messages that cannot be decoded or handled are copied to a DeadLetter sink.
package events

import (
	"context"
	"time"
)

// Message is one record read from a Source.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Partition int
	Offset    int64
	// ID is the Redis stream entry id; empty for Kafka.
	ID   string
	Time time.Time

	commit any
}

// Source yields messages in order and records consumption on Commit.
type Source interface {
	// Fetch blocks until a message is available or ctx is done.
	Fetch(ctx context.Context) (Message, error)
	Commit(ctx context.Context, msg Message) error
	Topic() string
	Close() error
}
