package events

import (
	"context"
	"time"
)

// Dead letter reasons.
const (
	ReasonMalformed = "malformed"
	ReasonHandler   = "handler"
)

// DeadLetterEntry is a copy of a message that was not handled.
type DeadLetterEntry struct {
	Topic    string
	Key      string
	Value    []byte
	Offset   int64
	SourceID string
	Reason   string
	Error    string
	FailedAt time.Time
}

// DeadLetter stores messages that could not be handled.
type DeadLetter interface {
	Send(ctx context.Context, entry DeadLetterEntry) error
	Close() error
}

// NopDeadLetter discards entries.
type NopDeadLetter struct{}

// Send implements DeadLetter.
func (NopDeadLetter) Send(context.Context, DeadLetterEntry) error { return nil }

// Close implements DeadLetter.
func (NopDeadLetter) Close() error { return nil }
