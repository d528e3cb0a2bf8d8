package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes one message. Returning an error wrapping ErrMalformed
// dead-letters the message as malformed; ErrUnsupportedOperation skips it;
// any other error dead-letters it as a handler failure.
type Handler func(ctx context.Context, msg Message) error

// LifecycleHandler adapts a typed lifecycle handler to Handler.
func LifecycleHandler(handle func(ctx context.Context, ev LifecycleEvent) error) Handler {
	return func(ctx context.Context, msg Message) error {
		ev, err := ParseLifecycle(msg.Key, msg.Value)
		if err != nil {
			return err
		}
		return handle(ctx, ev)
	}
}

// TelemetryHandler adapts a typed telemetry handler to Handler.
func TelemetryHandler(handle func(ctx context.Context, s TelemetrySample) error) Handler {
	return func(ctx context.Context, msg Message) error {
		s, err := ParseTelemetry(msg.Value)
		if err != nil {
			return err
		}
		return handle(ctx, s)
	}
}

// Consumer fetches messages from a Source one at a time, hands each to its
// Handler and commits it afterwards whatever the outcome. Handling is
// sequential so lifecycle events of one partition apply in order.
type Consumer struct {
	source  Source
	handler Handler
	dlq     DeadLetter
	logger  *zap.Logger

	retryDelay time.Duration
	now        func() time.Time

	wg          sync.WaitGroup
	mu          sync.Mutex
	cancel      context.CancelFunc
	stopChannel chan struct{}
}

// NewConsumer creates a consumer. A nil dlq discards failed messages.
func NewConsumer(source Source, handler Handler, dlq DeadLetter, logger *zap.Logger) *Consumer {
	if source == nil {
		panic("source cannot be nil")
	}
	if handler == nil {
		panic("handler cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if dlq == nil {
		dlq = NopDeadLetter{}
	}

	return &Consumer{
		source:      source,
		handler:     handler,
		dlq:         dlq,
		logger:      logger.Named("consumer").With(zap.String("topic", source.Topic())),
		retryDelay:  time.Second,
		now:         time.Now,
		stopChannel: make(chan struct{}),
	}
}

// Start runs the consume loop in the background until ctx is done or Stop is called.
func (c *Consumer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Run(ctx); err != nil {
			c.logger.Error("consumer stopped with error", zap.Error(err))
		}
	}()
}

// Stop cancels the loop started by Start and waits for the in-flight message
// to finish.
func (c *Consumer) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	select {
	case <-c.stopChannel:
	default:
		close(c.stopChannel)
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// Run consumes until ctx is done. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("starting consumer")
	defer c.logger.Info("consumer stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopChannel:
			return nil
		default:
		}

		msg, err := c.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			fetchErrorsTotal.WithLabelValues(c.source.Topic()).Inc()
			c.logger.Error("failed to fetch message", zap.Error(err))
			if !c.sleep(ctx) {
				return nil
			}
			continue
		}

		c.Process(ctx, msg)
	}
}

// Process handles and commits a single message. Cancelling ctx stops intake
// only: a message already fetched is handled, dead-lettered and committed to
// completion.
func (c *Consumer) Process(ctx context.Context, msg Message) {
	ctx = context.WithoutCancel(ctx)
	topic := c.source.Topic()
	log := c.logger.With(
		zap.String("key", msg.Key),
		zap.Int64("offset", msg.Offset),
		zap.String("stream_id", msg.ID),
	)

	start := time.Now()
	err := c.handler(ctx, msg)
	handlerDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		consumedTotal.WithLabelValues(topic, "handled").Inc()
	case errors.Is(err, ErrUnsupportedOperation):
		consumedTotal.WithLabelValues(topic, "ignored").Inc()
		log.Debug("ignoring message", zap.Error(err))
	case errors.Is(err, ErrMalformed):
		consumedTotal.WithLabelValues(topic, "malformed").Inc()
		log.Warn("malformed message", zap.Error(err))
		c.deadLetter(ctx, msg, ReasonMalformed, err)
	default:
		consumedTotal.WithLabelValues(topic, "failed").Inc()
		log.Error("failed to handle message", zap.Error(err))
		c.deadLetter(ctx, msg, ReasonHandler, err)
	}

	if err := c.source.Commit(ctx, msg); err != nil {
		commitErrorsTotal.WithLabelValues(topic).Inc()
		log.Error("failed to commit message", zap.Error(err))
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg Message, reason string, cause error) {
	entry := DeadLetterEntry{
		Topic:    msg.Topic,
		Key:      msg.Key,
		Value:    msg.Value,
		Offset:   msg.Offset,
		SourceID: msg.ID,
		Reason:   reason,
		Error:    cause.Error(),
		FailedAt: c.now(),
	}
	if err := c.dlq.Send(ctx, entry); err != nil {
		c.logger.Error("failed to dead-letter message",
			zap.String("reason", reason),
			zap.Error(fmt.Errorf("dead letter: %w", err)),
		)
		return
	}
	deadLetteredTotal.WithLabelValues(c.source.Topic(), reason).Inc()
}

func (c *Consumer) sleep(ctx context.Context) bool {
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-c.stopChannel:
		return false
	}
}
