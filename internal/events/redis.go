package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	// Stream entry fields mirroring a Kafka record.
	fieldKey   = "key"
	fieldValue = "value"

	defaultBatchSize = 10
	defaultBlockTime = 5 * time.Second
)

// RedisStreamSource reads a Redis stream as a member of a consumer group.
// Entries carry the Kafka key and value in the "key" and "value" fields.
//
// Entries read but not acknowledged stay pending under the consumer name. On
// start the source first re-reads its own pending entries, so a restart under
// the same name resumes where it stopped. With a positive claim idle time it
// also takes over entries other consumers left pending for longer than that.
type RedisStreamSource struct {
	client   redis.UniversalClient
	stream   string
	group    string
	consumer string
	block    time.Duration

	claimMinIdle time.Duration
	claimCursor  string
	lastClaim    time.Time
	now          func() time.Time

	backlog   bool
	backlogID string

	pending []Message
}

// NewRedisStreamSource creates the consumer group if needed and returns a source
// reading as consumer. claimMinIdle of zero disables claiming entries of other
// consumers.
func NewRedisStreamSource(
	ctx context.Context,
	client redis.UniversalClient,
	stream, group, consumer string,
	claimMinIdle time.Duration,
) (*RedisStreamSource, error) {
	if client == nil {
		panic("Redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}
	if group == "" {
		return nil, errors.New("consumer group cannot be empty")
	}
	if consumer == "" {
		return nil, errors.New("consumer name cannot be empty")
	}
	if claimMinIdle < 0 {
		return nil, errors.New("claim idle time cannot be negative")
	}

	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &RedisStreamSource{
		client:       client,
		stream:       stream,
		group:        group,
		consumer:     consumer,
		block:        defaultBlockTime,
		claimMinIdle: claimMinIdle,
		claimCursor:  "0-0",
		now:          time.Now,
		backlog:      true,
		backlogID:    "0",
	}, nil
}

// Fetch implements Source.
func (s *RedisStreamSource) Fetch(ctx context.Context) (Message, error) {
	for len(s.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}

		msgs, err := s.read(ctx)
		if err != nil {
			return Message{}, err
		}
		for _, m := range msgs {
			s.pending = append(s.pending, s.toMessage(m))
		}
	}

	msg := s.pending[0]
	s.pending = s.pending[1:]
	return msg, nil
}

// read returns the next batch: own pending entries first, then entries claimed
// from idle consumers, then new entries.
func (s *RedisStreamSource) read(ctx context.Context) ([]redis.XMessage, error) {
	if s.backlog {
		msgs, err := s.readGroup(ctx, s.backlogID, -1)
		if err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			s.backlog = false
			return nil, nil
		}
		s.backlogID = msgs[len(msgs)-1].ID
		return msgs, nil
	}

	if s.claimMinIdle > 0 && s.now().Sub(s.lastClaim) >= s.claimMinIdle {
		msgs, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   s.stream,
			Group:    s.group,
			Consumer: s.consumer,
			MinIdle:  s.claimMinIdle,
			Start:    s.claimCursor,
			Count:    defaultBatchSize,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to claim idle entries: %w", err)
		}
		s.claimCursor = next
		if next == "0-0" {
			s.lastClaim = s.now()
		}
		if len(msgs) > 0 {
			return msgs, nil
		}
	}

	return s.readGroup(ctx, ">", s.block)
}

func (s *RedisStreamSource) readGroup(ctx context.Context, id string, block time.Duration) ([]redis.XMessage, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, id},
		Count:    defaultBatchSize,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var msgs []redis.XMessage
	for _, stream := range streams {
		msgs = append(msgs, stream.Messages...)
	}
	return msgs, nil
}

func (s *RedisStreamSource) toMessage(m redis.XMessage) Message {
	key, _ := m.Values[fieldKey].(string)
	value, _ := m.Values[fieldValue].(string)

	msg := Message{
		Topic:  s.stream,
		Key:    key,
		Value:  []byte(value),
		ID:     m.ID,
		commit: m.ID,
	}
	if ms, _, ok := strings.Cut(m.ID, "-"); ok {
		if n, err := strconv.ParseInt(ms, 10, 64); err == nil {
			msg.Time = time.UnixMilli(n)
		}
	}
	return msg
}

// Commit implements Source.
func (s *RedisStreamSource) Commit(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		return errors.New("stream ID cannot be empty")
	}
	if err := s.client.XAck(ctx, s.stream, s.group, msg.ID).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge message: %w", err)
	}
	return nil
}

// Topic implements Source.
func (s *RedisStreamSource) Topic() string { return s.stream }

// Close implements Source. The client is shared and stays open.
func (s *RedisStreamSource) Close() error { return nil }

// PublishToStream appends a key and value to a stream in the layout RedisStreamSource reads.
func PublishToStream(ctx context.Context, client redis.UniversalClient, stream, key string, value []byte) (string, error) {
	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			fieldKey:   key,
			fieldValue: string(value),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add entry to stream: %w", err)
	}
	return id, nil
}

// isConsumerGroupExistsError checks if the error is due to consumer group already existing.
func isConsumerGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// RedisDeadLetter appends dead letters to a capped Redis stream.
type RedisDeadLetter struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisDeadLetter creates a dead letter sink on stream.
func NewRedisDeadLetter(client redis.UniversalClient, stream string, maxLen int64) *RedisDeadLetter {
	if client == nil {
		panic("Redis client cannot be nil")
	}
	return &RedisDeadLetter{client: client, stream: stream, maxLen: maxLen}
}

// Send implements DeadLetter.
func (d *RedisDeadLetter) Send(ctx context.Context, entry DeadLetterEntry) error {
	args := &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]interface{}{
			"topic":     entry.Topic,
			fieldKey:    entry.Key,
			fieldValue:  string(entry.Value),
			"offset":    entry.Offset,
			"source_id": entry.SourceID,
			"reason":    entry.Reason,
			"error":     entry.Error,
			"failed_at": entry.FailedAt.UTC().Format(time.RFC3339),
		},
	}
	if d.maxLen > 0 {
		args.MaxLen = d.maxLen
		args.Approx = true
	}

	if err := d.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter stream: %w", err)
	}
	return nil
}

// Close implements DeadLetter.
func (d *RedisDeadLetter) Close() error { return nil }
