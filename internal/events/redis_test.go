package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	_, client := setupTestMiniredis(t)
	return client
}

func setupTestMiniredis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStreamSource_FetchAndCommit(t *testing.T) {
	ctx := context.Background()
	client := setupTestRedis(t)

	src, err := NewRedisStreamSource(ctx, client, "nfvacct:ns", "MON_ACC", "acc-0", 0)
	require.NoError(t, err)
	src.block = 50 * time.Millisecond

	// Creating the group twice is not an error.
	_, err = NewRedisStreamSource(ctx, client, "nfvacct:ns", "MON_ACC", "acc-0", 0)
	require.NoError(t, err)

	_, err = PublishToStream(ctx, client, "nfvacct:ns", "instantiate", []byte("nsInstanceId: ns-1"))
	require.NoError(t, err)
	_, err = PublishToStream(ctx, client, "nfvacct:ns", "terminate", []byte("nsInstanceId: ns-1"))
	require.NoError(t, err)

	first, err := src.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "instantiate", first.Key)
	assert.Equal(t, "nsInstanceId: ns-1", string(first.Value))
	assert.Equal(t, "nfvacct:ns", first.Topic)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Time.IsZero())

	second, err := src.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "terminate", second.Key)

	pending, err := client.XPending(ctx, "nfvacct:ns", "MON_ACC").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending.Count)

	require.NoError(t, src.Commit(ctx, first))
	require.NoError(t, src.Commit(ctx, second))

	pending, err = client.XPending(ctx, "nfvacct:ns", "MON_ACC").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestRedisStreamSource_FetchHonoursContext(t *testing.T) {
	client := setupTestRedis(t)

	src, err := NewRedisStreamSource(context.Background(), client, "nfvacct:ns", "MON_ACC", "acc-0", 0)
	require.NoError(t, err)
	src.block = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = src.Fetch(ctx)
	require.Error(t, err)
}

func TestNewRedisStreamSource_Validation(t *testing.T) {
	client := setupTestRedis(t)

	tests := []struct {
		name     string
		stream   string
		group    string
		consumer string
		idle     time.Duration
	}{
		{name: "empty stream", group: "g", consumer: "c"},
		{name: "empty group", stream: "s", consumer: "c"},
		{name: "empty consumer", stream: "s", group: "g"},
		{name: "negative idle", stream: "s", group: "g", consumer: "c", idle: -time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRedisStreamSource(context.Background(), client, tt.stream, tt.group, tt.consumer, tt.idle)
			require.Error(t, err)
		})
	}

	assert.Panics(t, func() {
		_, _ = NewRedisStreamSource(context.Background(), nil, "s", "g", "c", 0)
	})
}

func TestRedisStreamSource_RestartRedeliversUnacked(t *testing.T) {
	ctx := context.Background()
	client := setupTestRedis(t)

	first, err := NewRedisStreamSource(ctx, client, "nfvacct:ns", "MON_ACC", "acc-0", 0)
	require.NoError(t, err)
	first.block = 20 * time.Millisecond

	for _, key := range []string{"instantiate", "instantiated", "terminate"} {
		_, err := PublishToStream(ctx, client, "nfvacct:ns", key, []byte("nsInstanceId: ns-1"))
		require.NoError(t, err)
	}

	// The first message is handled; the rest are read into the batch but the
	// process goes away before acknowledging them.
	msg, err := first.Fetch(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Commit(ctx, msg))

	restarted, err := NewRedisStreamSource(ctx, client, "nfvacct:ns", "MON_ACC", "acc-0", 0)
	require.NoError(t, err)
	restarted.block = 20 * time.Millisecond

	var keys []string
	for i := 0; i < 2; i++ {
		msg, err := restarted.Fetch(ctx)
		require.NoError(t, err)
		keys = append(keys, msg.Key)
		require.NoError(t, restarted.Commit(ctx, msg))
	}
	assert.Equal(t, []string{"instantiated", "terminate"}, keys)

	pending, err := client.XPending(ctx, "nfvacct:ns", "MON_ACC").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)

	_, err = PublishToStream(ctx, client, "nfvacct:ns", "scale", []byte("nsInstanceId: ns-1"))
	require.NoError(t, err)
	msg, err = restarted.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "scale", msg.Key)
}

func TestRedisStreamSource_ClaimsIdleEntriesOfOtherConsumers(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestMiniredis(t)

	gone, err := NewRedisStreamSource(ctx, client, "nfvacct:ns", "MON_ACC", "acc-old", 0)
	require.NoError(t, err)
	gone.block = 20 * time.Millisecond

	_, err = PublishToStream(ctx, client, "nfvacct:ns", "instantiated", []byte("nsr_id: ns-1"))
	require.NoError(t, err)
	_, err = gone.Fetch(ctx)
	require.NoError(t, err)

	src, err := NewRedisStreamSource(ctx, client, "nfvacct:ns", "MON_ACC", "acc-new", time.Minute)
	require.NoError(t, err)
	src.block = 20 * time.Millisecond

	mr.SetTime(time.Now().Add(10 * time.Minute))

	msg, err := src.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "instantiated", msg.Key)
	require.NoError(t, src.Commit(ctx, msg))

	pending, err := client.XPending(ctx, "nfvacct:ns", "MON_ACC").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestRedisDeadLetter_Send(t *testing.T) {
	ctx := context.Background()
	client := setupTestRedis(t)
	dlq := NewRedisDeadLetter(client, "nfvacct:dlq", 100)

	failedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	err := dlq.Send(ctx, DeadLetterEntry{
		Topic:    "ns",
		Key:      "instantiated",
		Value:    []byte("nsr_id: ns-1"),
		Offset:   42,
		Reason:   ReasonHandler,
		Error:    "billing backend unavailable",
		FailedAt: failedAt,
	})
	require.NoError(t, err)

	entries, err := client.XRange(ctx, "nfvacct:dlq", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	v := entries[0].Values
	assert.Equal(t, "ns", v["topic"])
	assert.Equal(t, "instantiated", v["key"])
	assert.Equal(t, "nsr_id: ns-1", v["value"])
	assert.Equal(t, "42", v["offset"])
	assert.Equal(t, ReasonHandler, v["reason"])
	assert.Equal(t, "billing backend unavailable", v["error"])
	assert.Equal(t, "2024-03-01T12:00:00Z", v["failed_at"])
}
