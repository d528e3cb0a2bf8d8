package aggregator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/piwi3910/nfvacct/internal/config"
	"github.com/piwi3910/nfvacct/internal/storage"
)

type consumption struct {
	kind      string
	value     float64
	sessionID int64
}

type fakeReporter struct {
	mu      sync.Mutex
	calls   []consumption
	fail    map[int64]bool
	entered chan struct{}
	release chan struct{}
}

func (r *fakeReporter) LogConsumption(ctx context.Context, kind string, value float64, sessionID int64) error {
	if r.entered != nil {
		r.entered <- struct{}{}
		<-r.release
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, consumption{kind: kind, value: value, sessionID: sessionID})
	if r.fail[sessionID] {
		return errors.New("billing backend unavailable")
	}
	return nil
}

func (r *fakeReporter) recorded() []consumption {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]consumption(nil), r.calls...)
}

func newTestStore(t *testing.T) *storage.GormStore {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(ctx, config.DatabaseConfig{
		Driver:      config.DatabaseSQLite,
		Path:        filepath.Join(t.TempDir(), "accounting.db"),
		AutoMigrate: true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for _, vdu := range []storage.Vdu{
		{UUID: "vdu-a", VnfUUID: "vnf-1", State: storage.EntityActive, SessionID: 11},
		{UUID: "vdu-b", VnfUUID: "vnf-1", State: storage.EntityActive, SessionID: 12},
		{UUID: "vdu-unopened", VnfUUID: "vnf-1", State: storage.EntityActive, SessionID: storage.UnopenedSession},
		{UUID: "vdu-deleted", VnfUUID: "vnf-1", State: storage.EntityDeleted, SessionID: 13},
	} {
		require.NoError(t, store.CreateVdu(ctx, &vdu))
	}
	return store
}

func addSamples(t *testing.T, store storage.Store, vdu string, kind storage.MetricKind, values ...float64) {
	t.Helper()
	for _, v := range values {
		require.NoError(t, store.AppendSample(context.Background(), &storage.VduMetricSample{
			VduUUID: vdu, Kind: kind, Value: v, CreatedAt: time.Now(),
		}))
	}
}

func newTestAggregator(t *testing.T, store storage.Store, reporter Reporter, opts ...Option) *Aggregator {
	t.Helper()
	agg, err := New(store, reporter, config.AggregatorConfig{
		Enabled:  true,
		Interval: time.Hour,
	}, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return agg
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	reporter := &fakeReporter{}
	agg := newTestAggregator(t, store, reporter)

	addSamples(t, store, "vdu-a", storage.MetricCPUCycle, 10, 20, 30)
	addSamples(t, store, "vdu-a", storage.MetricDiskGB, 1<<30, 3<<30)
	addSamples(t, store, "vdu-b", storage.MetricMemoryMB, 512)
	addSamples(t, store, "vdu-unopened", storage.MetricCPUCycle, 99)
	addSamples(t, store, "vdu-deleted", storage.MetricCPUCycle, 99)

	report, err := agg.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, int64(8), report.Watermark)
	assert.Equal(t, 3, report.Reported)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.Equal(t, int64(8), report.Purged)

	got := map[string]consumption{}
	for _, c := range reporter.recorded() {
		got[fmt.Sprintf("%s/%d", c.kind, c.sessionID)] = c
	}
	require.Len(t, got, 3)

	cpu := got["CPU_CYCLE/11"]
	assert.Equal(t, int64(11), cpu.sessionID)
	assert.InDelta(t, 20.0, cpu.value, 1e-9)

	disk := got["DISK_GB/11"]
	assert.InDelta(t, 2.0, disk.value, 1e-9)

	mem := got["MEMORY_MB/12"]
	assert.Equal(t, int64(12), mem.sessionID)
	assert.InDelta(t, 512.0, mem.value, 1e-9)

	maxID, err := store.MaxSampleID(ctx)
	require.NoError(t, err)
	assert.Zero(t, maxID)
}

func TestRunOnceEmptyBuffer(t *testing.T) {
	reporter := &fakeReporter{}
	agg := newTestAggregator(t, newTestStore(t), reporter)

	report, err := agg.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Empty(t, reporter.recorded())
}

func TestRunOnceReportFailureDoesNotStopSweep(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	reporter := &fakeReporter{fail: map[int64]bool{11: true}}
	agg := newTestAggregator(t, store, reporter)

	addSamples(t, store, "vdu-a", storage.MetricCPUCycle, 5)
	addSamples(t, store, "vdu-b", storage.MetricCPUCycle, 7)

	report, err := agg.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Reported)
	assert.Len(t, reporter.recorded(), 2)

	maxID, err := store.MaxSampleID(ctx)
	require.NoError(t, err)
	assert.Zero(t, maxID)
}

func TestRunOnceSkipsWhileRunning(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	reporter := &fakeReporter{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	agg := newTestAggregator(t, store, reporter)
	addSamples(t, store, "vdu-a", storage.MetricCPUCycle, 1)

	done := make(chan error, 1)
	go func() {
		_, err := agg.RunOnce(ctx)
		done <- err
	}()

	<-reporter.entered
	_, err := agg.RunOnce(ctx)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(reporter.release)
	require.NoError(t, <-done)
}

func TestConsumptionValue(t *testing.T) {
	tests := []struct {
		kind storage.MetricKind
		mean float64
		want float64
	}{
		{storage.MetricDiskGB, 5 * (1 << 30), 5},
		{storage.MetricDiskGB, 1 << 29, 0.5},
		{storage.MetricCPUCycle, 37.5, 37.5},
		{storage.MetricMemoryMB, 2048, 2048},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.InDelta(t, tt.want, ConsumptionValue(tt.kind, tt.mean), 1e-12)
		})
	}
}

func TestNew(t *testing.T) {
	store := newTestStore(t)

	_, err := New(nil, &fakeReporter{}, config.AggregatorConfig{Interval: time.Second}, nil)
	assert.Error(t, err)

	_, err = New(store, nil, config.AggregatorConfig{Interval: time.Second}, nil)
	assert.Error(t, err)

	_, err = New(store, &fakeReporter{}, config.AggregatorConfig{}, nil)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	store := newTestStore(t)
	reporter := &fakeReporter{}
	addSamples(t, store, "vdu-a", storage.MetricCPUCycle, 4)

	agg, err := New(store, reporter, config.AggregatorConfig{
		Interval:   10 * time.Millisecond,
		RunTimeout: time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	agg.Start(context.Background())
	assert.Eventually(t, func() bool { return len(reporter.recorded()) == 1 }, 2*time.Second, 10*time.Millisecond)
	agg.Stop()
	agg.Stop()
}

func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLock(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)

	first, err := NewRedisLock(client, "nfvacct:aggregator:lock", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(client, "nfvacct:aggregator:lock", time.Minute)
	require.NoError(t, err)

	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// A holder that never acquired cannot release someone else's lease.
	require.NoError(t, second.Unlock(ctx))
	exists, err := client.Exists(ctx, "nfvacct:aggregator:lock").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	require.NoError(t, first.Unlock(ctx))
	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockReleaseAfterTakeover(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)

	lock, err := NewRedisLock(client, "lease", time.Minute)
	require.NoError(t, err)

	ok, err := lock.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate expiry and another replica taking the lease.
	require.NoError(t, client.Set(ctx, "lease", "someone-else", time.Minute).Err())

	require.NoError(t, lock.Unlock(ctx))
	val, err := client.Get(ctx, "lease").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

func TestNewRedisLockValidation(t *testing.T) {
	client := newTestRedis(t)

	_, err := NewRedisLock(nil, "k", time.Second)
	assert.Error(t, err)
	_, err = NewRedisLock(client, "", time.Second)
	assert.Error(t, err)
	_, err = NewRedisLock(client, "k", 0)
	assert.Error(t, err)
}

func TestRunOnceHonorsLock(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	client := newTestRedis(t)
	reporter := &fakeReporter{}

	holder, err := NewRedisLock(client, "nfvacct:aggregator:lock", time.Minute)
	require.NoError(t, err)
	ok, err := holder.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	lock, err := NewRedisLock(client, "nfvacct:aggregator:lock", time.Minute)
	require.NoError(t, err)
	agg := newTestAggregator(t, store, reporter, WithLock(lock))
	addSamples(t, store, "vdu-a", storage.MetricCPUCycle, 1)

	_, err = agg.RunOnce(ctx)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Empty(t, reporter.recorded())

	require.NoError(t, holder.Unlock(ctx))
	report, err := agg.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reported)

	exists, err := client.Exists(ctx, "nfvacct:aggregator:lock").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
