package telemetry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/piwi3910/nfvacct/internal/config"
	"github.com/piwi3910/nfvacct/internal/events"
	"github.com/piwi3910/nfvacct/internal/storage"
)

func newTestIngestor(t *testing.T) (*Ingestor, *storage.GormStore) {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(ctx, config.DatabaseConfig{
		Driver:      config.DatabaseSQLite,
		Path:        filepath.Join(t.TempDir(), "accounting.db"),
		AutoMigrate: true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.CreateVdu(ctx, &storage.Vdu{
		UUID: "vdu-live", VnfUUID: "vnf-1", NsInstanceUUID: "ns-1", State: storage.EntityActive, SessionID: 7,
	}))
	require.NoError(t, store.CreateVdu(ctx, &storage.Vdu{
		UUID: "vdu-gone", VnfUUID: "vnf-1", NsInstanceUUID: "ns-1", State: storage.EntityDeleted, SessionID: 8,
	}))

	ing, err := NewIngestor(store, config.TelemetryConfig{Metrics: config.DefaultTelemetryMetrics()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	ing.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return ing, store
}

func TestIngest(t *testing.T) {
	tests := []struct {
		name       string
		sample     events.TelemetrySample
		wantStored bool
		wantKind   storage.MetricKind
	}{
		{
			name:       "cpu sample of active vdu",
			sample:     events.TelemetrySample{MetricName: "cpu_util", Value: 42.5, VduID: "vdu-live"},
			wantStored: true,
			wantKind:   storage.MetricCPUCycle,
		},
		{
			name:       "disk bytes are stored unconverted",
			sample:     events.TelemetrySample{MetricName: "disksize", Value: 2147483648, VduID: "vdu-live"},
			wantStored: true,
			wantKind:   storage.MetricDiskGB,
		},
		{
			name:       "container memory maps to memory",
			sample:     events.TelemetrySample{MetricName: "container_memory_usage_bytes", Value: 512, VduID: "vdu-live"},
			wantStored: true,
			wantKind:   storage.MetricMemoryMB,
		},
		{
			name:   "metric outside allow-list",
			sample: events.TelemetrySample{MetricName: "network.packets", Value: 1, VduID: "vdu-live"},
		},
		{
			name:   "deleted vdu",
			sample: events.TelemetrySample{MetricName: "cpu_util", Value: 1, VduID: "vdu-gone"},
		},
		{
			name:   "unknown vdu",
			sample: events.TelemetrySample{MetricName: "cpu_util", Value: 1, VduID: "vdu-nope"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing, store := newTestIngestor(t)
			ctx := context.Background()

			stored, err := ing.Ingest(ctx, tt.sample)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStored, stored)

			maxID, err := store.MaxSampleID(ctx)
			require.NoError(t, err)
			if !tt.wantStored {
				assert.Zero(t, maxID)
				return
			}

			avgs, err := store.AverageSamples(ctx, maxID)
			require.NoError(t, err)
			require.Len(t, avgs, 1)
			assert.Equal(t, tt.wantKind, avgs[0].Kind)
			assert.InDelta(t, tt.sample.Value, avgs[0].Mean, 1e-9)
			assert.Equal(t, int64(7), avgs[0].SessionID)
		})
	}
}

func TestNewIngestor(t *testing.T) {
	t.Run("nil store", func(t *testing.T) {
		_, err := NewIngestor(nil, config.TelemetryConfig{}, nil)
		require.Error(t, err)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, store := newTestIngestor(t)
		_, err := NewIngestor(store, config.TelemetryConfig{
			Metrics: []config.MetricMapping{{Name: "net", Kind: "NETWORK"}},
		}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown kind")
	})

	t.Run("custom allow-list", func(t *testing.T) {
		ing, store := newTestIngestor(t)
		custom, err := NewIngestor(store, config.TelemetryConfig{
			Metrics: []config.MetricMapping{{Name: "vcpu.load", Kind: "CPU_CYCLE"}},
		}, nil)
		require.NoError(t, err)
		custom.now = ing.now

		stored, err := custom.Ingest(context.Background(), events.TelemetrySample{MetricName: "vcpu.load", Value: 3, VduID: "vdu-live"})
		require.NoError(t, err)
		assert.True(t, stored)

		stored, err = custom.Ingest(context.Background(), events.TelemetrySample{MetricName: "cpu_util", Value: 3, VduID: "vdu-live"})
		require.NoError(t, err)
		assert.False(t, stored)
	})
}
