package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/piwi3910/nfvacct/internal/config"
)

func openTestStore(t *testing.T) *GormStore {
	t.Helper()

	s, err := Open(context.Background(), config.DatabaseConfig{
		Driver:      config.DatabaseSQLite,
		Path:        filepath.Join(t.TempDir(), "accounting.db"),
		AutoMigrate: true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedActiveNs(t *testing.T, s *GormStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.CreateNsInstance(ctx, &NsInstance{
		UUID: "ns-1", Name: "ns", State: NsActive, SessionID: 100,
	}))
	require.NoError(t, s.CreateVnf(ctx, &Vnf{
		UUID: "vnf-1", NsInstanceUUID: "ns-1", State: EntityActive, SessionID: 200,
	}))
	require.NoError(t, s.CreateVdu(ctx, &Vdu{
		UUID: "vdu-a", VnfUUID: "vnf-1", NsInstanceUUID: "ns-1", State: EntityActive, SessionID: 301,
	}))
	require.NoError(t, s.CreateVdu(ctx, &Vdu{
		UUID: "vdu-b", VnfUUID: "vnf-1", NsInstanceUUID: "ns-1", State: EntityActive, SessionID: 302,
	}))
}

func TestDialect(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		want    string
		wantErr bool
	}{
		{name: "postgres", cfg: config.DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432}, want: "postgres"},
		{name: "sqlite file", cfg: config.DatabaseConfig{Driver: "sqlite", Path: "/tmp/a.db"}, want: "sqlite"},
		{name: "sqlite memory", cfg: config.DatabaseConfig{Driver: "sqlite", InMemory: true}, want: "sqlite"},
		{name: "sqlite without path", cfg: config.DatabaseConfig{Driver: "sqlite"}, wantErr: true},
		{name: "unknown", cfg: config.DatabaseConfig{Driver: "mysql"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Dialect(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestNsInstanceLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ns := &NsInstance{UUID: "ns-1", Name: "demo", State: NsInstantiate, SessionID: UnopenedSession}
	require.NoError(t, s.CreateNsInstance(ctx, ns))

	err := s.CreateNsInstance(ctx, &NsInstance{UUID: "ns-1", Name: "dup", State: NsInstantiate})
	require.ErrorIs(t, err, ErrAlreadyExists)

	got, err := s.GetNsInstance(ctx, "ns-1")
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Name)
	assert.Equal(t, UnopenedSession, got.SessionID)

	require.NoError(t, s.SetNsState(ctx, "ns-1", NsActive))
	require.NoError(t, s.SetScaleDirection(ctx, "ns-1", "SCALE_OUT"))

	got, err = s.GetNsInstance(ctx, "ns-1")
	require.NoError(t, err)
	assert.Equal(t, NsActive, got.State)
	assert.Equal(t, "SCALE_OUT", got.ScaleDirection)

	got.SessionID = 42
	got.ManoUser = "tenant-a"
	require.NoError(t, s.SaveNsInstance(ctx, got))

	got, err = s.GetNsInstance(ctx, "ns-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.SessionID)
	assert.Equal(t, "tenant-a", got.ManoUser)

	require.ErrorIs(t, s.SetNsState(ctx, "missing", NsActive), ErrNotFound)

	require.NoError(t, s.DeleteNsInstance(ctx, "ns-1"))
	_, err = s.GetNsInstance(ctx, "ns-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureTenant(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stored, created, err := s.EnsureTenant(ctx, &Tenant{UUID: "t-1", Name: "admin", Description: "first"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "admin", stored.Name)

	stored, created, err = s.EnsureTenant(ctx, &Tenant{UUID: "t-1", Name: "renamed"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "admin", stored.Name)
}

func TestMarkNsChildrenDeleted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedActiveNs(t, s)

	require.NoError(t, s.MarkNsChildrenDeleted(ctx, "ns-1"))

	vnfs, err := s.ListVnfsByNs(ctx, "ns-1")
	require.NoError(t, err)
	require.Len(t, vnfs, 1)
	assert.Equal(t, EntityDeleted, vnfs[0].State)

	vdus, err := s.ListVdusByNs(ctx, "ns-1")
	require.NoError(t, err)
	require.Len(t, vdus, 2)
	for _, vdu := range vdus {
		assert.Equal(t, EntityDeleted, vdu.State)
	}

	for _, id := range []string{"vdu-a", "vdu-b"} {
		_, err := s.GetActiveVdu(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestVduQueries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedActiveNs(t, s)

	vdu, err := s.GetActiveVdu(ctx, "vdu-a")
	require.NoError(t, err)
	assert.Equal(t, int64(301), vdu.SessionID)

	require.NoError(t, s.MarkVduDeleted(ctx, "vdu-a"))

	_, err = s.GetActiveVdu(ctx, "vdu-a")
	require.ErrorIs(t, err, ErrNotFound)

	vdu, err = s.GetVdu(ctx, "vdu-a")
	require.NoError(t, err)
	assert.Equal(t, EntityDeleted, vdu.State)

	active, err := s.ListActiveVdusByVnf(ctx, "vnf-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "vdu-b", active[0].UUID)

	require.NoError(t, s.UpdateVduSession(ctx, "vdu-b", 999))
	vdu, err = s.GetVdu(ctx, "vdu-b")
	require.NoError(t, err)
	assert.Equal(t, int64(999), vdu.SessionID)

	require.ErrorIs(t, s.UpdateVnfSession(ctx, "missing", 1), ErrNotFound)
}

func TestSampleAggregationWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedActiveNs(t, s)

	maxID, err := s.MaxSampleID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), maxID)

	for _, v := range []float64{10, 20, 30} {
		require.NoError(t, s.AppendSample(ctx, &VduMetricSample{VduUUID: "vdu-a", Kind: MetricCPUCycle, Value: v}))
	}
	require.NoError(t, s.AppendSample(ctx, &VduMetricSample{VduUUID: "vdu-a", Kind: MetricMemoryMB, Value: 512}))
	require.NoError(t, s.AppendSample(ctx, &VduMetricSample{VduUUID: "vdu-b", Kind: MetricDiskGB, Value: 4}))

	watermark, err := s.MaxSampleID(ctx)
	require.NoError(t, err)

	// Arrives after the watermark and must survive the purge.
	require.NoError(t, s.AppendSample(ctx, &VduMetricSample{VduUUID: "vdu-a", Kind: MetricCPUCycle, Value: 1000}))

	avgs, err := s.AverageSamples(ctx, watermark)
	require.NoError(t, err)
	require.Len(t, avgs, 3)

	assert.Equal(t, "vdu-a", avgs[0].VduUUID)
	assert.Equal(t, MetricCPUCycle, avgs[0].Kind)
	assert.InDelta(t, 20.0, avgs[0].Mean, 1e-9)
	assert.Equal(t, int64(3), avgs[0].Samples)
	assert.Equal(t, int64(301), avgs[0].SessionID)

	assert.Equal(t, MetricMemoryMB, avgs[1].Kind)
	assert.InDelta(t, 512.0, avgs[1].Mean, 1e-9)

	assert.Equal(t, "vdu-b", avgs[2].VduUUID)
	assert.Equal(t, int64(302), avgs[2].SessionID)

	purged, err := s.PurgeSamples(ctx, watermark)
	require.NoError(t, err)
	assert.Equal(t, int64(5), purged)

	remaining, err := s.MaxSampleID(ctx)
	require.NoError(t, err)
	assert.Equal(t, watermark+1, remaining)
}

func TestAverageSamplesSkipsInactiveVdus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedActiveNs(t, s)

	require.NoError(t, s.AppendSample(ctx, &VduMetricSample{VduUUID: "vdu-a", Kind: MetricCPUCycle, Value: 5}))
	require.NoError(t, s.MarkVduDeleted(ctx, "vdu-a"))

	watermark, err := s.MaxSampleID(ctx)
	require.NoError(t, err)

	avgs, err := s.AverageSamples(ctx, watermark)
	require.NoError(t, err)
	assert.Empty(t, avgs)

	purged, err := s.PurgeSamples(ctx, watermark)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
