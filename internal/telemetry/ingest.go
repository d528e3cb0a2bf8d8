// Package telemetry filters VNF telemetry down to the consumption metrics the
// billing backend understands and buffers them for aggregation.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/nfvacct/internal/config"
	"github.com/piwi3910/nfvacct/internal/events"
	"github.com/piwi3910/nfvacct/internal/storage"
)

// Ingestor stores allow-listed samples of active VDUs.
type Ingestor struct {
	store  storage.Store
	kinds  map[string]storage.MetricKind
	logger *zap.Logger
	now    func() time.Time
}

// NewIngestor creates an Ingestor for the metric names configured in cfg.
func NewIngestor(store storage.Store, cfg config.TelemetryConfig, logger *zap.Logger) (*Ingestor, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	kinds := make(map[string]storage.MetricKind, len(cfg.Metrics))
	for name, kind := range cfg.MetricKinds() {
		k := storage.MetricKind(kind)
		if !k.Valid() {
			return nil, fmt.Errorf("metric %s: unknown kind %q", name, kind)
		}
		kinds[name] = k
	}

	return &Ingestor{
		store:  store,
		kinds:  kinds,
		logger: logger.Named("telemetry"),
		now:    time.Now,
	}, nil
}

// Ingest buffers s. It reports false without an error when the metric is not
// allow-listed or the VDU is not active.
func (i *Ingestor) Ingest(ctx context.Context, s events.TelemetrySample) (bool, error) {
	kind, ok := i.kinds[s.MetricName]
	if !ok {
		samplesTotal.WithLabelValues("", "unlisted").Inc()
		return false, nil
	}

	if _, err := i.store.GetActiveVdu(ctx, s.VduID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			samplesTotal.WithLabelValues(string(kind), "inactive_vdu").Inc()
			i.logger.Debug("dropping sample of unknown or inactive vdu",
				zap.String("vdu_id", s.VduID),
				zap.String("metric", s.MetricName))
			return false, nil
		}
		return false, fmt.Errorf("failed to look up vdu %s: %w", s.VduID, err)
	}

	sample := &storage.VduMetricSample{
		VduUUID:   s.VduID,
		Kind:      kind,
		Value:     s.Value,
		CreatedAt: i.now().UTC(),
	}
	if err := i.store.AppendSample(ctx, sample); err != nil {
		return false, fmt.Errorf("failed to buffer sample: %w", err)
	}

	samplesTotal.WithLabelValues(string(kind), "stored").Inc()
	return true, nil
}

// Handle adapts Ingest to events.TelemetryHandler.
func (i *Ingestor) Handle(ctx context.Context, s events.TelemetrySample) error {
	_, err := i.Ingest(ctx, s)
	return err
}
