// Package aggregator periodically turns buffered telemetry into consumption
// records: one mean per active VDU and kind, reported against the VDU's
// billing session, after which the sweep window is purged.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/nfvacct/internal/config"
	"github.com/piwi3910/nfvacct/internal/storage"
)

// ErrAlreadyRunning is returned when a sweep is requested while another is in progress.
var ErrAlreadyRunning = errors.New("aggregation already running")

// bytesPerGB converts disk usage samples, reported in bytes, to DISK_GB.
var bytesPerGB = math.Pow(1024, 3)

// Reporter records consumption against a VDU session.
type Reporter interface {
	LogConsumption(ctx context.Context, consumptionType string, value float64, vduSessionID int64) error
}

// Lock excludes concurrent sweeps across processes.
type Lock interface {
	// TryLock reports whether the lock was acquired.
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Report summarizes one sweep.
type Report struct {
	Watermark int64
	Reported  int
	Failed    int
	Skipped   int
	Purged    int64
	Duration  time.Duration
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLock makes every sweep hold lock for its duration.
func WithLock(lock Lock) Option {
	return func(a *Aggregator) { a.lock = lock }
}

// Aggregator runs consumption sweeps.
type Aggregator struct {
	store    storage.Store
	reporter Reporter
	cfg      config.AggregatorConfig
	lock     Lock
	logger   *zap.Logger

	running atomic.Bool
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// New creates an Aggregator.
func New(store storage.Store, reporter Reporter, cfg config.AggregatorConfig, logger *zap.Logger, opts ...Option) (*Aggregator, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if reporter == nil {
		return nil, fmt.Errorf("reporter cannot be nil")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Aggregator{
		store:    store,
		reporter: reporter,
		cfg:      cfg,
		logger:   logger.Named("aggregator"),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Start runs the sweep loop in the background until ctx is done or Stop is called.
func (a *Aggregator) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Run(ctx)
	}()
}

// Stop ends the sweep loop and waits for an in-flight sweep to finish.
func (a *Aggregator) Stop() {
	a.stopped.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}

// Run sweeps every interval until ctx is done or Stop is called.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.logger.Info("aggregator started", zap.Duration("interval", a.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("aggregator stopped")
			return
		case <-a.stopCh:
			a.logger.Info("aggregator stopped")
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Aggregator) tick(ctx context.Context) {
	runCtx := ctx
	if a.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.cfg.RunTimeout)
		defer cancel()
	}

	report, err := a.RunOnce(runCtx)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		a.logger.Debug("previous sweep still running, skipping tick")
	case err != nil:
		a.logger.Error("aggregation sweep failed", zap.Error(err))
	case report != nil:
		a.logger.Info("aggregation sweep complete",
			zap.Int64("watermark", report.Watermark),
			zap.Int("reported", report.Reported),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped),
			zap.Int64("purged", report.Purged),
			zap.Duration("duration", report.Duration))
	}
}

// RunOnce performs a single sweep. It returns ErrAlreadyRunning when a sweep
// is in progress in this process or, with a lock configured, in another one.
// A nil report with a nil error means the buffer was empty.
func (a *Aggregator) RunOnce(ctx context.Context) (*Report, error) {
	if !a.running.CompareAndSwap(false, true) {
		runsTotal.WithLabelValues("skipped").Inc()
		return nil, ErrAlreadyRunning
	}
	defer a.running.Store(false)

	if a.lock != nil {
		ok, err := a.lock.TryLock(ctx)
		if err != nil {
			runsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to acquire aggregation lock: %w", err)
		}
		if !ok {
			runsTotal.WithLabelValues("skipped").Inc()
			return nil, ErrAlreadyRunning
		}
		defer func() {
			// The sweep context may already be cancelled.
			unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := a.lock.Unlock(unlockCtx); err != nil {
				a.logger.Warn("failed to release aggregation lock", zap.Error(err))
			}
		}()
	}

	report, err := a.sweep(ctx)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	runsTotal.WithLabelValues("ok").Inc()
	if report != nil {
		sweepDuration.Observe(report.Duration.Seconds())
	}
	return report, nil
}

func (a *Aggregator) sweep(ctx context.Context) (*Report, error) {
	start := time.Now()

	watermark, err := a.store.MaxSampleID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read sample watermark: %w", err)
	}
	if watermark == 0 {
		return nil, nil
	}

	averages, err := a.store.AverageSamples(ctx, watermark)
	if err != nil {
		return nil, fmt.Errorf("failed to average samples: %w", err)
	}

	report := &Report{Watermark: watermark}
	for _, avg := range averages {
		if avg.Samples == 0 {
			continue
		}
		if avg.SessionID == storage.UnopenedSession {
			report.Skipped++
			reportsTotal.WithLabelValues(string(avg.Kind), "skipped").Inc()
			a.logger.Warn("vdu has no billing session, consumption dropped",
				zap.String("vdu_id", avg.VduUUID),
				zap.String("kind", string(avg.Kind)))
			continue
		}

		value := ConsumptionValue(avg.Kind, avg.Mean)
		if err := a.reporter.LogConsumption(ctx, string(avg.Kind), value, avg.SessionID); err != nil {
			report.Failed++
			reportsTotal.WithLabelValues(string(avg.Kind), "error").Inc()
			a.logger.Error("failed to report consumption",
				zap.String("vdu_id", avg.VduUUID),
				zap.String("kind", string(avg.Kind)),
				zap.Float64("value", value),
				zap.Error(err))
			continue
		}
		report.Reported++
		reportsTotal.WithLabelValues(string(avg.Kind), "ok").Inc()
	}

	purged, err := a.store.PurgeSamples(ctx, watermark)
	if err != nil {
		return nil, fmt.Errorf("failed to purge samples: %w", err)
	}
	report.Purged = purged
	report.Duration = time.Since(start)
	return report, nil
}

// ConsumptionValue converts a sample mean to the unit the billing backend expects.
// Disk samples arrive in bytes; every other kind is reported as is.
func ConsumptionValue(kind storage.MetricKind, mean float64) float64 {
	if kind == storage.MetricDiskGB {
		return mean / bytesPerGB
	}
	return mean
}
