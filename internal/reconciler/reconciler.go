// Package reconciler applies OSM lifecycle notifications to the local store
// and keeps billing sessions in step with the topology OSM reports.
//
// Each notification is handled to completion or fails outright. A session
// that cannot be opened keeps the unopened sentinel and processing moves on;
// nothing already opened is rolled back.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/nfvacct/internal/billing"
	"github.com/piwi3910/nfvacct/internal/events"
	"github.com/piwi3910/nfvacct/internal/osm"
	"github.com/piwi3910/nfvacct/internal/storage"
)

// NBI is the subset of the OSM northbound client the reconciler reads from.
type NBI interface {
	GetNSInstance(ctx context.Context, nsID string) (*osm.NSInstance, error)
	ListVNFInstances(ctx context.Context, nsID string) ([]osm.VNFInstance, error)
	GetVIMAccount(ctx context.Context, vimID string) (*osm.VIMAccount, error)
	GetVNFPackage(ctx context.Context, vnfdID string) (*osm.VNFPackage, error)
}

// RO is the subset of the resource orchestrator client used for tenant resolution.
type RO interface {
	ListTenants(ctx context.Context) ([]osm.ROTenant, error)
	InstanceExists(ctx context.Context, tenantID, nsrID string) (bool, error)
}

// Ledger opens and closes billing sessions.
type Ledger interface {
	Open(ctx context.Context, kind billing.Kind, attrs billing.Attributes) (int64, error)
	Close(ctx context.Context, sessionID int64, kind billing.Kind) error
}

// Defaults are the fixed identifiers stamped on every activated NS.
type Defaults struct {
	ManoID        string
	NfvipopID     string
	CatalogUser   string
	CatalogTenant string
	ManoProject   string
}

// Params holds the reconciler dependencies.
type Params struct {
	Store    storage.Store
	NBI      NBI
	RO       RO
	Ledger   Ledger
	Defaults Defaults
	Logger   *zap.Logger
}

// Reconciler handles lifecycle events. It is not safe for concurrent use
// on events of the same NS.
type Reconciler struct {
	store    storage.Store
	nbi      NBI
	ro       RO
	ledger   Ledger
	defaults Defaults
	logger   *zap.Logger
}

// New creates a Reconciler.
func New(p Params) (*Reconciler, error) {
	switch {
	case p.Store == nil:
		return nil, fmt.Errorf("store cannot be nil")
	case p.NBI == nil:
		return nil, fmt.Errorf("nbi client cannot be nil")
	case p.RO == nil:
		return nil, fmt.Errorf("ro client cannot be nil")
	case p.Ledger == nil:
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if p.Defaults.NfvipopID == "" {
		return nil, fmt.Errorf("default nfvipop id cannot be empty")
	}

	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		store:    p.Store,
		nbi:      p.NBI,
		ro:       p.RO,
		ledger:   p.Ledger,
		defaults: p.Defaults,
		logger:   logger.Named("reconciler"),
	}, nil
}

// Handle dispatches one lifecycle event.
func (r *Reconciler) Handle(ctx context.Context, ev events.LifecycleEvent) error {
	if ev == nil {
		return fmt.Errorf("%w: nil lifecycle event", events.ErrMalformed)
	}

	op := string(ev.Operation())
	start := time.Now()

	err := r.dispatch(ctx, ev)

	handleDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		eventsHandledTotal.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("failed to handle %s for ns %s: %w", op, ev.NsID(), err)
	}
	eventsHandledTotal.WithLabelValues(op, "ok").Inc()
	return nil
}

func (r *Reconciler) dispatch(ctx context.Context, ev events.LifecycleEvent) error {
	switch e := ev.(type) {
	case events.InstantiateRequest:
		return r.handleInstantiateRequest(ctx, e)
	case events.TerminateRequest:
		return r.handleTerminateRequest(ctx, e)
	case events.ScaleRequest:
		return r.handleScaleRequest(ctx, e)
	case events.InstantiateResult:
		return r.handleInstantiateResult(ctx, e)
	case events.TerminateResult:
		return r.handleTerminateResult(ctx, e)
	case events.ScaleResult:
		return r.handleScaleResult(ctx, e)
	default:
		return fmt.Errorf("%w: %T", events.ErrUnsupportedOperation, ev)
	}
}

// openSession opens a session and returns its id, or the unopened sentinel on failure.
func (r *Reconciler) openSession(ctx context.Context, kind billing.Kind, attrs billing.Attributes, fields ...zap.Field) int64 {
	id, err := r.ledger.Open(ctx, kind, attrs)
	if err != nil {
		sessionCallsTotal.WithLabelValues(string(kind), "open", "error").Inc()
		r.logger.Error("failed to open session, leaving it unopened",
			append(fields, zap.String("kind", string(kind)), zap.Error(err))...)
		return storage.UnopenedSession
	}
	sessionCallsTotal.WithLabelValues(string(kind), "open", "ok").Inc()
	return id
}

// closeSession closes a session. Unopened sessions are skipped and failures are logged.
func (r *Reconciler) closeSession(ctx context.Context, kind billing.Kind, sessionID int64, fields ...zap.Field) {
	fields = append(fields, zap.String("kind", string(kind)), zap.Int64("session_id", sessionID))

	if sessionID == storage.UnopenedSession {
		sessionCallsTotal.WithLabelValues(string(kind), "close", "skipped").Inc()
		r.logger.Debug("skipping close of unopened session", fields...)
		return
	}

	if err := r.ledger.Close(ctx, sessionID, kind); err != nil {
		sessionCallsTotal.WithLabelValues(string(kind), "close", "error").Inc()
		r.logger.Error("failed to close session", append(fields, zap.Error(err))...)
		return
	}
	sessionCallsTotal.WithLabelValues(string(kind), "close", "ok").Inc()
}
