package reconciler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/piwi3910/nfvacct/internal/billing"
	"github.com/piwi3910/nfvacct/internal/events"
	"github.com/piwi3910/nfvacct/internal/storage"
)

func (r *Reconciler) handleTerminateResult(ctx context.Context, ev events.TerminateResult) error {
	ns, ok, err := r.lookupNs(ctx, ev.NsrID)
	if err != nil || !ok {
		return err
	}

	switch ev.State {
	case events.StateCompleted:
		return r.retireNs(ctx, ns)
	case events.StateFailed:
		if ns.State != storage.NsTerminate {
			r.logger.Info("ignoring termination failure for ns not terminating",
				zap.String("ns_id", ns.UUID),
				zap.String("state", string(ns.State)))
			return nil
		}
		if err := r.store.SetNsState(ctx, ns.UUID, storage.NsActive); err != nil {
			return fmt.Errorf("failed to restore ns state: %w", err)
		}
		r.logger.Info("ns termination failed, ns back to active", zap.String("ns_id", ns.UUID))
		return nil
	default:
		r.logger.Debug("ignoring intermediate termination state",
			zap.String("ns_id", ns.UUID),
			zap.String("state", string(ev.State)))
		return nil
	}
}

// retireNs marks the NS and its children deleted and closes their sessions,
// VDUs first, then VNFs, then the NS. Entities already deleted were closed
// when they were removed and are not closed again.
func (r *Reconciler) retireNs(ctx context.Context, ns *storage.NsInstance) error {
	if ns.State == storage.NsDeleted {
		r.logger.Info("ns already deleted", zap.String("ns_id", ns.UUID))
		return nil
	}

	vdus, err := r.store.ListVdusByNs(ctx, ns.UUID)
	if err != nil {
		return fmt.Errorf("failed to list vdus: %w", err)
	}
	vnfs, err := r.store.ListVnfsByNs(ctx, ns.UUID)
	if err != nil {
		return fmt.Errorf("failed to list vnfs: %w", err)
	}

	if err := r.store.MarkNsChildrenDeleted(ctx, ns.UUID); err != nil {
		return fmt.Errorf("failed to mark ns children deleted: %w", err)
	}

	for _, vdu := range vdus {
		if vdu.State != storage.EntityActive {
			continue
		}
		r.closeSession(ctx, billing.KindVDU, vdu.SessionID, zap.String("vdu_id", vdu.UUID))
	}
	for _, vnf := range vnfs {
		if vnf.State != storage.EntityActive {
			continue
		}
		r.closeSession(ctx, billing.KindVNF, vnf.SessionID, zap.String("vnf_id", vnf.UUID))
	}
	r.closeSession(ctx, billing.KindNS, ns.SessionID, zap.String("ns_id", ns.UUID))

	if err := r.store.SetNsState(ctx, ns.UUID, storage.NsDeleted); err != nil {
		return fmt.Errorf("failed to mark ns deleted: %w", err)
	}

	r.logger.Info("ns terminated",
		zap.String("ns_id", ns.UUID),
		zap.Int("vnfs", len(vnfs)),
		zap.Int("vdus", len(vdus)))
	return nil
}
