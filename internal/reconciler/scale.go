package reconciler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/piwi3910/nfvacct/internal/billing"
	"github.com/piwi3910/nfvacct/internal/events"
	"github.com/piwi3910/nfvacct/internal/osm"
	"github.com/piwi3910/nfvacct/internal/storage"
)

func (r *Reconciler) handleScaleResult(ctx context.Context, ev events.ScaleResult) error {
	ns, ok, err := r.lookupNs(ctx, ev.NsrID)
	if err != nil || !ok {
		return err
	}

	direction := ev.Direction
	if direction == "" {
		direction = events.ScaleDirection(ns.ScaleDirection)
	}

	if ev.State != events.StateCompleted {
		r.logger.Info("ns scaling did not complete",
			zap.String("ns_id", ns.UUID),
			zap.String("state", string(ev.State)),
			zap.String("direction", string(direction)))
		if ev.State == events.StateFailed {
			return r.clearScaleDirection(ctx, ns)
		}
		return nil
	}

	if ns.State != storage.NsActive {
		r.logger.Info("ignoring scaling of inactive ns",
			zap.String("ns_id", ns.UUID),
			zap.String("state", string(ns.State)))
		return r.clearScaleDirection(ctx, ns)
	}

	switch direction {
	case events.ScaleOut:
		err = r.scaleOut(ctx, ns)
	case events.ScaleIn:
		err = r.scaleIn(ctx, ns)
	default:
		r.logger.Warn("scaling result without a known direction",
			zap.String("ns_id", ns.UUID),
			zap.String("direction", string(direction)))
	}
	if err != nil {
		return err
	}
	return r.clearScaleDirection(ctx, ns)
}

// scaleOut records and opens sessions for the first VNF that gained VDUs.
func (r *Reconciler) scaleOut(ctx context.Context, ns *storage.NsInstance) error {
	vnfs, err := r.nbi.ListVNFInstances(ctx, ns.UUID)
	if err != nil {
		return fmt.Errorf("failed to list vnfs: %w", err)
	}

	flavors := make(map[string]osm.VMFlavor)
	for i := range vnfs {
		vnf, err := r.store.GetVnf(ctx, vnfs[i].ID)
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn("scaled vnf not recorded locally", zap.String("vnf_id", vnfs[i].ID))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load vnf %s: %w", vnfs[i].ID, err)
		}

		var added int
		for _, vimID := range vnfs[i].VimIDs() {
			created, err := r.ensureVdu(ctx, ns, vnf, vimID, r.packageFlavor(ctx, vnfs[i].VnfdID, flavors))
			if err != nil {
				return err
			}
			if created {
				added++
			}
		}

		if added > 0 {
			r.logger.Info("ns scaled out",
				zap.String("ns_id", ns.UUID),
				zap.String("vnf_id", vnf.UUID),
				zap.Int("vdus_added", added))
			return nil
		}
	}

	r.logger.Info("scale out found no new vdus", zap.String("ns_id", ns.UUID))
	return nil
}

// scaleIn retires one active VDU that OSM no longer reports.
func (r *Reconciler) scaleIn(ctx context.Context, ns *storage.NsInstance) error {
	vnfs, err := r.nbi.ListVNFInstances(ctx, ns.UUID)
	if err != nil {
		return fmt.Errorf("failed to list vnfs: %w", err)
	}

	for i := range vnfs {
		local, err := r.store.ListActiveVdusByVnf(ctx, vnfs[i].ID)
		if err != nil {
			return fmt.Errorf("failed to list vdus of vnf %s: %w", vnfs[i].ID, err)
		}

		reported := make(map[string]struct{}, len(vnfs[i].Vdur))
		for _, id := range vnfs[i].VimIDs() {
			reported[id] = struct{}{}
		}

		for _, vdu := range local {
			if _, ok := reported[vdu.UUID]; ok {
				continue
			}
			r.closeSession(ctx, billing.KindVDU, vdu.SessionID, zap.String("vdu_id", vdu.UUID))
			if err := r.store.MarkVduDeleted(ctx, vdu.UUID); err != nil {
				return fmt.Errorf("failed to mark vdu deleted: %w", err)
			}
			r.logger.Info("ns scaled in",
				zap.String("ns_id", ns.UUID),
				zap.String("vnf_id", vnfs[i].ID),
				zap.String("vdu_id", vdu.UUID))
			return nil
		}
	}

	r.logger.Info("scale in found no removed vdus", zap.String("ns_id", ns.UUID))
	return nil
}

func (r *Reconciler) clearScaleDirection(ctx context.Context, ns *storage.NsInstance) error {
	if ns.ScaleDirection == "" {
		return nil
	}
	if err := r.store.SetScaleDirection(ctx, ns.UUID, ""); err != nil {
		return fmt.Errorf("failed to clear scale direction: %w", err)
	}
	return nil
}
