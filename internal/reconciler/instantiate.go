package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/nfvacct/internal/billing"
	"github.com/piwi3910/nfvacct/internal/events"
	"github.com/piwi3910/nfvacct/internal/osm"
	"github.com/piwi3910/nfvacct/internal/storage"
)

// roTimeLayouts are the timestamp formats OpenMANO uses for created_at.
var roTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (r *Reconciler) handleInstantiateResult(ctx context.Context, ev events.InstantiateResult) error {
	ns, ok, err := r.lookupNs(ctx, ev.NsrID)
	if err != nil || !ok {
		return err
	}

	switch ev.State {
	case events.StateCompleted:
		return r.activateNs(ctx, ns)
	case events.StateFailed:
		if err := r.store.DeleteNsInstance(ctx, ns.UUID); err != nil {
			return fmt.Errorf("failed to remove failed ns: %w", err)
		}
		r.logger.Info("ns instantiation failed, record removed", zap.String("ns_id", ns.UUID))
		return nil
	default:
		r.logger.Debug("ignoring intermediate instantiation state",
			zap.String("ns_id", ns.UUID),
			zap.String("state", string(ev.State)))
		return nil
	}
}

// activateNs discovers the deployed topology of an NS and opens a session for
// the NS, each VNF and each VDU, parents first. A redelivered result for an NS
// whose session is already open walks the topology again so that children
// missed by an earlier, interrupted attempt are still recorded and opened.
func (r *Reconciler) activateNs(ctx context.Context, ns *storage.NsInstance) error {
	switch {
	case ns.State == storage.NsDeleted:
		r.logger.Info("ignoring instantiation result for deleted ns", zap.String("ns_id", ns.UUID))
		return nil
	case ns.SessionID != storage.UnopenedSession && ns.State != storage.NsActive:
		r.logger.Info("ignoring instantiation result for ns leaving service",
			zap.String("ns_id", ns.UUID),
			zap.String("state", string(ns.State)))
		return nil
	case ns.SessionID != storage.UnopenedSession:
		r.logger.Info("ns already active, reconciling topology", zap.String("ns_id", ns.UUID))
	default:
		opened, err := r.openNs(ctx, ns)
		if err != nil || !opened {
			return err
		}
	}

	return r.syncTopology(ctx, ns)
}

// openNs marks the NS active, resolves its owner and opens the NS session.
// It reports false when no session could be attributed and the topology walk
// must be skipped.
func (r *Reconciler) openNs(ctx context.Context, ns *storage.NsInstance) (bool, error) {
	if err := r.store.SetNsState(ctx, ns.UUID, storage.NsActive); err != nil {
		return false, fmt.Errorf("failed to mark ns active: %w", err)
	}
	ns.State = storage.NsActive

	record, err := r.nbi.GetNSInstance(ctx, ns.UUID)
	if errors.Is(err, osm.ErrNotFound) {
		r.logger.Warn("ns no longer known to orchestrator, removing record", zap.String("ns_id", ns.UUID))
		if err := r.store.DeleteNsInstance(ctx, ns.UUID); err != nil {
			return false, fmt.Errorf("failed to remove vanished ns: %w", err)
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch ns from nbi: %w", err)
	}

	nsrID := record.ROInstanceID()
	if nsrID == "" {
		r.logger.Warn("ns has no resource orchestrator deployment, no sessions opened",
			zap.String("ns_id", ns.UUID))
		return false, nil
	}

	tenant, err := r.resolveTenant(ctx, nsrID)
	if err != nil {
		return false, err
	}
	if tenant == nil {
		r.logger.Warn("no tenant owns the ns deployment, no sessions opened",
			zap.String("ns_id", ns.UUID),
			zap.String("nsr_id", nsrID))
		return false, nil
	}

	vim, err := r.nbi.GetVIMAccount(ctx, ns.VimAccountID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch vim account %s: %w", ns.VimAccountID, err)
	}

	ns.TenantUUID = &tenant.UUID
	ns.ManoUser = tenant.Name
	if project := record.Project(); project != "" {
		ns.ManoProject = project
	}
	ns.VimType = vim.VimType
	ns.NfvipopID = r.defaults.NfvipopID

	ns.SessionID = r.openSession(ctx, billing.KindNS, billing.NSAttributes{
		NsID:          ns.UUID,
		NsName:        ns.Name,
		CatalogTenant: ns.CatalogTenant,
		CatalogUser:   ns.CatalogUser,
		ManoID:        ns.ManoID,
		ManoProject:   ns.ManoProject,
		ManoUser:      ns.ManoUser,
		NfvipopID:     ns.NfvipopID,
	}, zap.String("ns_id", ns.UUID))

	if err := r.store.SaveNsInstance(ctx, ns); err != nil {
		return false, fmt.Errorf("failed to save activated ns: %w", err)
	}

	r.logger.Info("ns activated",
		zap.String("ns_id", ns.UUID),
		zap.String("tenant", tenant.UUID),
		zap.Int64("session_id", ns.SessionID))
	return true, nil
}

// syncTopology records every VNF and VDU the orchestrator reports for the NS
// and opens sessions for the ones not seen before.
func (r *Reconciler) syncTopology(ctx context.Context, ns *storage.NsInstance) error {
	vnfs, err := r.nbi.ListVNFInstances(ctx, ns.UUID)
	if err != nil {
		return fmt.Errorf("failed to list vnfs: %w", err)
	}

	flavors := make(map[string]osm.VMFlavor)
	created := 0
	for i := range vnfs {
		vnf, err := r.ensureVnf(ctx, ns, &vnfs[i])
		if err != nil {
			return err
		}
		flavor := r.packageFlavor(ctx, vnfs[i].VnfdID, flavors)
		for _, vimID := range vnfs[i].VimIDs() {
			ok, err := r.ensureVdu(ctx, ns, vnf, vimID, flavor)
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
	}

	r.logger.Info("ns topology recorded",
		zap.String("ns_id", ns.UUID),
		zap.Int("vnfs", len(vnfs)),
		zap.Int("new_vdus", created))
	return nil
}

// resolveTenant walks the RO tenants, recording each one locally, and returns
// the first that owns the deployment. It returns nil when none does.
func (r *Reconciler) resolveTenant(ctx context.Context, nsrID string) (*storage.Tenant, error) {
	tenants, err := r.ro.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ro tenants: %w", err)
	}

	for _, t := range tenants {
		stored, created, err := r.store.EnsureTenant(ctx, &storage.Tenant{
			UUID:        t.UUID,
			Name:        t.Name,
			Description: t.Description,
			CreatedAt:   parseROTime(t.CreatedAt),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record tenant %s: %w", t.UUID, err)
		}
		if created {
			r.logger.Info("recorded tenant", zap.String("tenant", t.UUID), zap.String("name", t.Name))
		}

		exists, err := r.ro.InstanceExists(ctx, t.UUID, nsrID)
		if err != nil {
			r.logger.Warn("failed to check tenant instance",
				zap.String("tenant", t.UUID),
				zap.String("nsr_id", nsrID),
				zap.Error(err))
			continue
		}
		if exists {
			return stored, nil
		}
	}
	return nil, nil
}

// ensureVnf returns the local VNF row, creating it and opening its session if needed.
func (r *Reconciler) ensureVnf(ctx context.Context, ns *storage.NsInstance, rv *osm.VNFInstance) (*storage.Vnf, error) {
	vnf, err := r.store.GetVnf(ctx, rv.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		vnf = &storage.Vnf{
			UUID:           rv.ID,
			Name:           rv.Name(),
			State:          storage.EntityActive,
			NsInstanceUUID: ns.UUID,
			TenantUUID:     derefTenant(ns.TenantUUID),
			VimType:        ns.VimType,
			SessionID:      storage.UnopenedSession,
		}
		if err := r.store.CreateVnf(ctx, vnf); err != nil {
			return nil, fmt.Errorf("failed to record vnf %s: %w", rv.ID, err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load vnf %s: %w", rv.ID, err)
	}

	if vnf.SessionID != storage.UnopenedSession || vnf.State != storage.EntityActive {
		return vnf, nil
	}

	id := r.openSession(ctx, billing.KindVNF, billing.VNFAttributes{
		NsSessionID: ns.SessionID,
		VnfID:       vnf.UUID,
		VnfName:     vnf.Name,
	}, zap.String("ns_id", ns.UUID), zap.String("vnf_id", vnf.UUID))
	if id == storage.UnopenedSession {
		return vnf, nil
	}
	if err := r.store.UpdateVnfSession(ctx, vnf.UUID, id); err != nil {
		return nil, fmt.Errorf("failed to store vnf session: %w", err)
	}
	vnf.SessionID = id
	return vnf, nil
}

// ensureVdu creates the VDU and opens its session when the VIM id is new.
// created reports whether a row was written.
func (r *Reconciler) ensureVdu(ctx context.Context, ns *storage.NsInstance, vnf *storage.Vnf, vimID string, flavor osm.VMFlavor) (bool, error) {
	_, err := r.store.GetVdu(ctx, vimID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("failed to load vdu %s: %w", vimID, err)
	}

	label := flavor.Label()
	if flavor == (osm.VMFlavor{}) {
		label = storage.DefaultFlavor
	}

	vdu := &storage.Vdu{
		UUID:           vimID,
		VnfUUID:        vnf.UUID,
		NsInstanceUUID: ns.UUID,
		TenantUUID:     vnf.TenantUUID,
		NfvipopID:      r.defaults.NfvipopID,
		ProjectName:    ns.ManoProject,
		VCPU:           int(flavor.VCPUCount),
		RAMMB:          int(flavor.MemoryMB),
		DiskGB:         int(flavor.StorageGB),
		Flavor:         label,
		VimType:        vnf.VimType,
		State:          storage.EntityActive,
		SessionID:      storage.UnopenedSession,
	}
	if err := r.store.CreateVdu(ctx, vdu); err != nil {
		return false, fmt.Errorf("failed to record vdu %s: %w", vimID, err)
	}

	id := r.openSession(ctx, billing.KindVDU, billing.VDUAttributes{
		VnfSessionID: vnf.SessionID,
		VduID:        vdu.UUID,
		NfvipopID:    vdu.NfvipopID,
		VCPU:         vdu.VCPU,
		MemoryMB:     vdu.RAMMB,
		DiskGB:       vdu.DiskGB,
	}, zap.String("vnf_id", vnf.UUID), zap.String("vdu_id", vdu.UUID))
	if id == storage.UnopenedSession {
		return true, nil
	}
	if err := r.store.UpdateVduSession(ctx, vdu.UUID, id); err != nil {
		return true, fmt.Errorf("failed to store vdu session: %w", err)
	}
	return true, nil
}

// packageFlavor returns the flavor of a VNF package, memoized in cache.
// A package that cannot be read yields the zero flavor.
func (r *Reconciler) packageFlavor(ctx context.Context, vnfdID string, cache map[string]osm.VMFlavor) osm.VMFlavor {
	if f, ok := cache[vnfdID]; ok {
		return f
	}

	var flavor osm.VMFlavor
	pkg, err := r.nbi.GetVNFPackage(ctx, vnfdID)
	if err != nil {
		r.logger.Warn("failed to read vnf package, using default flavor",
			zap.String("vnfd_id", vnfdID),
			zap.Error(err))
	} else if f, ok := pkg.Flavor(); ok {
		flavor = f
	}

	cache[vnfdID] = flavor
	return flavor
}

func parseROTime(s string) time.Time {
	for _, layout := range roTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

func derefTenant(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
