package reconciler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/piwi3910/nfvacct/internal/events"
	"github.com/piwi3910/nfvacct/internal/storage"
)

// handleInstantiateRequest records a network service that OSM is about to deploy.
// A repeated request for a known NS is a no-op.
func (r *Reconciler) handleInstantiateRequest(ctx context.Context, ev events.InstantiateRequest) error {
	description := ev.Description
	if description == "" {
		description = events.DefaultDescription
	}

	ns := &storage.NsInstance{
		UUID:          ev.NsInstanceID,
		Name:          ev.Name,
		Description:   description,
		State:         storage.NsInstantiate,
		ManoID:        r.defaults.ManoID,
		ManoProject:   r.defaults.ManoProject,
		CatalogUser:   r.defaults.CatalogUser,
		CatalogTenant: r.defaults.CatalogTenant,
		NfvipopID:     ev.VimAccountID,
		VimAccountID:  ev.VimAccountID,
		SessionID:     storage.UnopenedSession,
	}

	err := r.store.CreateNsInstance(ctx, ns)
	switch {
	case errors.Is(err, storage.ErrAlreadyExists):
		r.logger.Info("ns instance already recorded",
			zap.String("ns_id", ev.NsInstanceID))
		return nil
	case err != nil:
		return fmt.Errorf("failed to record ns instance: %w", err)
	}

	r.logger.Info("recorded ns instance",
		zap.String("ns_id", ns.UUID),
		zap.String("name", ns.Name),
		zap.String("vim_account_id", ns.VimAccountID))
	return nil
}

// handleTerminateRequest marks a known NS as terminating.
func (r *Reconciler) handleTerminateRequest(ctx context.Context, ev events.TerminateRequest) error {
	ns, ok, err := r.lookupNs(ctx, ev.NsInstanceID)
	if err != nil || !ok {
		return err
	}
	if ns.State == storage.NsDeleted {
		r.logger.Info("ignoring terminate for deleted ns", zap.String("ns_id", ns.UUID))
		return nil
	}

	if err := r.store.SetNsState(ctx, ns.UUID, storage.NsTerminate); err != nil {
		return fmt.Errorf("failed to mark ns terminating: %w", err)
	}
	r.logger.Info("ns terminating", zap.String("ns_id", ns.UUID))
	return nil
}

// handleScaleRequest remembers the direction of a scale operation so the
// matching result can be applied without it.
func (r *Reconciler) handleScaleRequest(ctx context.Context, ev events.ScaleRequest) error {
	ns, ok, err := r.lookupNs(ctx, ev.NsInstanceID)
	if err != nil || !ok {
		return err
	}

	r.logger.Info("ns scaling requested",
		zap.String("ns_id", ns.UUID),
		zap.String("direction", string(ev.Direction)))

	if ev.Direction == "" {
		return nil
	}
	if err := r.store.SetScaleDirection(ctx, ns.UUID, string(ev.Direction)); err != nil {
		return fmt.Errorf("failed to record scale direction: %w", err)
	}
	return nil
}

// lookupNs loads a network service. Events for services this instance never
// recorded are ignored, so ok is false with a nil error in that case.
func (r *Reconciler) lookupNs(ctx context.Context, uuid string) (*storage.NsInstance, bool, error) {
	ns, err := r.store.GetNsInstance(ctx, uuid)
	if errors.Is(err, storage.ErrNotFound) {
		r.logger.Debug("ignoring event for unknown ns", zap.String("ns_id", uuid))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load ns instance: %w", err)
	}
	return ns, true, nil
}
