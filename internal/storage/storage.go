package storage

import (
	"context"
	"errors"
)

// Common sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when creating a row whose primary key is taken.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrStorageUnavailable is returned when the database is not initialized or unreachable.
	ErrStorageUnavailable = errors.New("storage backend unavailable")
)

// Store defines the persistence operations used by the reconciler, telemetry
// ingestion and the aggregator. Implementations must be safe for concurrent use.
type Store interface {
	// CreateNsInstance inserts a new network service.
	// Returns ErrAlreadyExists if a row with the same UUID exists.
	CreateNsInstance(ctx context.Context, ns *NsInstance) error

	// GetNsInstance returns ErrNotFound if the network service does not exist.
	GetNsInstance(ctx context.Context, uuid string) (*NsInstance, error)

	// SaveNsInstance writes every column of ns.
	SaveNsInstance(ctx context.Context, ns *NsInstance) error

	// SetNsState returns ErrNotFound if the network service does not exist.
	SetNsState(ctx context.Context, uuid string, state NsState) error

	// SetScaleDirection records the direction of an in-flight scale operation.
	SetScaleDirection(ctx context.Context, uuid, direction string) error

	// DeleteNsInstance removes the network service row.
	DeleteNsInstance(ctx context.Context, uuid string) error

	// EnsureTenant inserts the tenant if absent and returns the stored row.
	// created reports whether a new row was written.
	EnsureTenant(ctx context.Context, tenant *Tenant) (stored *Tenant, created bool, err error)

	CreateVnf(ctx context.Context, vnf *Vnf) error
	GetVnf(ctx context.Context, uuid string) (*Vnf, error)
	UpdateVnfSession(ctx context.Context, uuid string, sessionID int64) error
	ListVnfsByNs(ctx context.Context, nsUUID string) ([]Vnf, error)

	CreateVdu(ctx context.Context, vdu *Vdu) error
	GetVdu(ctx context.Context, uuid string) (*Vdu, error)
	UpdateVduSession(ctx context.Context, uuid string, sessionID int64) error
	ListVdusByNs(ctx context.Context, nsUUID string) ([]Vdu, error)
	ListActiveVdusByVnf(ctx context.Context, vnfUUID string) ([]Vdu, error)

	// GetActiveVdu returns ErrNotFound unless the VDU exists and is active.
	GetActiveVdu(ctx context.Context, uuid string) (*Vdu, error)
	MarkVduDeleted(ctx context.Context, uuid string) error

	// MarkNsChildrenDeleted marks every VNF and VDU of the network service deleted
	// in a single transaction.
	MarkNsChildrenDeleted(ctx context.Context, nsUUID string) error

	AppendSample(ctx context.Context, sample *VduMetricSample) error

	// MaxSampleID returns the highest buffered sample id, or 0 when the buffer is empty.
	MaxSampleID(ctx context.Context) (int64, error)

	// AverageSamples returns the mean per active VDU and kind over samples with id <= upTo.
	AverageSamples(ctx context.Context, upTo int64) ([]SampleAverage, error)

	// PurgeSamples deletes every sample with id <= upTo in one statement.
	PurgeSamples(ctx context.Context, upTo int64) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
