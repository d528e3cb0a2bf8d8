// Package storage holds the durable record of tenants, network services, their
// VNFs and VDUs, the billing session each one owns, and the buffer of telemetry
// samples awaiting aggregation.
package storage

import "time"

// UnopenedSession marks an entity whose billing session was never opened.
// It must never be sent to the billing backend as a session id.
const UnopenedSession int64 = -1

// DefaultFlavor is the flavor label stored when the VNF package carries no sizing.
const DefaultFlavor = "X_X_XX"

// NsState is the lifecycle state of a network service instance.
type NsState string

// Network service states.
const (
	NsInstantiate NsState = "instantiate"
	NsActive      NsState = "active"
	NsTerminate   NsState = "terminate"
	NsDeleted     NsState = "deleted"
)

// EntityState is the lifecycle state of a VNF or VDU.
type EntityState string

// VNF and VDU states.
const (
	EntityActive  EntityState = "active"
	EntityDeleted EntityState = "deleted"
)

// MetricKind is the consumption category a telemetry sample is reported under.
type MetricKind string

// Consumption kinds understood by the billing backend.
const (
	MetricCPUCycle MetricKind = "CPU_CYCLE"
	MetricMemoryMB MetricKind = "MEMORY_MB"
	MetricDiskGB   MetricKind = "DISK_GB"
)

// Valid reports whether k is one of the known consumption kinds.
func (k MetricKind) Valid() bool {
	switch k {
	case MetricCPUCycle, MetricMemoryMB, MetricDiskGB:
		return true
	}
	return false
}

// Tenant mirrors an orchestrator tenant. Rows are created lazily and never deleted.
type Tenant struct {
	UUID        string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"size:255"`
	Description string
	CreatedAt   time.Time
}

// TableName sets the table name.
func (Tenant) TableName() string { return "tenants" }

// NsInstance is a deployed network service.
type NsInstance struct {
	UUID        string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"size:255"`
	Description string
	State       NsState `gorm:"size:16;index"`
	TenantUUID  *string `gorm:"size:64;index"`

	ManoID        string `gorm:"size:255"`
	ManoProject   string `gorm:"size:255"`
	ManoUser      string `gorm:"size:255"`
	CatalogUser   string `gorm:"size:255"`
	CatalogTenant string `gorm:"size:255"`
	NfvipopID     string `gorm:"size:255"`
	VimAccountID  string `gorm:"size:64"`
	VimType       string `gorm:"size:64"`

	// ScaleDirection holds the direction of an in-flight scale operation.
	ScaleDirection string `gorm:"size:16"`

	SessionID int64 `gorm:"not null;default:-1"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName sets the table name.
func (NsInstance) TableName() string { return "ns_instances" }

// Vnf is a virtual network function of an NsInstance.
type Vnf struct {
	UUID           string      `gorm:"primaryKey;size:64"`
	Name           string      `gorm:"size:255"`
	State          EntityState `gorm:"size:16;index"`
	NsInstanceUUID string      `gorm:"size:64;index"`
	TenantUUID     string      `gorm:"size:64;index"`
	VimType        string      `gorm:"size:64"`
	SessionID      int64       `gorm:"not null;default:-1"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName sets the table name.
func (Vnf) TableName() string { return "vnfs" }

// Vdu is a deployment unit, keyed by the id the VIM assigned to it.
type Vdu struct {
	UUID           string      `gorm:"primaryKey;size:64"`
	VnfUUID        string      `gorm:"size:64;index"`
	NsInstanceUUID string      `gorm:"size:64;index"`
	TenantUUID     string      `gorm:"size:64;index"`
	NfvipopID      string      `gorm:"size:255"`
	ProjectName    string      `gorm:"size:255"`
	VCPU           int         `gorm:"column:vcpu"`
	RAMMB          int         `gorm:"column:ram_mb"`
	DiskGB         int         `gorm:"column:disk_gb"`
	Flavor         string      `gorm:"size:64;default:X_X_XX"`
	VimType        string      `gorm:"size:64"`
	State          EntityState `gorm:"size:16;index"`
	SessionID      int64       `gorm:"not null;default:-1"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName sets the table name.
func (Vdu) TableName() string { return "vdus" }

// VduMetricSample is one buffered telemetry reading. Samples live until the
// next aggregation sweep purges them.
type VduMetricSample struct {
	ID        int64      `gorm:"primaryKey;autoIncrement"`
	VduUUID   string     `gorm:"size:64;index"`
	Kind      MetricKind `gorm:"size:16"`
	Value     float64
	CreatedAt time.Time
}

// TableName sets the table name.
func (VduMetricSample) TableName() string { return "vdu_metric_samples" }

// SampleAverage is the mean of one kind of samples for one active VDU.
type SampleAverage struct {
	VduUUID   string
	SessionID int64
	Kind      MetricKind
	Mean      float64
	Samples   int64
}
