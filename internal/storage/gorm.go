package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/piwi3910/nfvacct/internal/config"
)

// GormStore implements Store on top of gorm.
type GormStore struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

var _ Store = (*GormStore)(nil)

// Open connects to the configured database and, when requested, migrates the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*GormStore, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{}
	if logger != nil {
		gormCfg.Logger = NewGormLogger(logger.Named("gorm"), DefaultGormLoggerConfig())
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s := &GormStore{db: db, sqlDB: sqlDB}

	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Dialect returns the gorm dialector for the configured driver.
func Dialect(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DatabasePostgres:
		return postgres.Open(fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.SSLMode,
		)), nil
	case config.DatabaseSQLite:
		if cfg.InMemory {
			return sqlite.Open("file:nfvacct?mode=memory&cache=shared&_pragma=busy_timeout(5000)"), nil
		}
		if cfg.Path == "" {
			return nil, errors.New("sqlite path is required when in_memory is false")
		}
		return sqlite.Open(fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", cfg.Path)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Migrate creates or updates the schema.
func (s *GormStore) Migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStorageUnavailable
	}
	if err := s.db.WithContext(ctx).AutoMigrate(
		&Tenant{},
		&NsInstance{},
		&Vnf{},
		&Vdu{},
		&VduMetricSample{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return ErrStorageUnavailable
	}
	if err := s.sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

// Close closes the database connection pool.
func (s *GormStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// CreateNsInstance inserts a new network service.
func (s *GormStore) CreateNsInstance(ctx context.Context, ns *NsInstance) error {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(ns)
	if res.Error != nil {
		return fmt.Errorf("insert ns instance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetNsInstance fetches a network service by UUID.
func (s *GormStore) GetNsInstance(ctx context.Context, uuid string) (*NsInstance, error) {
	var ns NsInstance
	if err := s.db.WithContext(ctx).First(&ns, "uuid = ?", uuid).Error; err != nil {
		return nil, notFound(err)
	}
	return &ns, nil
}

// SaveNsInstance writes every column of ns.
func (s *GormStore) SaveNsInstance(ctx context.Context, ns *NsInstance) error {
	if err := s.db.WithContext(ctx).Save(ns).Error; err != nil {
		return fmt.Errorf("save ns instance: %w", err)
	}
	return nil
}

// SetNsState updates the state of a network service.
func (s *GormStore) SetNsState(ctx context.Context, uuid string, state NsState) error {
	res := s.db.WithContext(ctx).Model(&NsInstance{}).Where("uuid = ?", uuid).Update("state", state)
	if res.Error != nil {
		return fmt.Errorf("update ns state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetScaleDirection records the direction of an in-flight scale operation.
func (s *GormStore) SetScaleDirection(ctx context.Context, uuid, direction string) error {
	res := s.db.WithContext(ctx).Model(&NsInstance{}).Where("uuid = ?", uuid).Update("scale_direction", direction)
	if res.Error != nil {
		return fmt.Errorf("update scale direction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteNsInstance removes the network service row.
func (s *GormStore) DeleteNsInstance(ctx context.Context, uuid string) error {
	if err := s.db.WithContext(ctx).Where("uuid = ?", uuid).Delete(&NsInstance{}).Error; err != nil {
		return fmt.Errorf("delete ns instance: %w", err)
	}
	return nil
}

// EnsureTenant inserts the tenant if absent and returns the stored row.
func (s *GormStore) EnsureTenant(ctx context.Context, tenant *Tenant) (*Tenant, bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(tenant)
	if res.Error != nil {
		return nil, false, fmt.Errorf("insert tenant: %w", res.Error)
	}

	var stored Tenant
	if err := s.db.WithContext(ctx).First(&stored, "uuid = ?", tenant.UUID).Error; err != nil {
		return nil, false, fmt.Errorf("load tenant: %w", notFound(err))
	}
	return &stored, res.RowsAffected > 0, nil
}

// CreateVnf inserts a VNF.
func (s *GormStore) CreateVnf(ctx context.Context, vnf *Vnf) error {
	if err := s.db.WithContext(ctx).Create(vnf).Error; err != nil {
		return fmt.Errorf("insert vnf: %w", err)
	}
	return nil
}

// GetVnf fetches a VNF by UUID.
func (s *GormStore) GetVnf(ctx context.Context, uuid string) (*Vnf, error) {
	var vnf Vnf
	if err := s.db.WithContext(ctx).First(&vnf, "uuid = ?", uuid).Error; err != nil {
		return nil, notFound(err)
	}
	return &vnf, nil
}

// UpdateVnfSession stores the billing session id of a VNF.
func (s *GormStore) UpdateVnfSession(ctx context.Context, uuid string, sessionID int64) error {
	res := s.db.WithContext(ctx).Model(&Vnf{}).Where("uuid = ?", uuid).Update("session_id", sessionID)
	if res.Error != nil {
		return fmt.Errorf("update vnf session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListVnfsByNs returns every VNF of the network service, oldest first.
func (s *GormStore) ListVnfsByNs(ctx context.Context, nsUUID string) ([]Vnf, error) {
	var vnfs []Vnf
	err := s.db.WithContext(ctx).
		Where("ns_instance_uuid = ?", nsUUID).
		Order("created_at, uuid").
		Find(&vnfs).Error
	if err != nil {
		return nil, fmt.Errorf("list vnfs: %w", err)
	}
	return vnfs, nil
}

// CreateVdu inserts a VDU.
func (s *GormStore) CreateVdu(ctx context.Context, vdu *Vdu) error {
	if err := s.db.WithContext(ctx).Create(vdu).Error; err != nil {
		return fmt.Errorf("insert vdu: %w", err)
	}
	return nil
}

// GetVdu fetches a VDU by its VIM id regardless of state.
func (s *GormStore) GetVdu(ctx context.Context, uuid string) (*Vdu, error) {
	var vdu Vdu
	if err := s.db.WithContext(ctx).First(&vdu, "uuid = ?", uuid).Error; err != nil {
		return nil, notFound(err)
	}
	return &vdu, nil
}

// UpdateVduSession stores the billing session id of a VDU.
func (s *GormStore) UpdateVduSession(ctx context.Context, uuid string, sessionID int64) error {
	res := s.db.WithContext(ctx).Model(&Vdu{}).Where("uuid = ?", uuid).Update("session_id", sessionID)
	if res.Error != nil {
		return fmt.Errorf("update vdu session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListVdusByNs returns every VDU of the network service, oldest first.
func (s *GormStore) ListVdusByNs(ctx context.Context, nsUUID string) ([]Vdu, error) {
	var vdus []Vdu
	err := s.db.WithContext(ctx).
		Where("ns_instance_uuid = ?", nsUUID).
		Order("created_at, uuid").
		Find(&vdus).Error
	if err != nil {
		return nil, fmt.Errorf("list vdus: %w", err)
	}
	return vdus, nil
}

// ListActiveVdusByVnf returns the active VDUs of a VNF, oldest first.
func (s *GormStore) ListActiveVdusByVnf(ctx context.Context, vnfUUID string) ([]Vdu, error) {
	var vdus []Vdu
	err := s.db.WithContext(ctx).
		Where("vnf_uuid = ? AND state = ?", vnfUUID, EntityActive).
		Order("created_at, uuid").
		Find(&vdus).Error
	if err != nil {
		return nil, fmt.Errorf("list vnf vdus: %w", err)
	}
	return vdus, nil
}

// GetActiveVdu fetches a VDU only if it is active.
func (s *GormStore) GetActiveVdu(ctx context.Context, uuid string) (*Vdu, error) {
	var vdu Vdu
	err := s.db.WithContext(ctx).First(&vdu, "uuid = ? AND state = ?", uuid, EntityActive).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &vdu, nil
}

// MarkVduDeleted marks a single VDU deleted.
func (s *GormStore) MarkVduDeleted(ctx context.Context, uuid string) error {
	res := s.db.WithContext(ctx).Model(&Vdu{}).Where("uuid = ?", uuid).Update("state", EntityDeleted)
	if res.Error != nil {
		return fmt.Errorf("mark vdu deleted: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkNsChildrenDeleted marks every VNF and VDU of the network service deleted.
func (s *GormStore) MarkNsChildrenDeleted(ctx context.Context, nsUUID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Vdu{}).Where("ns_instance_uuid = ?", nsUUID).Update("state", EntityDeleted).Error; err != nil {
			return fmt.Errorf("mark vdus deleted: %w", err)
		}
		if err := tx.Model(&Vnf{}).Where("ns_instance_uuid = ?", nsUUID).Update("state", EntityDeleted).Error; err != nil {
			return fmt.Errorf("mark vnfs deleted: %w", err)
		}
		return nil
	})
}

// AppendSample buffers a telemetry sample.
func (s *GormStore) AppendSample(ctx context.Context, sample *VduMetricSample) error {
	if err := s.db.WithContext(ctx).Create(sample).Error; err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// MaxSampleID returns the highest buffered sample id.
func (s *GormStore) MaxSampleID(ctx context.Context) (int64, error) {
	var maxID sql.NullInt64
	if err := s.db.WithContext(ctx).Model(&VduMetricSample{}).Select("MAX(id)").Scan(&maxID).Error; err != nil {
		return 0, fmt.Errorf("max sample id: %w", err)
	}
	if !maxID.Valid {
		return 0, nil
	}
	return maxID.Int64, nil
}

// AverageSamples returns the mean per active VDU and kind over samples with id <= upTo.
func (s *GormStore) AverageSamples(ctx context.Context, upTo int64) ([]SampleAverage, error) {
	var rows []SampleAverage
	err := s.db.WithContext(ctx).
		Table("vdu_metric_samples AS s").
		Select("s.vdu_uuid AS vdu_uuid, v.session_id AS session_id, s.kind AS kind, AVG(s.value) AS mean, COUNT(*) AS samples").
		Joins("JOIN vdus AS v ON v.uuid = s.vdu_uuid").
		Where("v.state = ? AND s.id <= ?", EntityActive, upTo).
		Group("s.vdu_uuid, v.session_id, s.kind").
		Order("s.vdu_uuid, s.kind").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("average samples: %w", err)
	}
	return rows, nil
}

// PurgeSamples deletes every sample with id <= upTo.
func (s *GormStore) PurgeSamples(ctx context.Context, upTo int64) (int64, error) {
	res := s.db.WithContext(ctx).Where("id <= ?", upTo).Delete(&VduMetricSample{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge samples: %w", res.Error)
	}
	return res.RowsAffected, nil
}
