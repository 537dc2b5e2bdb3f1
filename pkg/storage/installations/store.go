package installations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"githubapp/pkg/storage"
)

// Config mirrors the storage configuration for the installations table.
type Config struct {
	Driver      string
	DSN         string
	Dialect     string
	Table       string
	AutoMigrate bool
	Pool        storage.PoolConfig
}

// Store implements storage.InstallationStore on top of GORM.
type Store struct {
	db    *gorm.DB
	table string
}

type row struct {
	ID             string    `gorm:"column:id;size:64;primaryKey"`
	InstallationID int64     `gorm:"column:installation_id;not null;uniqueIndex"`
	Sender         int64     `gorm:"column:sender;not null;index"`
	TenantID       *int64    `gorm:"column:tenant_id;index"`
	SettingsURL    string    `gorm:"column:settings_url;size:512"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Open creates a GORM-backed installations store.
func Open(cfg Config) (*Store, error) {
	if cfg.Driver == "" && cfg.Dialect == "" {
		return nil, errors.New("storage driver or dialect is required")
	}
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := storage.NormalizeDriver(cfg.Driver)
	if driver == "" {
		driver = storage.NormalizeDriver(cfg.Dialect)
	}
	if driver == "" {
		return nil, errors.New("unsupported storage driver")
	}

	gormDB, err := storage.OpenGorm(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := storage.ApplyPoolConfig(gormDB, cfg.Pool); err != nil {
		return nil, err
	}
	table := cfg.Table
	if table == "" {
		table = "github_app_installations"
	}
	store := &Store{db: gormDB, table: table}
	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateInstallation inserts a new installation record. The unique index on
// installation_id rejects duplicate creates from redelivered webhooks.
func (s *Store) CreateInstallation(ctx context.Context, record storage.AppInstallation) (*storage.AppInstallation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if record.InstallationID == 0 {
		return nil, errors.New("installation_id is required")
	}
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	data := toRow(record)
	if err := s.tableDB().WithContext(ctx).Create(&data).Error; err != nil {
		return nil, err
	}
	saved := fromRow(data)
	return &saved, nil
}

// GetByInstallationID fetches an installation record. A missing record
// returns (nil, nil): repository events can arrive before the installation
// webhook has been processed.
func (s *Store) GetByInstallationID(ctx context.Context, installationID int64) (*storage.AppInstallation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data row
	err := s.tableDB().
		WithContext(ctx).
		Where("installation_id = ?", installationID).
		Order("updated_at desc").
		Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record := fromRow(data)
	return &record, nil
}

// ListForTenant lists installations configured for a tenant.
func (s *Store) ListForTenant(ctx context.Context, tenantID int64) ([]storage.AppInstallation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data []row
	err := s.tableDB().
		WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("installation_id asc").
		Find(&data).Error
	if err != nil {
		return nil, err
	}
	records := make([]storage.AppInstallation, 0, len(data))
	for _, item := range data {
		records = append(records, fromRow(item))
	}
	return records, nil
}

// UpdateTenant sets or clears the tenant for an installation and returns
// the saved record. A nil tenantID moves the installation back to pending.
func (s *Store) UpdateTenant(ctx context.Context, id string, tenantID *int64) (*storage.AppInstallation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if id == "" {
		return nil, errors.New("id is required")
	}
	updates := map[string]interface{}{
		"tenant_id":  tenantID,
		"updated_at": time.Now().UTC(),
	}
	result := s.tableDB().WithContext(ctx).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	var data row
	if err := s.tableDB().WithContext(ctx).Where("id = ?", id).Take(&data).Error; err != nil {
		return nil, err
	}
	record := fromRow(data)
	return &record, nil
}

func (s *Store) migrate() error {
	return s.tableDB().AutoMigrate(&row{})
}

func (s *Store) tableDB() *gorm.DB {
	return s.db.Table(s.table)
}

func toRow(record storage.AppInstallation) row {
	return row{
		ID:             record.ID,
		InstallationID: record.InstallationID,
		Sender:         record.Sender,
		TenantID:       record.TenantID,
		SettingsURL:    record.SettingsURL,
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
	}
}

func fromRow(data row) storage.AppInstallation {
	return storage.AppInstallation{
		ID:             data.ID,
		InstallationID: data.InstallationID,
		Sender:         data.Sender,
		TenantID:       data.TenantID,
		SettingsURL:    data.SettingsURL,
		CreatedAt:      data.CreatedAt,
		UpdatedAt:      data.UpdatedAt,
	}
}
