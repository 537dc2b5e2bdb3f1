package products

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"githubapp/pkg/storage"
)

// Config mirrors the storage configuration for the product tables.
type Config struct {
	Driver      string
	DSN         string
	Dialect     string
	AutoMigrate bool
	Pool        storage.PoolConfig
}

// Store implements storage.ProductStore on top of GORM. All operations
// require a tenant in the context; the tenant_id column stands in for the
// host application's schema-per-tenant partitioning.
type Store struct {
	db *gorm.DB
}

type productRow struct {
	ID             string    `gorm:"column:id;size:64;primaryKey"`
	TenantID       int64     `gorm:"column:tenant_id;not null;uniqueIndex:idx_product_name,priority:1"`
	Name           string    `gorm:"column:name;size:255;not null;uniqueIndex:idx_product_name,priority:2"`
	Description    string    `gorm:"column:description;type:text"`
	Classification string    `gorm:"column:classification;size:64"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (productRow) TableName() string { return "products" }

type bugSystemRow struct {
	ID          string    `gorm:"column:id;size:64;primaryKey"`
	TenantID    int64     `gorm:"column:tenant_id;not null;uniqueIndex:idx_bug_system_name,priority:1"`
	Name        string    `gorm:"column:name;size:255;not null;uniqueIndex:idx_bug_system_name,priority:2"`
	TrackerType string    `gorm:"column:tracker_type;size:64;not null"`
	BaseURL     string    `gorm:"column:base_url;size:512"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (bugSystemRow) TableName() string { return "bug_systems" }

type versionRow struct {
	ID        string    `gorm:"column:id;size:64;primaryKey"`
	TenantID  int64     `gorm:"column:tenant_id;not null;uniqueIndex:idx_version_value,priority:1"`
	ProductID string    `gorm:"column:product_id;size:64;not null;uniqueIndex:idx_version_value,priority:2"`
	Value     string    `gorm:"column:value;size:255;not null;uniqueIndex:idx_version_value,priority:3"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (versionRow) TableName() string { return "versions" }

// Open creates a GORM-backed product store.
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
	store := &Store{db: gormDB}
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

// GetProductByName fetches a product by its repository full name within the
// tenant scope. Missing products return (nil, nil).
func (s *Store) GetProductByName(ctx context.Context, name string) (*storage.Product, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	tenantID, ok := storage.TenantFromContext(ctx)
	if !ok {
		return nil, errors.New("tenant scope is required")
	}
	var data productRow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND name = ?", tenantID, name).
		Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record := productFromRow(data)
	return &record, nil
}

// CreateProduct inserts a product. A unique-constraint violation from a
// concurrent identical create propagates so the caller can downgrade it.
func (s *Store) CreateProduct(ctx context.Context, record storage.Product) (*storage.Product, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	tenantID, ok := storage.TenantFromContext(ctx)
	if !ok {
		return nil, errors.New("tenant scope is required")
	}
	if record.Name == "" {
		return nil, errors.New("name is required")
	}
	record.TenantID = tenantID
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	data := productToRow(record)
	if err := s.db.WithContext(ctx).Create(&data).Error; err != nil {
		return nil, err
	}
	saved := productFromRow(data)
	return &saved, nil
}

// GetOrCreateBugSystem returns the bug system with the record's name,
// creating it when absent. A create that loses a race falls back to the
// winner's row.
func (s *Store) GetOrCreateBugSystem(ctx context.Context, record storage.BugSystem) (*storage.BugSystem, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	tenantID, ok := storage.TenantFromContext(ctx)
	if !ok {
		return nil, errors.New("tenant scope is required")
	}
	if record.Name == "" {
		return nil, errors.New("name is required")
	}

	var existing bugSystemRow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND name = ?", tenantID, record.Name).
		Take(&existing).Error
	if err == nil {
		found := bugSystemFromRow(existing)
		return &found, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	record.TenantID = tenantID
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	data := bugSystemToRow(record)
	if createErr := s.db.WithContext(ctx).Create(&data).Error; createErr != nil {
		if storage.IsUniqueViolation(createErr) {
			err = s.db.WithContext(ctx).
				Where("tenant_id = ? AND name = ?", tenantID, record.Name).
				Take(&existing).Error
			if err != nil {
				return nil, err
			}
			found := bugSystemFromRow(existing)
			return &found, nil
		}
		return nil, createErr
	}
	saved := bugSystemFromRow(data)
	return &saved, nil
}

// GetOrCreateVersion returns the version keyed by (product, value),
// creating it when absent.
func (s *Store) GetOrCreateVersion(ctx context.Context, record storage.Version) (*storage.Version, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	tenantID, ok := storage.TenantFromContext(ctx)
	if !ok {
		return nil, errors.New("tenant scope is required")
	}
	if record.ProductID == "" || record.Value == "" {
		return nil, errors.New("product_id and value are required")
	}

	var existing versionRow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ? AND value = ?", tenantID, record.ProductID, record.Value).
		Take(&existing).Error
	if err == nil {
		found := versionFromRow(existing)
		return &found, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	record.TenantID = tenantID
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	data := versionToRow(record)
	if createErr := s.db.WithContext(ctx).Create(&data).Error; createErr != nil {
		if storage.IsUniqueViolation(createErr) {
			err = s.db.WithContext(ctx).
				Where("tenant_id = ? AND product_id = ? AND value = ?", tenantID, record.ProductID, record.Value).
				Take(&existing).Error
			if err != nil {
				return nil, err
			}
			found := versionFromRow(existing)
			return &found, nil
		}
		return nil, createErr
	}
	saved := versionFromRow(data)
	return &saved, nil
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(&productRow{}, &bugSystemRow{}, &versionRow{})
}

func productToRow(record storage.Product) productRow {
	return productRow{
		ID:             record.ID,
		TenantID:       record.TenantID,
		Name:           record.Name,
		Description:    record.Description,
		Classification: record.Classification,
		CreatedAt:      record.CreatedAt,
	}
}

func productFromRow(data productRow) storage.Product {
	return storage.Product{
		ID:             data.ID,
		TenantID:       data.TenantID,
		Name:           data.Name,
		Description:    data.Description,
		Classification: data.Classification,
		CreatedAt:      data.CreatedAt,
	}
}

func bugSystemToRow(record storage.BugSystem) bugSystemRow {
	return bugSystemRow{
		ID:          record.ID,
		TenantID:    record.TenantID,
		Name:        record.Name,
		TrackerType: record.TrackerType,
		BaseURL:     record.BaseURL,
		CreatedAt:   record.CreatedAt,
	}
}

func bugSystemFromRow(data bugSystemRow) storage.BugSystem {
	return storage.BugSystem{
		ID:          data.ID,
		TenantID:    data.TenantID,
		Name:        data.Name,
		TrackerType: data.TrackerType,
		BaseURL:     data.BaseURL,
		CreatedAt:   data.CreatedAt,
	}
}

func versionToRow(record storage.Version) versionRow {
	return versionRow{
		ID:        record.ID,
		TenantID:  record.TenantID,
		ProductID: record.ProductID,
		Value:     record.Value,
		CreatedAt: record.CreatedAt,
	}
}

func versionFromRow(data versionRow) storage.Version {
	return storage.Version{
		ID:        data.ID,
		TenantID:  data.TenantID,
		ProductID: data.ProductID,
		Value:     data.Value,
		CreatedAt: data.CreatedAt,
	}
}
