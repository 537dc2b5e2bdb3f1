package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"githubapp/pkg/storage"
)

// Config mirrors the storage configuration for the account-linking tables.
type Config struct {
	Driver      string
	DSN         string
	Dialect     string
	AutoMigrate bool
	Pool        storage.PoolConfig
}

// Store implements storage.AccountDirectory on top of GORM. It mirrors the
// host application's social-auth linkage and tenant membership tables so
// the installation lifecycle handler can resolve installers.
type Store struct {
	db *gorm.DB
}

type linkedAccountRow struct {
	ID         string    `gorm:"column:id;size:64;primaryKey"`
	ExternalID int64     `gorm:"column:external_id;not null;uniqueIndex"`
	UserID     int64     `gorm:"column:user_id;not null;index"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (linkedAccountRow) TableName() string { return "linked_accounts" }

type tenantMemberRow struct {
	ID        string    `gorm:"column:id;size:64;primaryKey"`
	TenantID  int64     `gorm:"column:tenant_id;not null;uniqueIndex:idx_tenant_member,priority:1"`
	UserID    int64     `gorm:"column:user_id;not null;uniqueIndex:idx_tenant_member,priority:2"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (tenantMemberRow) TableName() string { return "tenant_members" }

// Open creates a GORM-backed account directory.
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

// FindUserByExternalID resolves an external GitHub account id to a local
// user. Absent links return (nil, nil).
func (s *Store) FindUserByExternalID(ctx context.Context, externalID int64) (*storage.LinkedAccount, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data linkedAccountRow
	err := s.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &storage.LinkedAccount{ExternalID: data.ExternalID, UserID: data.UserID}, nil
}

// TenantsForUser returns the ids of all tenants a user belongs to.
func (s *Store) TenantsForUser(ctx context.Context, userID int64) ([]int64, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data []tenantMemberRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("tenant_id asc").
		Find(&data).Error
	if err != nil {
		return nil, err
	}
	tenants := make([]int64, 0, len(data))
	for _, item := range data {
		tenants = append(tenants, item.TenantID)
	}
	return tenants, nil
}

// LinkAccount records an external-account-to-user mapping. Used by tests
// and by the host application's account-linking flow.
func (s *Store) LinkAccount(ctx context.Context, externalID, userID int64) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	data := linkedAccountRow{ID: uuid.NewString(), ExternalID: externalID, UserID: userID}
	return s.db.WithContext(ctx).Create(&data).Error
}

// AddMembership records a tenant membership for a user.
func (s *Store) AddMembership(ctx context.Context, tenantID, userID int64) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	data := tenantMemberRow{ID: uuid.NewString(), TenantID: tenantID, UserID: userID}
	return s.db.WithContext(ctx).Create(&data).Error
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(&linkedAccountRow{}, &tenantMemberRow{})
}
