package payloads

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"githubapp/pkg/storage"
)

// Config mirrors the storage configuration for the payload log table.
type Config struct {
	Driver      string
	DSN         string
	Dialect     string
	Table       string
	AutoMigrate bool
	Pool        storage.PoolConfig
}

// Store implements storage.PayloadStore on top of GORM. Rows are written
// once and never updated or deleted.
type Store struct {
	db    *gorm.DB
	table string
}

type row struct {
	ID         string    `gorm:"column:id;size:64;primaryKey"`
	Event      string    `gorm:"column:event;size:64;not null;index"`
	Action     string    `gorm:"column:action;size:64;index"`
	Sender     int64     `gorm:"column:sender;not null;index"`
	ReceivedOn time.Time `gorm:"column:received_on;not null;index"`
	Payload    []byte    `gorm:"column:payload;type:text"`
}

// Open creates a GORM-backed payload log store.
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
		table = "github_app_payloads"
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

// Record appends a webhook payload to the audit log.
func (s *Store) Record(ctx context.Context, payload storage.WebhookPayload) (*storage.WebhookPayload, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if payload.Event == "" {
		return nil, errors.New("event is required")
	}
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.ReceivedOn.IsZero() {
		payload.ReceivedOn = time.Now().UTC()
	}
	data := toRow(payload)
	if err := s.tableDB().WithContext(ctx).Create(&data).Error; err != nil {
		return nil, err
	}
	record := fromRow(data)
	return &record, nil
}

// ListPayloads returns the most recent payloads, newest last.
func (s *Store) ListPayloads(ctx context.Context, limit int) ([]storage.WebhookPayload, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data []row
	query := s.tableDB().WithContext(ctx).Order("received_on asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&data).Error; err != nil {
		return nil, err
	}
	records := make([]storage.WebhookPayload, 0, len(data))
	for _, item := range data {
		records = append(records, fromRow(item))
	}
	return records, nil
}

func (s *Store) migrate() error {
	return s.tableDB().AutoMigrate(&row{})
}

func (s *Store) tableDB() *gorm.DB {
	return s.db.Table(s.table)
}

func toRow(record storage.WebhookPayload) row {
	return row{
		ID:         record.ID,
		Event:      record.Event,
		Action:     record.Action,
		Sender:     record.Sender,
		ReceivedOn: record.ReceivedOn,
		Payload:    record.Payload,
	}
}

func fromRow(data row) storage.WebhookPayload {
	return storage.WebhookPayload{
		ID:         data.ID,
		Event:      data.Event,
		Action:     data.Action,
		Sender:     data.Sender,
		ReceivedOn: data.ReceivedOn,
		Payload:    data.Payload,
	}
}
