package storage

import (
	"context"
	"time"
)

// WebhookPayload is one verified webhook delivery, kept as an immutable
// audit record.
type WebhookPayload struct {
	ID         string
	Event      string
	Action     string
	Sender     int64
	ReceivedOn time.Time
	Payload    []byte
}

// AppInstallation maps a GitHub App installation to the account that
// created it and, once configured, to a local tenant.
type AppInstallation struct {
	ID             string
	InstallationID int64
	Sender         int64
	// TenantID is nil while the installation is pending configuration.
	// Domain code should go through Tenant() instead of reading this.
	TenantID    *int64
	SettingsURL string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Tenant returns the tenant binding for the installation.
func (r *AppInstallation) Tenant() TenantBinding {
	if r == nil {
		return UnknownTenant()
	}
	if r.TenantID == nil {
		return PendingTenant()
	}
	return ConfiguredTenant(*r.TenantID)
}

// Product is a test-case-management product imported from a repository.
type Product struct {
	ID             string
	TenantID       int64
	Name           string
	Description    string
	Classification string
	CreatedAt      time.Time
}

// BugSystem is an external bug tracker record bound to a repository.
type BugSystem struct {
	ID          string
	TenantID    int64
	Name        string
	TrackerType string
	BaseURL     string
	CreatedAt   time.Time
}

// Version is a product version imported from a repository tag.
type Version struct {
	ID        string
	TenantID  int64
	ProductID string
	Value     string
	CreatedAt time.Time
}

// LinkedAccount maps an external GitHub account id to a local user.
type LinkedAccount struct {
	ExternalID int64
	UserID     int64
}

// PayloadStore is the append-only webhook audit log. There is no update or
// delete: removal is an administrative operation outside this service.
type PayloadStore interface {
	Record(ctx context.Context, payload WebhookPayload) (*WebhookPayload, error)
	ListPayloads(ctx context.Context, limit int) ([]WebhookPayload, error)
	Close() error
}

// InstallationStore is the registry of GitHub App installations.
// Lookups return (nil, nil) when no record exists; under webhook races that
// is an expected outcome, not an error.
type InstallationStore interface {
	CreateInstallation(ctx context.Context, record AppInstallation) (*AppInstallation, error)
	GetByInstallationID(ctx context.Context, installationID int64) (*AppInstallation, error)
	ListForTenant(ctx context.Context, tenantID int64) ([]AppInstallation, error)
	UpdateTenant(ctx context.Context, id string, tenantID *int64) (*AppInstallation, error)
	Close() error
}

// ProductStore persists products, bug trackers, and versions. Every call
// requires a tenant in the context; writes outside a tenant scope are
// rejected.
type ProductStore interface {
	GetProductByName(ctx context.Context, name string) (*Product, error)
	CreateProduct(ctx context.Context, record Product) (*Product, error)
	GetOrCreateBugSystem(ctx context.Context, record BugSystem) (*BugSystem, error)
	GetOrCreateVersion(ctx context.Context, record Version) (*Version, error)
	Close() error
}

// AccountDirectory resolves external GitHub account ids to local users and
// reports which tenants a user belongs to.
type AccountDirectory interface {
	FindUserByExternalID(ctx context.Context, externalID int64) (*LinkedAccount, error)
	TenantsForUser(ctx context.Context, userID int64) ([]int64, error)
	Close() error
}
