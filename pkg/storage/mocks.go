package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockPayloadStore is an in-memory PayloadStore for tests.
type MockPayloadStore struct {
	mu     sync.RWMutex
	values []WebhookPayload
}

// NewMockPayloadStore returns a new in-memory PayloadStore.
func NewMockPayloadStore() *MockPayloadStore {
	return &MockPayloadStore{}
}

func (m *MockPayloadStore) Record(_ context.Context, payload WebhookPayload) (*WebhookPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.ReceivedOn.IsZero() {
		payload.ReceivedOn = time.Now().UTC()
	}
	m.values = append(m.values, payload)
	copied := payload
	return &copied, nil
}

func (m *MockPayloadStore) ListPayloads(_ context.Context, limit int) ([]WebhookPayload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]WebhookPayload(nil), m.values...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MockPayloadStore) Close() error { return nil }

// MockInstallationStore is an in-memory InstallationStore for tests.
type MockInstallationStore struct {
	mu     sync.RWMutex
	values map[string]AppInstallation
}

// NewMockInstallationStore returns a new in-memory InstallationStore.
func NewMockInstallationStore() *MockInstallationStore {
	return &MockInstallationStore{values: make(map[string]AppInstallation)}
}

func (m *MockInstallationStore) CreateInstallation(_ context.Context, record AppInstallation) (*AppInstallation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.values {
		if existing.InstallationID == record.InstallationID {
			return nil, errors.New("UNIQUE constraint failed: github_app_installations.installation_id")
		}
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	m.values[record.ID] = record
	copied := record
	return &copied, nil
}

func (m *MockInstallationStore) GetByInstallationID(_ context.Context, installationID int64) (*AppInstallation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, record := range m.values {
		if record.InstallationID == installationID {
			copied := record
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockInstallationStore) ListForTenant(_ context.Context, tenantID int64) ([]AppInstallation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AppInstallation
	for _, record := range m.values {
		if record.TenantID != nil && *record.TenantID == tenantID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstallationID < out[j].InstallationID })
	return out, nil
}

func (m *MockInstallationStore) UpdateTenant(_ context.Context, id string, tenantID *int64) (*AppInstallation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.values[id]
	if !ok {
		return nil, nil
	}
	record.TenantID = tenantID
	record.UpdatedAt = time.Now().UTC()
	m.values[id] = record
	copied := record
	return &copied, nil
}

func (m *MockInstallationStore) Close() error { return nil }

// MockProductStore is an in-memory ProductStore for tests. Products are
// keyed by (tenant, name) and duplicate creates fail the same way a unique
// index would.
type MockProductStore struct {
	mu         sync.RWMutex
	products   map[string]Product
	bugSystems map[string]BugSystem
	versions   map[string]Version
}

// NewMockProductStore returns a new in-memory ProductStore.
func NewMockProductStore() *MockProductStore {
	return &MockProductStore{
		products:   make(map[string]Product),
		bugSystems: make(map[string]BugSystem),
		versions:   make(map[string]Version),
	}
}

func (m *MockProductStore) GetProductByName(ctx context.Context, name string) (*Product, error) {
	tenantID, ok := TenantFromContext(ctx)
	if !ok {
		return nil, errors.New("tenant scope is required")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, record := range m.products {
		if record.TenantID == tenantID && record.Name == name {
			copied := record
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockProductStore) CreateProduct(ctx context.Context, record Product) (*Product, error) {
	tenantID, ok := TenantFromContext(ctx)
	if !ok {
		return nil, errors.New("tenant scope is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.products {
		if existing.TenantID == tenantID && existing.Name == record.Name {
			return nil, errors.New("UNIQUE constraint failed: products.name")
		}
	}
	record.TenantID = tenantID
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	m.products[record.ID] = record
	copied := record
	return &copied, nil
}

func (m *MockProductStore) GetOrCreateBugSystem(ctx context.Context, record BugSystem) (*BugSystem, error) {
	tenantID, ok := TenantFromContext(ctx)
	if !ok {
		return nil, errors.New("tenant scope is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.bugSystems {
		if existing.TenantID == tenantID && existing.Name == record.Name {
			copied := existing
			return &copied, nil
		}
	}
	record.TenantID = tenantID
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	m.bugSystems[record.ID] = record
	copied := record
	return &copied, nil
}

func (m *MockProductStore) GetOrCreateVersion(ctx context.Context, record Version) (*Version, error) {
	tenantID, ok := TenantFromContext(ctx)
	if !ok {
		return nil, errors.New("tenant scope is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.versions {
		if existing.TenantID == tenantID && existing.ProductID == record.ProductID && existing.Value == record.Value {
			copied := existing
			return &copied, nil
		}
	}
	record.TenantID = tenantID
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	m.versions[record.ID] = record
	copied := record
	return &copied, nil
}

// Products returns all products for a tenant, for test assertions.
func (m *MockProductStore) Products(tenantID int64) []Product {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Product
	for _, record := range m.products {
		if record.TenantID == tenantID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BugSystems returns all bug systems for a tenant, for test assertions.
func (m *MockProductStore) BugSystems(tenantID int64) []BugSystem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []BugSystem
	for _, record := range m.bugSystems {
		if record.TenantID == tenantID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Versions returns all versions for a tenant, for test assertions.
func (m *MockProductStore) Versions(tenantID int64) []Version {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Version
	for _, record := range m.versions {
		if record.TenantID == tenantID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

func (m *MockProductStore) Close() error { return nil }

// MockAccountDirectory is an in-memory AccountDirectory for tests.
type MockAccountDirectory struct {
	mu       sync.RWMutex
	accounts map[int64]int64
	tenants  map[int64][]int64
}

// NewMockAccountDirectory returns a new in-memory AccountDirectory.
func NewMockAccountDirectory() *MockAccountDirectory {
	return &MockAccountDirectory{
		accounts: make(map[int64]int64),
		tenants:  make(map[int64][]int64),
	}
}

// Link records an external-account-to-user mapping.
func (m *MockAccountDirectory) Link(externalID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[externalID] = userID
}

// AddMembership records a tenant membership for a user.
func (m *MockAccountDirectory) AddMembership(tenantID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[userID] = append(m.tenants[userID], tenantID)
}

func (m *MockAccountDirectory) FindUserByExternalID(_ context.Context, externalID int64) (*LinkedAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	userID, ok := m.accounts[externalID]
	if !ok {
		return nil, nil
	}
	return &LinkedAccount{ExternalID: externalID, UserID: userID}, nil
}

func (m *MockAccountDirectory) TenantsForUser(_ context.Context, userID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64(nil), m.tenants[userID]...), nil
}

func (m *MockAccountDirectory) Close() error { return nil }
