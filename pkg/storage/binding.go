package storage

// TenantState distinguishes the three installation states: no record at
// all, a record without a tenant, and a record bound to a tenant.
type TenantState int

const (
	// TenantUnknown means no installation record exists. Webhooks may
	// legitimately arrive before the installation-created event has been
	// processed.
	TenantUnknown TenantState = iota
	// TenantPending means the installation exists but no tenant has been
	// chosen for it yet.
	TenantPending
	// TenantConfigured means the installation is bound to a tenant.
	TenantConfigured
)

// TenantBinding is the resolved tenant for an installation. It is a closed
// three-state value so handlers cannot overlook the pending state.
type TenantBinding struct {
	state    TenantState
	tenantID int64
}

// UnknownTenant returns the binding for a missing installation record.
func UnknownTenant() TenantBinding {
	return TenantBinding{state: TenantUnknown}
}

// PendingTenant returns the binding for an unconfigured installation.
func PendingTenant() TenantBinding {
	return TenantBinding{state: TenantPending}
}

// ConfiguredTenant returns the binding for a configured installation.
func ConfiguredTenant(tenantID int64) TenantBinding {
	return TenantBinding{state: TenantConfigured, tenantID: tenantID}
}

// State reports which of the three states the binding is in.
func (b TenantBinding) State() TenantState {
	return b.state
}

// Configured returns the tenant id when the binding is configured.
func (b TenantBinding) Configured() (int64, bool) {
	if b.state != TenantConfigured {
		return 0, false
	}
	return b.tenantID, true
}
