package storage

import "context"

// ResolveTenant looks up the installation referenced by a webhook and
// reports its tenant binding. A missing record is an expected outcome:
// repository events can arrive before the installation-created event has
// been processed.
func ResolveTenant(ctx context.Context, store InstallationStore, installationID int64) (TenantBinding, *AppInstallation, error) {
	if installationID == 0 {
		return UnknownTenant(), nil, nil
	}
	installation, err := store.GetByInstallationID(ctx, installationID)
	if err != nil {
		return UnknownTenant(), nil, err
	}
	return installation.Tenant(), installation, nil
}

// FindInstallationsForRequest lists the installations an interactive
// request may act on. Candidates are filtered by tenant; when several
// remain they are narrowed to the ones installed by the requesting user.
// Callers must handle zero, one, and many results.
func FindInstallationsForRequest(ctx context.Context, store InstallationStore, tenantID, externalUserID int64) ([]AppInstallation, error) {
	candidates, err := store.ListForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(candidates) <= 1 {
		return candidates, nil
	}
	var narrowed []AppInstallation
	for _, candidate := range candidates {
		if candidate.Sender == externalUserID {
			narrowed = append(narrowed, candidate)
		}
	}
	if len(narrowed) == 0 {
		return candidates, nil
	}
	return narrowed, nil
}
