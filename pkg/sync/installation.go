package sync

import (
	"context"
	"fmt"

	"githubapp/pkg/storage"
)

// InstallationEvent is the part of an "installation created" webhook the
// lifecycle handler acts on.
type InstallationEvent struct {
	InstallationID int64
	Sender         int64
	SettingsURL    string
	// Repositories holds the full names listed in the payload. Details
	// are fetched from the API because the payload omits fork flags.
	Repositories []string
}

// HandleInstallationCreated records a new installation and, when the
// installer's tenant is unambiguous, imports its repositories.
//
// The tenant is chosen from the installer's local account: no linked user
// or membership in several tenants leaves the installation pending, no
// membership at all falls back to the public tenant. Ambiguity is never
// guessed away.
func (e *Engine) HandleInstallationCreated(ctx context.Context, evt InstallationEvent) error {
	if evt.InstallationID == 0 {
		return fmt.Errorf("installation created: installation id is required")
	}

	tenantID, err := e.resolveInstallerTenant(ctx, evt.Sender)
	if err != nil {
		return fmt.Errorf("resolve installer tenant: %w", err)
	}

	record := storage.AppInstallation{
		InstallationID: evt.InstallationID,
		Sender:         evt.Sender,
		TenantID:       tenantID,
		SettingsURL:    evt.SettingsURL,
	}
	if _, err := e.installations.CreateInstallation(ctx, record); err != nil {
		if storage.IsUniqueViolation(err) {
			// Redelivered webhook for an installation already recorded.
			e.logger.Printf("installation %d already recorded", evt.InstallationID)
			return nil
		}
		return fmt.Errorf("record installation %d: %w", evt.InstallationID, err)
	}

	if tenantID == nil {
		e.logger.Printf("installation %d recorded pending tenant configuration", evt.InstallationID)
		return nil
	}

	e.syncNamed(storage.WithTenant(ctx, *tenantID), evt.InstallationID, evt.Repositories)
	return nil
}

func (e *Engine) resolveInstallerTenant(ctx context.Context, sender int64) (*int64, error) {
	account, err := e.accounts.FindUserByExternalID(ctx, sender)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, nil
	}
	tenants, err := e.accounts.TenantsForUser(ctx, account.UserID)
	if err != nil {
		return nil, err
	}
	switch len(tenants) {
	case 0:
		public := e.publicTenantID
		return &public, nil
	case 1:
		tenant := tenants[0]
		return &tenant, nil
	default:
		return nil, nil
	}
}

// ConfigureTenant binds an installation to a tenant, or back to pending
// when tenantID is nil. Binding to a tenant triggers a full import of the
// installation's repositories under that tenant.
func (e *Engine) ConfigureTenant(ctx context.Context, installation *storage.AppInstallation, tenantID *int64) error {
	if installation == nil {
		return fmt.Errorf("configure tenant: installation is required")
	}
	updated, err := e.installations.UpdateTenant(ctx, installation.ID, tenantID)
	if err != nil {
		return fmt.Errorf("update installation %d tenant: %w", installation.InstallationID, err)
	}
	if updated == nil {
		return fmt.Errorf("installation %d no longer exists", installation.InstallationID)
	}
	if tenantID == nil {
		return nil
	}

	scoped := storage.WithTenant(ctx, *tenantID)
	repos, err := e.repos.ListRepositories(scoped, installation.InstallationID)
	if err != nil {
		return fmt.Errorf("list repositories for installation %d: %w", installation.InstallationID, err)
	}
	for _, repo := range repos {
		if _, _, err := e.SyncRepository(scoped, repo); err != nil {
			e.logger.Printf("sync repository %s failed: %v", repo.FullName, err)
		}
	}
	return nil
}
