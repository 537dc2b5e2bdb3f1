package sync

import (
	"context"
	"errors"
	"fmt"

	"githubapp/pkg/storage"
)

// ErrNoInstallation means the tenant has no installation to resync.
var ErrNoInstallation = errors.New("no GitHub App installation found")

// ErrMultipleInstallations means the tenant has several candidate
// installations and the caller must not guess between them.
var ErrMultipleInstallations = errors.New("multiple GitHub App installations found")

// Resync re-imports every repository the tenant's installation can see and
// returns one human-readable message per created or already-imported
// repository. Skipped repositories produce no message.
func (e *Engine) Resync(ctx context.Context, tenantID, externalUserID int64) ([]string, error) {
	candidates, err := storage.FindInstallationsForRequest(ctx, e.installations, tenantID, externalUserID)
	if err != nil {
		return nil, fmt.Errorf("resolve installations for tenant %d: %w", tenantID, err)
	}
	switch {
	case len(candidates) == 0:
		return nil, ErrNoInstallation
	case len(candidates) > 1:
		return nil, ErrMultipleInstallations
	}
	installation := candidates[0]

	scoped := storage.WithTenant(ctx, tenantID)
	repos, err := e.repos.ListRepositories(scoped, installation.InstallationID)
	if err != nil {
		return nil, fmt.Errorf("list repositories for installation %d: %w", installation.InstallationID, err)
	}

	var messages []string
	for _, repo := range repos {
		_, status, err := e.SyncRepository(scoped, repo)
		if err != nil {
			e.logger.Printf("resync repository %s failed: %v", repo.FullName, err)
			continue
		}
		switch status {
		case StatusCreated:
			messages = append(messages, fmt.Sprintf("Created product %s", repo.FullName))
		case StatusExists:
			messages = append(messages, fmt.Sprintf("Product %s already exists", repo.FullName))
		}
	}
	return messages, nil
}
