package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	github "github.com/go-playground/webhooks/v6/github"

	ghapp "githubapp/pkg/providers/github"
	"githubapp/pkg/storage"
	"githubapp/pkg/sync"
)

// Dispatcher routes a verified, persisted webhook to its handler. The set
// of understood (event, action) pairs is closed; everything else is a
// no-op so GitHub keeps delivering event types added after this build.
type Dispatcher struct {
	engine        *sync.Engine
	installations storage.InstallationStore
	logger        *log.Logger
}

// NewDispatcher creates a dispatcher over the sync engine.
func NewDispatcher(engine *sync.Engine, installations storage.InstallationStore, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{engine: engine, installations: installations, logger: logger}
}

// Dispatch runs the handler for one delivery. Unrecognized events return
// nil: the payload is already persisted and must be acknowledged.
func (d *Dispatcher) Dispatch(ctx context.Context, event, action string, rawBody []byte) error {
	switch {
	case event == "repository" && action == "created":
		return d.repositoryCreated(ctx, rawBody)
	case event == "installation_repositories":
		return d.repositoriesAdded(ctx, rawBody)
	case event == "installation" && action == "created":
		return d.installationCreated(ctx, rawBody)
	case event == "create":
		return d.tagCreated(ctx, rawBody)
	default:
		return nil
	}
}

// scopedTenant resolves the tenant for the installation referenced by the
// payload. An unknown or unconfigured installation yields ok=false: the
// delivery was understood and is deliberately skipped.
func (d *Dispatcher) scopedTenant(ctx context.Context, rawBody []byte) (context.Context, bool, error) {
	installationID, found, err := ghapp.InstallationIDFromPayload(rawBody)
	if err != nil {
		return ctx, false, err
	}
	if !found {
		d.logger.Printf("payload carries no installation id, skipping")
		return ctx, false, nil
	}
	binding, _, err := storage.ResolveTenant(ctx, d.installations, installationID)
	if err != nil {
		return ctx, false, err
	}
	tenantID, ok := binding.Configured()
	if !ok {
		d.logger.Printf("installation %d is not configured for a tenant, skipping", installationID)
		return ctx, false, nil
	}
	return storage.WithTenant(ctx, tenantID), true, nil
}

func (d *Dispatcher) repositoryCreated(ctx context.Context, rawBody []byte) error {
	var payload github.RepositoryPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return fmt.Errorf("decode repository payload: %w", err)
	}
	ctx, ok, err := d.scopedTenant(ctx, rawBody)
	if err != nil || !ok {
		return err
	}
	_, status, err := d.engine.SyncRepository(ctx, sync.Repository{
		FullName:    payload.Repository.FullName,
		Description: payload.Repository.Description,
		HTMLURL:     payload.Repository.HTMLURL,
		Fork:        payload.Repository.Fork,
	})
	if err != nil {
		return err
	}
	d.logger.Printf("repository %s sync %s", payload.Repository.FullName, status)
	return nil
}

func (d *Dispatcher) repositoriesAdded(ctx context.Context, rawBody []byte) error {
	var payload github.InstallationRepositoriesPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return fmt.Errorf("decode installation_repositories payload: %w", err)
	}
	if len(payload.RepositoriesAdded) == 0 {
		// Removals are ignored: deleting products would destroy the
		// test data linked to them.
		return nil
	}
	ctx, ok, err := d.scopedTenant(ctx, rawBody)
	if err != nil || !ok {
		return err
	}
	fullNames := make([]string, 0, len(payload.RepositoriesAdded))
	for _, repo := range payload.RepositoriesAdded {
		fullNames = append(fullNames, repo.FullName)
	}
	return d.engine.SyncAddedRepositories(ctx, payload.Installation.ID, fullNames)
}

func (d *Dispatcher) installationCreated(ctx context.Context, rawBody []byte) error {
	// The repositories list and settings link are decoded directly: only
	// the full names matter and the API fetch supplies the rest.
	var payload struct {
		Installation struct {
			ID      int64  `json:"id"`
			HTMLURL string `json:"html_url"`
		} `json:"installation"`
		Repositories []struct {
			FullName string `json:"full_name"`
		} `json:"repositories"`
		Sender struct {
			ID int64 `json:"id"`
		} `json:"sender"`
	}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return fmt.Errorf("decode installation payload: %w", err)
	}
	fullNames := make([]string, 0, len(payload.Repositories))
	for _, repo := range payload.Repositories {
		fullNames = append(fullNames, repo.FullName)
	}
	return d.engine.HandleInstallationCreated(ctx, sync.InstallationEvent{
		InstallationID: payload.Installation.ID,
		Sender:         payload.Sender.ID,
		SettingsURL:    payload.Installation.HTMLURL,
		Repositories:   fullNames,
	})
}

func (d *Dispatcher) tagCreated(ctx context.Context, rawBody []byte) error {
	var payload github.CreatePayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return fmt.Errorf("decode create payload: %w", err)
	}
	if payload.RefType != "tag" {
		return nil
	}
	ctx, ok, err := d.scopedTenant(ctx, rawBody)
	if err != nil || !ok {
		return err
	}
	return d.engine.RecordTag(ctx, payload.Repository.FullName, payload.Ref)
}
