package sync

import (
	"context"
	"fmt"
	"log"

	"githubapp/pkg/storage"
)

const (
	// Classification is attached to every product imported from GitHub.
	Classification = "Imported from GitHub"
	// TrackerType identifies bug systems created by this integration.
	TrackerType = "GitHub"

	defaultDescription = "GitHub repository"
)

// Status is the outcome of a single repository sync.
type Status int

const (
	// StatusSkipped covers forks and creations lost to a concurrent
	// duplicate. Nothing was imported and nothing is wrong.
	StatusSkipped Status = iota
	// StatusExists means the product was already imported.
	StatusExists
	// StatusCreated means a new product was imported.
	StatusCreated
)

func (s Status) String() string {
	switch s {
	case StatusExists:
		return "exists"
	case StatusCreated:
		return "created"
	default:
		return "skipped"
	}
}

// Repository is the descriptor the engine imports from. Webhook payloads
// and API lookups both reduce to this shape.
type Repository struct {
	FullName    string
	Description string
	HTMLURL     string
	Fork        bool
}

// Engine imports repositories as products. It is stateless between calls
// and safe to invoke from a loop.
type Engine struct {
	products       storage.ProductStore
	installations  storage.InstallationStore
	accounts       storage.AccountDirectory
	repos          RepoSource
	logger         *log.Logger
	publicTenantID int64
}

// NewEngine creates a sync engine over the given stores.
func NewEngine(products storage.ProductStore, installations storage.InstallationStore, accounts storage.AccountDirectory, repos RepoSource, logger *log.Logger, publicTenantID int64) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		products:       products,
		installations:  installations,
		accounts:       accounts,
		repos:          repos,
		logger:         logger,
		publicTenantID: publicTenantID,
	}
}

// SyncRepository imports one repository under the tenant carried by ctx.
// Forks are never imported. A duplicate-key loss against a concurrent
// creation of the same product is reported as skipped, not as an error.
func (e *Engine) SyncRepository(ctx context.Context, repo Repository) (*storage.Product, Status, error) {
	if _, ok := storage.TenantFromContext(ctx); !ok {
		return nil, StatusSkipped, fmt.Errorf("sync repository %s: tenant scope is required", repo.FullName)
	}
	if repo.Fork {
		return nil, StatusSkipped, nil
	}

	product, status, err := e.syncProduct(ctx, repo)
	if err != nil {
		return nil, StatusSkipped, err
	}

	// The bug system is created regardless of the product outcome so a
	// lost creation race still leaves the tracker in place.
	if _, err := e.products.GetOrCreateBugSystem(ctx, storage.BugSystem{
		Name:        "GitHub Issues for " + repo.FullName,
		TrackerType: TrackerType,
		BaseURL:     repo.HTMLURL,
	}); err != nil {
		return nil, StatusSkipped, fmt.Errorf("sync bug system for %s: %w", repo.FullName, err)
	}
	return product, status, nil
}

func (e *Engine) syncProduct(ctx context.Context, repo Repository) (*storage.Product, Status, error) {
	existing, err := e.products.GetProductByName(ctx, repo.FullName)
	if err != nil {
		return nil, StatusSkipped, fmt.Errorf("look up product %s: %w", repo.FullName, err)
	}
	if existing != nil {
		return existing, StatusExists, nil
	}

	description := repo.Description
	if description == "" {
		description = defaultDescription
	}
	created, err := e.products.CreateProduct(ctx, storage.Product{
		Name:           repo.FullName,
		Description:    description,
		Classification: Classification,
	})
	if err != nil {
		if storage.IsUniqueViolation(err) {
			// Lost a race against an identical creation. Confirm the
			// winner landed, then report the loss as a skip.
			if _, requeryErr := e.products.GetProductByName(ctx, repo.FullName); requeryErr != nil {
				return nil, StatusSkipped, fmt.Errorf("re-query product %s after duplicate: %w", repo.FullName, requeryErr)
			}
			return nil, StatusSkipped, nil
		}
		return nil, StatusSkipped, fmt.Errorf("create product %s: %w", repo.FullName, err)
	}
	return created, StatusCreated, nil
}

// RecordTag stores a repository tag as a product version. Tags for
// repositories that were never imported are ignored.
func (e *Engine) RecordTag(ctx context.Context, repoFullName, tag string) error {
	if _, ok := storage.TenantFromContext(ctx); !ok {
		return fmt.Errorf("record tag %s: tenant scope is required", tag)
	}
	product, err := e.products.GetProductByName(ctx, repoFullName)
	if err != nil {
		return fmt.Errorf("look up product %s: %w", repoFullName, err)
	}
	if product == nil {
		e.logger.Printf("tag %s ignored: repository %s is not imported", tag, repoFullName)
		return nil
	}
	if _, err := e.products.GetOrCreateVersion(ctx, storage.Version{
		ProductID: product.ID,
		Value:     tag,
	}); err != nil {
		return fmt.Errorf("record tag %s for %s: %w", tag, repoFullName, err)
	}
	return nil
}

// syncNamed fetches each repository by full name and imports it. Fetch
// failures are contained per repository so one bad entry cannot abort the
// rest of the batch.
func (e *Engine) syncNamed(ctx context.Context, installationID int64, fullNames []string) {
	for _, fullName := range fullNames {
		repo, err := e.repos.Repository(ctx, installationID, fullName)
		if err != nil {
			e.logger.Printf("skipping repository %s on installation %d: %v", fullName, installationID, err)
			continue
		}
		if _, _, err := e.SyncRepository(ctx, repo); err != nil {
			e.logger.Printf("sync repository %s failed: %v", fullName, err)
		}
	}
}

// SyncAddedRepositories imports repositories newly granted to an
// installation. Removals are deliberately not mirrored: deleting imported
// products would destroy linked test data.
func (e *Engine) SyncAddedRepositories(ctx context.Context, installationID int64, fullNames []string) error {
	if _, ok := storage.TenantFromContext(ctx); !ok {
		return fmt.Errorf("sync added repositories: tenant scope is required")
	}
	e.syncNamed(ctx, installationID, fullNames)
	return nil
}
