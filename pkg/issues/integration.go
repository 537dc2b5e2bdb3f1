package issues

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v57/github"

	"githubapp/pkg/providers/github"
	"githubapp/pkg/storage"
)

// ClientSource provides installation-authenticated GitHub clients.
// *github.ClientFactory satisfies it.
type ClientSource interface {
	Client(ctx context.Context, installationID int64) (*github.Client, error)
}

// Details is the subset of a GitHub issue shown back to the user.
type Details struct {
	Number int
	Title  string
	State  string
	Body   string
	URL    string
}

// Integration reports bugs to the GitHub repository behind a BugSystem.
// It authenticates as the tenant's single App installation rather than
// with a personal token.
type Integration struct {
	bugSystem     storage.BugSystem
	installations storage.InstallationStore
	clients       ClientSource
	logger        *log.Logger
}

// NewIntegration binds a bug tracker integration to one BugSystem record.
func NewIntegration(bugSystem storage.BugSystem, installations storage.InstallationStore, clients ClientSource, logger *log.Logger) *Integration {
	if logger == nil {
		logger = log.Default()
	}
	return &Integration{
		bugSystem:     bugSystem,
		installations: installations,
		clients:       clients,
		logger:        logger,
	}
}

// Disabled reports whether the integration can be used at all. A BugSystem
// without a base URL has no repository to report against.
func (i *Integration) Disabled() bool {
	return strings.TrimSpace(i.bugSystem.BaseURL) == ""
}

func (i *Integration) repoClient(ctx context.Context, externalUserID int64) (*github.Client, string, string, error) {
	if i.Disabled() {
		return nil, "", "", fmt.Errorf("bug system %q has no base url", i.bugSystem.Name)
	}
	owner, repo, err := splitRepoURL(i.bugSystem.BaseURL)
	if err != nil {
		return nil, "", "", err
	}
	candidates, err := storage.FindInstallationsForRequest(ctx, i.installations, i.bugSystem.TenantID, externalUserID)
	if err != nil {
		return nil, "", "", fmt.Errorf("resolve installations for tenant %d: %w", i.bugSystem.TenantID, err)
	}
	if len(candidates) != 1 {
		return nil, "", "", fmt.Errorf("cannot find a single GitHub App installation for tenant %d (found %d)", i.bugSystem.TenantID, len(candidates))
	}
	client, err := i.clients.Client(ctx, candidates[0].InstallationID)
	if err != nil {
		return nil, "", "", err
	}
	return client, owner, repo, nil
}

// ReportIssue opens a GitHub issue and returns its browser URL.
func (i *Integration) ReportIssue(ctx context.Context, externalUserID int64, summary, description string) (string, error) {
	client, owner, repo, err := i.repoClient(ctx, externalUserID)
	if err != nil {
		return "", err
	}
	issue, _, err := client.Issues.Create(ctx, owner, repo, &gh.IssueRequest{
		Title: gh.String(summary),
		Body:  gh.String(description),
	})
	if err != nil {
		return "", fmt.Errorf("create issue in %s/%s: %w", owner, repo, err)
	}
	return issue.GetHTMLURL(), nil
}

// AddComment appends a comment to an existing issue.
func (i *Integration) AddComment(ctx context.Context, externalUserID int64, number int, comment string) error {
	client, owner, repo, err := i.repoClient(ctx, externalUserID)
	if err != nil {
		return err
	}
	if _, _, err := client.Issues.CreateComment(ctx, owner, repo, number, &gh.IssueComment{
		Body: gh.String(comment),
	}); err != nil {
		return fmt.Errorf("comment on %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

// Details fetches an issue for display.
func (i *Integration) Details(ctx context.Context, externalUserID int64, number int) (*Details, error) {
	client, owner, repo, err := i.repoClient(ctx, externalUserID)
	if err != nil {
		return nil, err
	}
	issue, _, err := client.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s#%d: %w", owner, repo, number, err)
	}
	return &Details{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		State:  issue.GetState(),
		Body:   issue.GetBody(),
		URL:    issue.GetHTMLURL(),
	}, nil
}

// splitRepoURL extracts owner and repository from a repository browser URL
// such as https://github.com/owner/repo.
func splitRepoURL(rawURL string) (string, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", "", fmt.Errorf("parse repository url %q: %w", rawURL, err)
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository url %q does not name owner/repo", rawURL)
	}
	return parts[0], parts[1], nil
}
