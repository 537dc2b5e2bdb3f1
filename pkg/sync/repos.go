package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v57/github"

	"githubapp/pkg/providers/github"
)

// ErrRepositoryNotFound marks a repository fetch that came back 404.
// GitHub reports this for certain fork edge cases; callers skip the
// repository and continue.
var ErrRepositoryNotFound = errors.New("repository not found")

// RepoSource fetches repository descriptors for an installation.
type RepoSource interface {
	Repository(ctx context.Context, installationID int64, fullName string) (Repository, error)
	ListRepositories(ctx context.Context, installationID int64) ([]Repository, error)
}

type githubRepoSource struct {
	clients *github.ClientFactory
}

// NewGitHubRepoSource returns a RepoSource backed by the GitHub API,
// authenticated per installation through the shared token cache.
func NewGitHubRepoSource(clients *github.ClientFactory) RepoSource {
	return &githubRepoSource{clients: clients}
}

func (s *githubRepoSource) Repository(ctx context.Context, installationID int64, fullName string) (Repository, error) {
	owner, name, err := splitFullName(fullName)
	if err != nil {
		return Repository{}, err
	}
	client, err := s.clients.Client(ctx, installationID)
	if err != nil {
		return Repository{}, err
	}
	repo, _, err := client.Repositories.Get(ctx, owner, name)
	if err != nil {
		if isNotFound(err) {
			return Repository{}, fmt.Errorf("%w: %s", ErrRepositoryNotFound, fullName)
		}
		return Repository{}, fmt.Errorf("fetch repository %s: %w", fullName, err)
	}
	return fromSDKRepository(repo), nil
}

func (s *githubRepoSource) ListRepositories(ctx context.Context, installationID int64) ([]Repository, error) {
	client, err := s.clients.Client(ctx, installationID)
	if err != nil {
		return nil, err
	}
	opts := &gh.ListOptions{PerPage: 100}
	var out []Repository
	for {
		page, resp, err := client.Apps.ListRepos(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("list installation %d repositories: %w", installationID, err)
		}
		for _, repo := range page.Repositories {
			out = append(out, fromSDKRepository(repo))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func fromSDKRepository(repo *gh.Repository) Repository {
	return Repository{
		FullName:    repo.GetFullName(),
		Description: repo.GetDescription(),
		HTMLURL:     repo.GetHTMLURL(),
		Fork:        repo.GetFork(),
	}
}

func splitFullName(fullName string) (string, string, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid repository full name %q", fullName)
	}
	return owner, name, nil
}

func isNotFound(err error) bool {
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) {
		return respErr.Response != nil && respErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}
