package github

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// Client is the official GitHub SDK client.
type Client = gh.Client

// ClientFactory builds SDK clients authenticated as an installation. All
// clients share one token cache so repeated syncs within the token TTL do
// not re-mint.
type ClientFactory struct {
	cfg    AppConfig
	tokens *TokenCache
}

// NewClientFactory returns a factory with an empty token cache.
func NewClientFactory(cfg AppConfig) *ClientFactory {
	return &ClientFactory{cfg: cfg, tokens: NewTokenCache(cfg)}
}

// Client returns a GitHub SDK client scoped to the installation.
func (f *ClientFactory) Client(ctx context.Context, installationID int64) (*Client, error) {
	if installationID == 0 {
		return nil, fmt.Errorf("github installation id is required")
	}
	token, err := f.tokens.Token(ctx, installationID)
	if err != nil {
		return nil, err
	}
	return newSDKClient(ctx, f.cfg.BaseURL, token)
}

func newSDKClient(ctx context.Context, baseURL, token string) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)

	base := strings.TrimRight(baseURL, "/")
	if base != "" && base != defaultBaseURL {
		uploadURL := enterpriseUploadURL(base)
		client, err := gh.NewEnterpriseClient(base, uploadURL, httpClient)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return gh.NewClient(httpClient), nil
}

func enterpriseUploadURL(apiBase string) string {
	base := strings.TrimRight(apiBase, "/")
	switch {
	case strings.HasSuffix(base, "/api/v3"):
		return strings.TrimSuffix(base, "/api/v3") + "/api/uploads"
	case strings.HasSuffix(base, "/api"):
		return strings.TrimSuffix(base, "/api") + "/api/uploads"
	default:
		return base
	}
}
