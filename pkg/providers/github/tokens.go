package github

import (
	"context"
	"sync"
	"time"
)

// tokenTTL is deliberately shorter than the one hour GitHub grants, so a
// cached token handed to a caller always has at least a few minutes left.
const tokenTTL = 50 * time.Minute

type mintFunc func(ctx context.Context, cfg AppConfig, installationID int64) (InstallationToken, error)

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// TokenCache keeps installation access tokens in memory per installation
// id. Concurrent misses for the same installation may each mint a token;
// both tokens are valid, so the duplicate request is harmless.
type TokenCache struct {
	cfg  AppConfig
	mint mintFunc
	now  func() time.Time

	mu     sync.RWMutex
	tokens map[int64]cachedToken
}

// NewTokenCache returns an empty cache minting tokens with cfg.
func NewTokenCache(cfg AppConfig) *TokenCache {
	return &TokenCache{
		cfg:    cfg,
		mint:   FetchInstallationToken,
		now:    time.Now,
		tokens: make(map[int64]cachedToken),
	}
}

// Token returns a cached installation token, minting a fresh one when the
// cached entry is absent or past its TTL.
func (c *TokenCache) Token(ctx context.Context, installationID int64) (string, error) {
	c.mu.RLock()
	entry, ok := c.tokens[installationID]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		return entry.token, nil
	}

	minted, err := c.mint(ctx, c.cfg, installationID)
	if err != nil {
		return "", err
	}
	expiresAt := c.now().Add(tokenTTL)
	if minted.ExpiresAt != nil && minted.ExpiresAt.Before(expiresAt) {
		expiresAt = *minted.ExpiresAt
	}

	c.mu.Lock()
	c.tokens[installationID] = cachedToken{token: minted.Token, expiresAt: expiresAt}
	c.mu.Unlock()
	return minted.Token, nil
}

// Invalidate drops the cached token for an installation, forcing the next
// call to mint. Used after GitHub rejects a token early.
func (c *TokenCache) Invalidate(installationID int64) {
	c.mu.Lock()
	delete(c.tokens, installationID)
	c.mu.Unlock()
}
