package github

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func testTokenCache(mint mintFunc) (*TokenCache, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewTokenCache(AppConfig{AppID: 1})
	cache.mint = mint
	cache.now = func() time.Time { return now }
	return cache, &now
}

func TestTokenCacheReusesWithinTTL(t *testing.T) {
	mints := 0
	cache, clock := testTokenCache(func(ctx context.Context, cfg AppConfig, installationID int64) (InstallationToken, error) {
		mints++
		return InstallationToken{Token: fmt.Sprintf("tok-%d", mints)}, nil
	})

	token, err := cache.Token(context.Background(), 10)
	if err != nil {
		t.Fatalf("first token: %v", err)
	}
	if token != "tok-1" {
		t.Fatalf("unexpected token: %q", token)
	}

	*clock = clock.Add(49 * time.Minute)
	token, err = cache.Token(context.Background(), 10)
	if err != nil {
		t.Fatalf("cached token: %v", err)
	}
	if token != "tok-1" || mints != 1 {
		t.Fatalf("expected cached token, got %q after %d mints", token, mints)
	}

	*clock = clock.Add(2 * time.Minute)
	token, err = cache.Token(context.Background(), 10)
	if err != nil {
		t.Fatalf("expired token: %v", err)
	}
	if token != "tok-2" || mints != 2 {
		t.Fatalf("expected fresh token after ttl, got %q after %d mints", token, mints)
	}
}

func TestTokenCachePerInstallation(t *testing.T) {
	cache, _ := testTokenCache(func(ctx context.Context, cfg AppConfig, installationID int64) (InstallationToken, error) {
		return InstallationToken{Token: fmt.Sprintf("tok-%d", installationID)}, nil
	})

	for _, id := range []int64{10, 20} {
		token, err := cache.Token(context.Background(), id)
		if err != nil {
			t.Fatalf("token for %d: %v", id, err)
		}
		if token != fmt.Sprintf("tok-%d", id) {
			t.Fatalf("unexpected token for %d: %q", id, token)
		}
	}
}

func TestTokenCacheHonorsShorterUpstreamExpiry(t *testing.T) {
	mints := 0
	var upstream time.Time
	cache, clock := testTokenCache(func(ctx context.Context, cfg AppConfig, installationID int64) (InstallationToken, error) {
		mints++
		return InstallationToken{Token: fmt.Sprintf("tok-%d", mints), ExpiresAt: &upstream}, nil
	})
	upstream = clock.Add(5 * time.Minute)

	if _, err := cache.Token(context.Background(), 10); err != nil {
		t.Fatalf("first token: %v", err)
	}
	*clock = clock.Add(6 * time.Minute)
	upstream = clock.Add(5 * time.Minute)
	if _, err := cache.Token(context.Background(), 10); err != nil {
		t.Fatalf("second token: %v", err)
	}
	if mints != 2 {
		t.Fatalf("expected remint after upstream expiry, got %d mints", mints)
	}
}

func TestTokenCacheMintFailure(t *testing.T) {
	cache, _ := testTokenCache(func(ctx context.Context, cfg AppConfig, installationID int64) (InstallationToken, error) {
		return InstallationToken{}, fmt.Errorf("exchange failed")
	})
	if _, err := cache.Token(context.Background(), 10); err == nil {
		t.Fatalf("expected mint error to propagate")
	}
}

func TestTokenCacheInvalidate(t *testing.T) {
	mints := 0
	cache, _ := testTokenCache(func(ctx context.Context, cfg AppConfig, installationID int64) (InstallationToken, error) {
		mints++
		return InstallationToken{Token: fmt.Sprintf("tok-%d", mints)}, nil
	})

	if _, err := cache.Token(context.Background(), 10); err != nil {
		t.Fatalf("first token: %v", err)
	}
	cache.Invalidate(10)
	token, err := cache.Token(context.Background(), 10)
	if err != nil {
		t.Fatalf("token after invalidate: %v", err)
	}
	if token != "tok-2" {
		t.Fatalf("expected fresh token after invalidate, got %q", token)
	}
}
