package accounts

import (
	"context"
	"testing"
)

func TestAccountDirectoryLookups(t *testing.T) {
	store, err := Open(Config{Driver: "sqlite", DSN: ":memory:", AutoMigrate: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if err := store.LinkAccount(ctx, 501, 7); err != nil {
		t.Fatalf("link account: %v", err)
	}
	if err := store.AddMembership(ctx, 2, 7); err != nil {
		t.Fatalf("add membership: %v", err)
	}
	if err := store.AddMembership(ctx, 5, 7); err != nil {
		t.Fatalf("add membership: %v", err)
	}

	user, err := store.FindUserByExternalID(ctx, 501)
	if err != nil || user == nil || user.UserID != 7 {
		t.Fatalf("find user: %+v err=%v", user, err)
	}

	missing, err := store.FindUserByExternalID(ctx, 999)
	if err != nil || missing != nil {
		t.Fatalf("expected clean miss, got %+v err=%v", missing, err)
	}

	tenants, err := store.TenantsForUser(ctx, 7)
	if err != nil {
		t.Fatalf("tenants for user: %v", err)
	}
	if len(tenants) != 2 || tenants[0] != 2 || tenants[1] != 5 {
		t.Fatalf("unexpected tenants: %v", tenants)
	}

	none, err := store.TenantsForUser(ctx, 12)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no tenants, got %v err=%v", none, err)
	}
}
