package core

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
github:
  app_id: 12345
  private_key_pem: dummy
  webhook_secret: s3cret
storage:
  driver: sqlite
  dsn: ":memory:"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxBodyBytes != 1<<20 {
		t.Fatalf("expected default max body, got %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.GitHub.WebhookPath != "/webhook" {
		t.Fatalf("expected default webhook path, got %q", cfg.GitHub.WebhookPath)
	}
	if cfg.Tenants.PublicTenantID != 1 {
		t.Fatalf("expected default public tenant, got %d", cfg.Tenants.PublicTenantID)
	}
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("GH_APP_SECRET", "from-env")
	path := writeConfig(t, `
github:
  app_id: 12345
  private_key_pem: dummy
  webhook_secret: ${GH_APP_SECRET}
storage:
  driver: sqlite
  dsn: ":memory:"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.GitHub.WebhookSecret != "from-env" {
		t.Fatalf("expected env expansion, got %q", cfg.GitHub.WebhookSecret)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"missing app id": `
github:
  private_key_pem: dummy
  webhook_secret: s3cret
storage:
  driver: sqlite
  dsn: ":memory:"
`,
		"missing private key": `
github:
  app_id: 12345
  webhook_secret: s3cret
storage:
  driver: sqlite
  dsn: ":memory:"
`,
		"missing webhook secret": `
github:
  app_id: 12345
  private_key_pem: dummy
storage:
  driver: sqlite
  dsn: ":memory:"
`,
		"missing storage dsn": `
github:
  app_id: 12345
  private_key_pem: dummy
  webhook_secret: s3cret
storage:
  driver: sqlite
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
