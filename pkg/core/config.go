package core

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration.
type Config struct {
	// Server holds HTTP server configuration.
	Server struct {
		Port           int   `yaml:"port"`
		ReadTimeoutMS  int64 `yaml:"read_timeout_ms"`
		WriteTimeoutMS int64 `yaml:"write_timeout_ms"`
		IdleTimeoutMS  int64 `yaml:"idle_timeout_ms"`
		ReadHeaderMS   int64 `yaml:"read_header_timeout_ms"`
		MaxBodyBytes   int64 `yaml:"max_body_bytes"`
		DebugEvents    bool  `yaml:"debug_events"`
	} `yaml:"server"`
	// Storage holds configuration for the SQL-backed stores.
	Storage StorageConfig `yaml:"storage"`
	// GitHub holds the GitHub App credentials and webhook settings.
	GitHub GitHubConfig `yaml:"github"`
	// Tenants holds tenant-selection settings.
	Tenants TenantsConfig `yaml:"tenants"`
}

// StorageConfig holds configuration for SQL-backed storage.
type StorageConfig struct {
	Driver            string `yaml:"driver"`
	DSN               string `yaml:"dsn"`
	Dialect           string `yaml:"dialect"`
	AutoMigrate       bool   `yaml:"auto_migrate"`
	MaxOpenConns      int    `yaml:"max_open_conns"`
	MaxIdleConns      int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMS int64  `yaml:"conn_max_lifetime_ms"`
	ConnMaxIdleTimeMS int64  `yaml:"conn_max_idle_time_ms"`
}

// GitHubConfig holds the GitHub App identity and webhook settings.
type GitHubConfig struct {
	AppID          int64  `yaml:"app_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PrivateKeyPEM  string `yaml:"private_key_pem"`
	WebhookSecret  string `yaml:"webhook_secret"`
	WebhookPath    string `yaml:"webhook_path"`
	APIBaseURL     string `yaml:"api_base_url"`
	WebBaseURL     string `yaml:"web_base_url"`
}

// TenantsConfig holds tenant-selection settings.
type TenantsConfig struct {
	// PublicTenantID is the tenant used when an installer belongs to no
	// tenant at all.
	PublicTenantID int64 `yaml:"public_tenant_id"`
}

// LoadConfig loads the application configuration from a YAML file.
// Values of the form ${NAME} are expanded from the environment before
// parsing, and defaults are applied.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	expanded := os.Expand(string(data), os.Getenv)
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, err
	}

	applyDefaults(&cfg)
	return cfg, cfg.validate()
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutMS == 0 {
		cfg.Server.ReadTimeoutMS = 5000
	}
	if cfg.Server.WriteTimeoutMS == 0 {
		cfg.Server.WriteTimeoutMS = 30000
	}
	if cfg.Server.IdleTimeoutMS == 0 {
		cfg.Server.IdleTimeoutMS = 60000
	}
	if cfg.Server.ReadHeaderMS == 0 {
		cfg.Server.ReadHeaderMS = 5000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.GitHub.WebhookPath == "" {
		cfg.GitHub.WebhookPath = "/webhook"
	}
	if cfg.Tenants.PublicTenantID == 0 {
		cfg.Tenants.PublicTenantID = 1
	}
}

func (cfg Config) validate() error {
	if cfg.GitHub.AppID == 0 {
		return errors.New("github.app_id is required")
	}
	if cfg.GitHub.PrivateKeyPath == "" && cfg.GitHub.PrivateKeyPEM == "" {
		return errors.New("github.private_key_path or github.private_key_pem is required")
	}
	if cfg.GitHub.WebhookSecret == "" {
		return errors.New("github.webhook_secret is required")
	}
	if cfg.Storage.Driver == "" && cfg.Storage.Dialect == "" {
		return fmt.Errorf("storage.driver is required")
	}
	if cfg.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}
	return nil
}
