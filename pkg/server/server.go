package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"githubapp/pkg/core"
	"githubapp/pkg/providers/github"
	"githubapp/pkg/storage"
	"githubapp/pkg/storage/accounts"
	"githubapp/pkg/storage/installations"
	"githubapp/pkg/storage/payloads"
	"githubapp/pkg/storage/products"
	"githubapp/pkg/sync"
	"githubapp/pkg/webhook"
)

// RunConfig loads config from a path and starts the server with signal handling.
func RunConfig(configPath string) error {
	logger := core.NewLogger("server")
	config, err := core.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return Run(ctx, config, logger)
}

// Run starts the server until the context is canceled.
func Run(ctx context.Context, config core.Config, logger *log.Logger) error {
	pool := storage.PoolConfig{
		MaxOpenConns:      config.Storage.MaxOpenConns,
		MaxIdleConns:      config.Storage.MaxIdleConns,
		ConnMaxLifetimeMS: config.Storage.ConnMaxLifetimeMS,
		ConnMaxIdleTimeMS: config.Storage.ConnMaxIdleTimeMS,
	}

	payloadStore, err := payloads.Open(payloads.Config{
		Driver:      config.Storage.Driver,
		DSN:         config.Storage.DSN,
		Dialect:     config.Storage.Dialect,
		AutoMigrate: config.Storage.AutoMigrate,
		Pool:        pool,
	})
	if err != nil {
		return fmt.Errorf("payload storage: %w", err)
	}
	defer payloadStore.Close()
	logger.Printf("payload log enabled driver=%s dialect=%s table=github_app_payloads", config.Storage.Driver, config.Storage.Dialect)

	installStore, err := installations.Open(installations.Config{
		Driver:      config.Storage.Driver,
		DSN:         config.Storage.DSN,
		Dialect:     config.Storage.Dialect,
		AutoMigrate: config.Storage.AutoMigrate,
		Pool:        pool,
	})
	if err != nil {
		return fmt.Errorf("installation storage: %w", err)
	}
	defer installStore.Close()
	logger.Printf("installations enabled driver=%s dialect=%s table=github_app_installations", config.Storage.Driver, config.Storage.Dialect)

	productStore, err := products.Open(products.Config{
		Driver:      config.Storage.Driver,
		DSN:         config.Storage.DSN,
		Dialect:     config.Storage.Dialect,
		AutoMigrate: config.Storage.AutoMigrate,
		Pool:        pool,
	})
	if err != nil {
		return fmt.Errorf("product storage: %w", err)
	}
	defer productStore.Close()
	logger.Printf("products enabled driver=%s dialect=%s", config.Storage.Driver, config.Storage.Dialect)

	accountStore, err := accounts.Open(accounts.Config{
		Driver:      config.Storage.Driver,
		DSN:         config.Storage.DSN,
		Dialect:     config.Storage.Dialect,
		AutoMigrate: config.Storage.AutoMigrate,
		Pool:        pool,
	})
	if err != nil {
		return fmt.Errorf("account storage: %w", err)
	}
	defer accountStore.Close()

	appConfig := github.AppConfig{
		AppID:          config.GitHub.AppID,
		PrivateKeyPath: config.GitHub.PrivateKeyPath,
		PrivateKeyPEM:  config.GitHub.PrivateKeyPEM,
		BaseURL:        config.GitHub.APIBaseURL,
	}
	clients := github.NewClientFactory(appConfig)
	repoSource := sync.NewGitHubRepoSource(clients)
	engine := sync.NewEngine(productStore, installStore, accountStore, repoSource, core.NewLogger("sync"), config.Tenants.PublicTenantID)
	dispatcher := webhook.NewDispatcher(engine, installStore, core.NewLogger("dispatch"))

	ghHandler := webhook.NewGitHubHandler(
		config.GitHub.WebhookSecret,
		core.NewLogger("webhook"),
		config.Server.MaxBodyBytes,
		config.Server.DebugEvents,
		payloadStore,
		dispatcher,
	)

	interactive := newInteractiveHandlers(engine, installStore, core.NewLogger("interactive"))

	mux := http.NewServeMux()
	mux.Handle(config.GitHub.WebhookPath, ghHandler)
	mux.Handle("/healthz", healthHandler())
	mux.HandleFunc("/appedit", interactive.AppEdit)
	mux.HandleFunc("/resync", interactive.Resync)
	logger.Printf("webhook=enabled path=%s app_id=%d", config.GitHub.WebhookPath, config.GitHub.AppID)

	wrapped := applyMiddlewares(mux, []Middleware{requestLogMiddleware(core.NewLogger("http"))})
	corsHandler := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowOriginFunc: func(_ string) bool { return true },
		AllowedHeaders:  []string{"*"},
		MaxAge:          int(2 * time.Hour / time.Second),
	})
	handler := h2c.NewHandler(corsHandler.Handler(wrapped), &http2.Server{})

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	}
}
