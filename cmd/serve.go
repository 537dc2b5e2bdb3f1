package cmd

import (
	"github.com/spf13/cobra"

	"githubapp/pkg/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Long: "Run the HTTP server that ingests GitHub App webhooks, resolves tenants, and " +
			"synchronizes repositories into products and bug trackers.",
		Example: "  githubapp serve --config config.yaml",
		RunE: func(_ *cobra.Command, _ []string) error {
			return server.RunConfig(configPath)
		},
	}
	return cmd
}
