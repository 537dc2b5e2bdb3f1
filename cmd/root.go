package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

// NewRootCmd returns the Cobra entrypoint for the service.
func NewRootCmd() *cobra.Command {
	configPath = "config.yaml"
	root := &cobra.Command{
		Use:   "githubapp",
		Short: "GitHub App integration for the test case management server",
		Long: "githubapp receives GitHub App webhooks, maps installations to tenants, and " +
			"imports repositories and tags as products, bug trackers, and versions.",
		Example: "  githubapp serve --config config.yaml",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			// A missing .env file is fine; the config loader falls back to
			// the process environment.
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "Path to config file")
	root.AddCommand(newServeCmd())
	return root
}
