// Package commands defines all Cobra CLI commands for the ragserve binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ragstack/ragserve/internal/audit"
	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragserve",
		Short: "ragserve — scoped retrieval service over local document folders",
		Long: `ragserve ingests documents from local folders, embeds them, and serves
scoped similarity search and retrieval-augmented answers over HTTP.

Document collections are bound to folders; every query is scoped to one
collection through a RAG model, so answers never mix corpora.

Configuration is read from environment variables, optionally layered on a
YAML config file (~/.ragserve/config.yaml). Environment always wins.
See 'ragserve --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Pick up a local .env if present. Absence is not an error.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragserve/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewProcessCmd(),
		NewVersionCmd(),
	)

	return root
}
