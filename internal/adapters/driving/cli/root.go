// Package cli provides the cobra command tree for sercha-docs.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-docs/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-docs/internal/logger"
)

// version is set at build time with -ldflags.
var version = "dev"

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sercha-docs",
	Short: "Index documentation sites and repositories for semantic search",
	Long: `sercha-docs fetches documentation from websites and GitHub repositories,
splits it into chunks, embeds them with Ollama and keeps a local vector
index fresh. The index is served to AI assistants over MCP.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"config file (default ~/.sercha-docs/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads the configuration selected by --config.
func loadConfig() (*file.Config, error) {
	cfg, err := file.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("config %q: %d source(s), %s backend", cfg.Path, len(cfg.Sources), cfg.Backend)
	return cfg, nil
}
