package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/logger"
)

var (
	indexJSON    bool
	indexRebuild bool
)

// errRunFailed marks a run that finished but did not fully succeed.
var errRunFailed = errors.New("index run did not complete successfully")

var indexCmd = &cobra.Command{
	Use:   "index [source...]",
	Short: "Fetch, chunk and embed documentation sources",
	Long: `Runs the ingestion pipeline once. With no arguments every enabled
source is indexed; named sources are indexed even when disabled.
Unchanged pages are served from the cache and records of removed pages
are pruned.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output the run summary as JSON")
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false,
		"drop the index before running (needed after changing the embedding model)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	rt, err := newRuntime(ctx, cfg, runtimeOptions{rebuild: indexRebuild})
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	if !indexJSON {
		if len(args) == 0 {
			cmd.Println("Indexing all enabled sources...")
		} else {
			cmd.Printf("Indexing %d source(s)...\n", len(args))
		}
	}

	logger.Section("index run")
	summary, runErr := rt.Pipeline.Run(ctx, domain.TriggerManual, args...)
	if summary != nil {
		if indexJSON {
			if err := writeJSON(cmd, toRunJSON(summary)); err != nil {
				return err
			}
		} else {
			printSummary(cmd, summary)
		}
	}

	switch {
	case errors.Is(runErr, domain.ErrDimensionMismatch):
		return fmt.Errorf("%w; rerun with --rebuild to re-embed every source", runErr)
	case runErr != nil:
		return fmt.Errorf("index failed: %w", runErr)
	case summary != nil && !summary.Success:
		return errRunFailed
	}
	return nil
}
