package cli

import (
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var statusRuns int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics and recent runs",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 5, "number of recent runs to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	stats, err := rt.Query.Stats(ctx)
	if err != nil {
		return err
	}

	cmd.Printf("Index: %s\n", cfg.IndexDir())
	if stats.Model != "" {
		cmd.Printf("Model: %s (%d dimensions)\n", stats.Model, stats.Dimensions)
	} else {
		cmd.Println("Model: none (index not built)")
	}
	cmd.Printf("Chunks: %d\n", stats.TotalChunks)
	if err := rt.CheckIntegrity(ctx); err != nil {
		cmd.Printf("Integrity: %v\n", err)
	} else {
		cmd.Println("Integrity: ok")
	}

	names := make([]string, 0, len(stats.ChunksBySource))
	for name := range stats.ChunksBySource {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd.Printf("  %-24s %d\n", name, stats.ChunksBySource[name])
	}

	runs, err := rt.Scheduler.History(ctx, statusRuns)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}
	cmd.Println()
	cmd.Println("Recent runs:")
	for i := range runs {
		r := &runs[i]
		result := "ok"
		switch {
		case !r.Success:
			result = "failed"
		case r.Degraded:
			result = "degraded"
		}
		cmd.Printf("  %s  %-9s %-8s +%d/-%d chunks  %s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Trigger, result,
			r.ChunksWritten, r.ChunksPruned, r.Duration().Round(time.Millisecond))
	}
	return nil
}
