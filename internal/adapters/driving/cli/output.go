package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

// printSummary writes a human readable run summary.
func printSummary(cmd *cobra.Command, s *domain.RunSummary) {
	status := "ok"
	switch {
	case !s.Success:
		status = "failed"
	case s.Degraded:
		status = "degraded"
	}
	cmd.Printf("Run %s (%s): %s in %s\n", s.RunID, s.Trigger, status, s.Duration().Round(time.Millisecond))
	if s.Error != "" {
		cmd.Printf("  Error: %s\n", s.Error)
	}

	for i := range s.Sources {
		src := &s.Sources[i]
		cmd.Printf("  %s: fetched %d, cached %d, failed %d, chunks +%d/-%d\n",
			src.SourceName, src.DocumentsFetched, src.DocumentsCached, src.DocumentsFailed,
			src.ChunksWritten, src.ChunksPruned)
		if src.Error != "" {
			cmd.Printf("    Error: %s\n", src.Error)
		}
		if src.PruneSkipped {
			cmd.Println("    Stale chunks kept (fetch failed)")
		}
		for _, id := range src.FailedIdentifiers {
			cmd.Printf("    ! %s\n", id)
		}
	}
	cmd.Printf("Chunks written: %d, pruned: %d\n", s.ChunksWritten, s.ChunksPruned)
}

// runJSON is the --json form of a run summary.
type runJSON struct {
	RunID         string       `json:"run_id"`
	Trigger       string       `json:"trigger"`
	StartedAt     time.Time    `json:"started_at"`
	EndedAt       time.Time    `json:"ended_at"`
	Success       bool         `json:"success"`
	Degraded      bool         `json:"degraded"`
	Error         string       `json:"error,omitempty"`
	ChunksWritten int          `json:"chunks_written"`
	ChunksPruned  int          `json:"chunks_pruned"`
	Sources       []sourceJSON `json:"sources"`
}

type sourceJSON struct {
	Name              string   `json:"name"`
	DocumentsFetched  int      `json:"documents_fetched"`
	DocumentsCached   int      `json:"documents_cached"`
	DocumentsFailed   int      `json:"documents_failed"`
	FailedIdentifiers []string `json:"failed_identifiers,omitempty"`
	ChunksWritten     int      `json:"chunks_written"`
	ChunksPruned      int      `json:"chunks_pruned"`
	FetchAttempts     int      `json:"fetch_attempts"`
	PruneSkipped      bool     `json:"prune_skipped"`
	Degraded          bool     `json:"degraded"`
	Error             string   `json:"error,omitempty"`
	DurationMS        int64    `json:"duration_ms"`
}

func toRunJSON(s *domain.RunSummary) runJSON {
	out := runJSON{
		RunID:         s.RunID,
		Trigger:       string(s.Trigger),
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		Success:       s.Success,
		Degraded:      s.Degraded,
		Error:         s.Error,
		ChunksWritten: s.ChunksWritten,
		ChunksPruned:  s.ChunksPruned,
		Sources:       make([]sourceJSON, len(s.Sources)),
	}
	for i := range s.Sources {
		src := &s.Sources[i]
		out.Sources[i] = sourceJSON{
			Name:              src.SourceName,
			DocumentsFetched:  src.DocumentsFetched,
			DocumentsCached:   src.DocumentsCached,
			DocumentsFailed:   src.DocumentsFailed,
			FailedIdentifiers: src.FailedIdentifiers,
			ChunksWritten:     src.ChunksWritten,
			ChunksPruned:      src.ChunksPruned,
			FetchAttempts:     src.FetchAttempts,
			PruneSkipped:      src.PruneSkipped,
			Degraded:          src.Degraded,
			Error:             src.Error,
			DurationMS:        src.Duration.Milliseconds(),
		}
	}
	return out
}
