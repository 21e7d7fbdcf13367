package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

var chunkJSON bool

var chunkCmd = &cobra.Command{
	Use:   "chunk [chunk-id]",
	Short: "Print the full text of an indexed chunk",
	Args:  cobra.ExactArgs(1),
	RunE:  runChunk,
}

func init() {
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "output the chunk as JSON")
	rootCmd.AddCommand(chunkCmd)
}

func runChunk(cmd *cobra.Command, args []string) error {
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

	rec, err := rt.Query.GetChunk(ctx, args[0])
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("chunk %s not found", args[0])
	}
	if err != nil {
		return err
	}

	if chunkJSON {
		return writeJSON(cmd, map[string]any{
			"chunk_id":     rec.ID,
			"source":       rec.SourceName,
			"document_id":  rec.DocumentID,
			"title":        rec.Title,
			"heading_path": rec.HeadingPath,
			"ordinal":      rec.Ordinal,
			"token_count":  rec.TokenCount,
			"text":         rec.Text,
		})
	}

	cmd.Printf("%s\n", rec.Title)
	if len(rec.HeadingPath) > 0 {
		cmd.Printf("%s\n", strings.Join(rec.HeadingPath, " > "))
	}
	cmd.Printf("Source: %s  %s (chunk %d, %d tokens)\n\n", rec.SourceName, rec.DocumentID, rec.Ordinal, rec.TokenCount)
	cmd.Println(rec.Text)
	return nil
}
