package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

var (
	queryType     string
	queryLimit    int
	queryMinScore float64
	queryJSON     bool
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search the documentation index",
	Long: `Searches the index. Semantic queries rank by embedding similarity,
keyword queries use full-text BM25 and hybrid queries fuse both rankings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryType, "type", "t", string(domain.QueryTypeSemantic),
		"query type: semantic, keyword or hybrid")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 0, "maximum number of results (default from config)")
	queryCmd.Flags().Float64Var(&queryMinScore, "min-score", 0, "drop results scoring below this value")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	qt, err := domain.ParseQueryType(queryType)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	limit := queryLimit
	if limit == 0 {
		limit = cfg.Server.QueryLimit
	}

	ctx := cmd.Context()
	rt, err := newRuntime(ctx, cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	resp, err := rt.Query.Query(ctx, strings.Join(args, " "), limit, qt, queryMinScore)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return writeJSON(cmd, toQueryJSON(resp))
	}
	outputQueryTable(cmd, resp)
	return nil
}

func outputQueryTable(cmd *cobra.Command, resp *domain.QueryResponse) {
	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range resp.Results {
		r := &resp.Results[i]
		title := r.Title
		if title == "" {
			title = r.DocumentID
		}
		cmd.Printf("  [%d] %s (%.3f, %s)\n", i+1, title, r.Score, r.MatchType)
		if len(r.HeadingPath) > 0 {
			cmd.Printf("      %s\n", strings.Join(r.HeadingPath, " > "))
		}
		cmd.Printf("      Source: %s  %s\n", r.SourceName, r.DocumentID)
		cmd.Printf("      Chunk:  %s\n", r.ChunkID)
		if r.Snippet != "" {
			cmd.Printf("      %s\n", r.Snippet)
		}
		cmd.Println()
	}
}

type queryJSONOutput struct {
	Query     string            `json:"query"`
	QueryType string            `json:"query_type"`
	TookMS    int64             `json:"took_ms"`
	Results   []queryResultJSON `json:"results"`
}

type queryResultJSON struct {
	ChunkID     string   `json:"chunk_id"`
	Source      string   `json:"source"`
	DocumentID  string   `json:"document_id"`
	Title       string   `json:"title"`
	HeadingPath []string `json:"heading_path,omitempty"`
	Snippet     string   `json:"snippet"`
	Score       float64  `json:"score"`
	MatchType   string   `json:"match_type"`
}

func toQueryJSON(resp *domain.QueryResponse) queryJSONOutput {
	out := queryJSONOutput{
		Query:     resp.Info.Query,
		QueryType: string(resp.Info.QueryType),
		TookMS:    resp.Info.Took.Milliseconds(),
		Results:   make([]queryResultJSON, len(resp.Results)),
	}
	for i := range resp.Results {
		r := &resp.Results[i]
		out.Results[i] = queryResultJSON{
			ChunkID:     r.ChunkID,
			Source:      r.SourceName,
			DocumentID:  r.DocumentID,
			Title:       r.Title,
			HeadingPath: r.HeadingPath,
			Snippet:     r.Snippet,
			Score:       r.Score,
			MatchType:   string(r.MatchType),
		}
	}
	return out
}
