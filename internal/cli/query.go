package cli

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/spf13/cobra"
)

var (
	queryText  string
	queryLimit int
	queryJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search ingested documents",
	Long: `Embed the query and rank every stored chunk by cosine similarity.

Examples:
  neurodb query -q "warranty terms"
  neurodb query -q "installation steps" -k 10 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

// queryResult is the JSON shape of one match. Similarity is null when it is
// undefined.
type queryResult struct {
	Rank       int      `json:"rank"`
	FileName   string   `json:"file_name"`
	ChunkID    uint64   `json:"chunk_id"`
	ChunkIndex int      `json:"chunk_index"`
	Similarity *float64 `json:"similarity"`
	Text       string   `json:"text"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.pipeline.QueryDocuments(cmd.Context(), queryText, queryLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		results := make([]queryResult, len(res.Results))
		for i, r := range res.Results {
			results[i] = queryResult{
				Rank:       i + 1,
				FileName:   r.FileName,
				ChunkID:    r.ChunkID,
				ChunkIndex: r.ChunkIndex,
				Text:       r.Text,
			}
			if !math.IsNaN(r.Similarity) {
				s := r.Similarity
				results[i].Similarity = &s
			}
		}
		output, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	if len(res.Results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	fmt.Fprintf(out, "Found %d results for: %s\n\n", len(res.Results), queryText)
	for i, r := range res.Results {
		fmt.Fprintf(out, "--- [%d] %s#%d (similarity: %.3f) ---\n", i+1, r.FileName, r.ChunkIndex, r.Similarity)
		text := []rune(r.Text)
		if len(text) > 500 {
			text = append(text[:500], []rune("...")...)
		}
		fmt.Fprintln(out, string(text))
		fmt.Fprintln(out)
	}
	if res.Skipped > 0 {
		fmt.Fprintf(out, "(%d malformed chunks skipped; run 'neurodb check')\n", res.Skipped)
	}
	return nil
}
