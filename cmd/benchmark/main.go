package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"neurodb/config"
	"neurodb/internal/adapter/chunker"
	"neurodb/internal/adapter/embedding"
	"neurodb/internal/adapter/retriever"
	"neurodb/internal/adapter/store"
	"neurodb/internal/usecase"
)

func main() {
	dir := flag.String("dir", ".", "Directory holding the .neurodb store")
	query := flag.String("q", "", "Query to test")
	limit := flag.Int("k", 10, "Number of results")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./docs -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Store contents and embedding model")
		fmt.Println("  2. Query embedding and full-scan latency")
		fmt.Println("  3. Similarity of the top matches")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	st, err := store.Open(cfg, *dir, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if migration, err := store.CheckMigration(ctx, st, cfg); err == nil && migration.ConfigChanged {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", migration.Reason)
	}

	docs := usecase.NewDocumentStore(st, nil)
	stats, err := docs.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading store: %v\n", err)
		os.Exit(1)
	}
	if stats.Chunks == 0 {
		fmt.Fprintln(os.Stderr, "No chunks stored - run 'neurodb ingest' first")
		os.Exit(1)
	}

	gateway := embedding.NewGatewayFromConfig(cfg.Embedding)
	pipeline := usecase.NewPipeline(docs,
		chunker.NewTextChunker(cfg.Chunk.Size, cfg.Chunk.Overlap),
		gateway,
		retriever.NewSemanticRetriever(docs, nil),
		usecase.PipelineOptions{DefaultLimit: cfg.Search.DefaultLimit},
	)

	fmt.Println("SEMANTIC SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Files stored:  %d\n", stats.Files)
	fmt.Printf("Chunks stored: %d\n", stats.Chunks)
	fmt.Printf("Model: %s (%s)\n", cfg.Embedding.Model, cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", stats.Dimension)
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	// first call pays for provider construction
	start := time.Now()
	if _, err := gateway.Embed(ctx, *query); err != nil {
		fmt.Fprintf(os.Stderr, "Embedding error: %v\n", err)
		os.Exit(1)
	}
	embedTime := time.Since(start)

	start = time.Now()
	out, err := pipeline.QueryDocuments(ctx, *query, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}
	searchTime := time.Since(start)

	fmt.Printf("Query embedded in %s, %d chunks scanned in %s\n\n", embedTime, out.Scanned, searchTime)
	if len(out.Results) == 0 {
		fmt.Println("No matches.")
		return
	}
	fmt.Printf("Top %d semantic matches:\n\n", len(out.Results))

	totalScore := 0.0
	defined := 0
	for i, r := range out.Results {
		preview := []rune(strings.ReplaceAll(r.Text, "\n", " "))
		if len(preview) > 150 {
			preview = append(preview[:150], []rune("...")...)
		}

		rating := "N/A"
		if !math.IsNaN(r.Similarity) {
			totalScore += r.Similarity
			defined++
			switch {
			case r.Similarity > 0.7:
				rating = "HIGH"
			case r.Similarity > 0.5:
				rating = "GOOD"
			case r.Similarity > 0.3:
				rating = "OK"
			default:
				rating = "LOW"
			}
		}

		fmt.Printf("%d. [%s %.3f] %s#%d\n", i+1, rating, r.Similarity, r.FileName, r.ChunkIndex)
		fmt.Printf("   %s\n\n", string(preview))
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	if defined == 0 {
		fmt.Println("  No defined similarities - check for zero vectors or a dimension change")
		return
	}
	avgScore := totalScore / float64(defined)
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", out.Results[0].Similarity)
	if out.Skipped > 0 {
		fmt.Printf("  Malformed skipped:  %d\n", out.Skipped)
	}

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - semantic search working well")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - may need better embeddings or re-ingesting")
	}
}
