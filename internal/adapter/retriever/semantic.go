package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"neurodb/internal/domain"
)

// ChunkLister is the read side of the record store used by search.
type ChunkLister interface {
	ListChunks(ctx context.Context) ([]domain.Chunk, error)
}

// SemanticRetriever ranks every stored chunk by cosine similarity to the
// query vector. There is no index; each search is a full scan.
type SemanticRetriever struct {
	chunks ChunkLister
	logger *slog.Logger
}

func NewSemanticRetriever(chunks ChunkLister, logger *slog.Logger) *SemanticRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticRetriever{chunks: chunks, logger: logger}
}

// Search scores all well-formed chunks. Records without text, vector or file
// name are skipped and counted. Undefined similarities (zero magnitude or
// mismatched dimension) are NaN and rank after every defined score; equal
// scores keep scan order.
func (r *SemanticRetriever) Search(ctx context.Context, query []float32) (*domain.SearchOutput, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", domain.ErrInvalidInput)
	}

	chunks, err := r.chunks.ListChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	out := &domain.SearchOutput{
		Results: make([]domain.SearchResult, 0, len(chunks)),
		Scanned: len(chunks),
	}
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.Text == "" || len(c.Vector) == 0 || c.Metadata.FileName == "" {
			out.Skipped++
			r.logger.Warn("skipping malformed chunk", "id", c.ID, "file", c.Metadata.FileName)
			continue
		}
		out.Results = append(out.Results, domain.SearchResult{
			ChunkID:    c.ID,
			Text:       c.Text,
			FileName:   c.Metadata.FileName,
			ChunkIndex: c.Metadata.ChunkIndex,
			Similarity: CosineSimilarity(query, c.Vector),
		})
	}

	SortByScore(out.Results)
	r.logger.Debug("scanned chunks", "scanned", out.Scanned, "skipped", out.Skipped)
	return out, nil
}

// SortByScore orders results by descending similarity with NaN last. The
// sort is stable.
func SortByScore(results []domain.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Similarity, results[j].Similarity
		aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
		switch {
		case aNaN:
			return false
		case bNaN:
			return true
		default:
			return a > b
		}
	})
}

// CosineSimilarity accumulates in float64. It returns NaN when the lengths
// differ or either vector has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return math.NaN()
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
