package port

import (
	"context"

	"neurodb/internal/domain"
)

// Searcher ranks stored chunks against a precomputed query vector.
type Searcher interface {
	Search(ctx context.Context, query []float32) (*domain.SearchOutput, error)
}
