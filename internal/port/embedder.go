package port

import "context"

// EmbeddingProvider turns text into a pooled, fixed-length vector.
type EmbeddingProvider interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// ProviderFactory builds a provider. It is called at most once per gateway
// after a successful construction.
type ProviderFactory func(ctx context.Context) (EmbeddingProvider, error)
