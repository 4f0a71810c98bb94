package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"neurodb/internal/adapter/cache"
	"neurodb/internal/domain"
	"neurodb/internal/port"
)

// Gateway owns the process-wide embedding provider. The provider is built on
// first use; concurrent first callers share a single construction. Every
// vector leaving the gateway has unit length.
type Gateway struct {
	factory     port.ProviderFactory
	batchSize   int
	concurrency int
	cache       *cache.VectorCache
	logger      *slog.Logger

	init     singleflight.Group
	mu       sync.RWMutex
	provider port.EmbeddingProvider
}

type GatewayOption func(*Gateway)

// WithBatchSize sets how many chunks go to the provider per call.
func WithBatchSize(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithConcurrency sets how many provider calls may run at once for one batch.
func WithConcurrency(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithQueryCache memoizes single-text embeddings.
func WithQueryCache(c *cache.VectorCache) GatewayOption {
	return func(g *Gateway) { g.cache = c }
}

func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGateway(factory port.ProviderFactory, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		factory:     factory,
		batchSize:   1,
		concurrency: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Provider returns the cached provider, constructing it if needed. A failed
// construction is not cached.
func (g *Gateway) Provider(ctx context.Context) (port.EmbeddingProvider, error) {
	g.mu.RLock()
	p := g.provider
	g.mu.RUnlock()
	if p != nil {
		return p, nil
	}

	v, err, shared := g.init.Do("provider", func() (interface{}, error) {
		g.mu.RLock()
		existing := g.provider
		g.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		// joined callers must not inherit the first caller's cancellation
		built, err := g.factory(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if built == nil {
			return nil, errors.New("factory returned no provider")
		}

		g.mu.Lock()
		g.provider = built
		g.mu.Unlock()
		g.logger.Info("embedding provider ready", "model", built.ModelName(), "dimension", built.Dimension())
		return built, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderInit, err)
	}
	if shared {
		g.logger.Debug("joined in-flight provider initialization")
	}
	return v.(port.EmbeddingProvider), nil
}

// Embed returns the normalized embedding of one text.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	p, err := g.Provider(ctx)
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		if vec, ok := g.cache.Get(p.ModelName(), text); ok {
			return vec, nil
		}
	}

	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, &domain.EmbeddingError{Index: 0, Err: err}
	}
	if len(vectors) != 1 {
		return nil, &domain.EmbeddingError{Index: 0, Err: fmt.Errorf("provider returned %d vectors for 1 input", len(vectors))}
	}
	vec, err := checkVector(vectors[0], p.Dimension())
	if err != nil {
		return nil, &domain.EmbeddingError{Index: 0, Err: err}
	}

	if g.cache != nil {
		g.cache.Put(p.ModelName(), text, vec)
	}
	return vec, nil
}

// EmbedBatch embeds every draft and returns vectors in draft order. On
// failure the returned *domain.EmbeddingError names the first chunk of the
// lowest failing provider call and no vectors are returned.
func (g *Gateway) EmbedBatch(ctx context.Context, drafts []domain.ChunkDraft) ([][]float32, error) {
	if len(drafts) == 0 {
		return nil, nil
	}
	p, err := g.Provider(ctx)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(drafts))
	groups := (len(drafts) + g.batchSize - 1) / g.batchSize
	failures := make([]error, groups)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)

	for gi := 0; gi < groups; gi++ {
		gi := gi
		start := gi * g.batchSize
		end := start + g.batchSize
		if end > len(drafts) {
			end = len(drafts)
		}

		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			texts := make([]string, 0, end-start)
			for _, d := range drafts[start:end] {
				texts = append(texts, d.Text)
			}

			out, err := p.Embed(egCtx, texts)
			if err == nil && len(out) != len(texts) {
				err = fmt.Errorf("provider returned %d vectors for %d inputs", len(out), len(texts))
			}
			if err != nil {
				failures[gi] = &domain.EmbeddingError{Index: start, Err: err}
				return failures[gi]
			}

			for i, raw := range out {
				vec, err := checkVector(raw, p.Dimension())
				if err != nil {
					failures[gi] = &domain.EmbeddingError{Index: start + i, Err: err}
					return failures[gi]
				}
				vectors[start+i] = vec
			}
			return nil
		})
	}

	waitErr := eg.Wait()
	for _, f := range failures {
		// groups cancelled by an earlier failure report the context error
		if f != nil && !errors.Is(f, context.Canceled) {
			return nil, f
		}
	}
	if waitErr != nil {
		return nil, waitErr
	}

	g.logger.Debug("embedded chunks", "count", len(drafts), "model", p.ModelName())
	return vectors, nil
}

func checkVector(raw []float32, dimension int) ([]float32, error) {
	if len(raw) == 0 {
		return nil, errors.New("provider returned an empty vector")
	}
	if dimension > 0 && len(raw) != dimension {
		return nil, fmt.Errorf("vector dimension mismatch: expected %d, got %d", dimension, len(raw))
	}
	return Normalize(raw), nil
}

// Normalize returns a unit-length copy of v. A zero vector stays zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
