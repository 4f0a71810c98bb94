package embedding

import (
	"context"
	"fmt"
	"time"

	"neurodb/config"
	"neurodb/internal/port"
)

// NewProviderFactory returns a factory that builds the configured provider.
// Construction is deferred until the gateway first needs a vector.
func NewProviderFactory(cfg config.EmbeddingConfig) port.ProviderFactory {
	return func(ctx context.Context) (port.EmbeddingProvider, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		opts := OpenAIOptions{
			APIKeyEnv: cfg.APIKeyEnv,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Dimension: cfg.Dimension,
			BatchSize: cfg.BatchSize,
			Timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
		}

		switch cfg.Provider {
		case "", "local":
			return NewHashProvider(cfg.Dimension), nil
		case "openai":
			return NewOpenAIProvider(opts)
		case "deepseek":
			return NewDeepSeekProvider(opts)
		case "jina":
			return NewJinaProvider(opts)
		case "ollama":
			return NewOllamaProvider(opts)
		default:
			return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
		}
	}
}

// NewGatewayFromConfig wires a gateway with the configured batching.
func NewGatewayFromConfig(cfg config.EmbeddingConfig, opts ...GatewayOption) *Gateway {
	base := []GatewayOption{
		WithBatchSize(cfg.BatchSize),
		WithConcurrency(cfg.Concurrency),
	}
	return NewGateway(NewProviderFactory(cfg), append(base, opts...)...)
}
