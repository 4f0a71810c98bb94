package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const defaultMaxBatch = 100

// OpenAIProvider talks to any OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	apiKey    string
	model     string
	baseURL   string
	dimension int
	maxBatch  int
	client    *http.Client
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Usage embeddingUsage  `json:"usage"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// OpenAIOptions configures an OpenAI-compatible provider.
type OpenAIOptions struct {
	APIKeyEnv string
	Model     string
	BaseURL   string
	Dimension int
	BatchSize int
	Timeout   time.Duration
}

func NewOpenAIProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-3-small"
	}
	return newCompatibleProvider(opts, true)
}

func NewDeepSeekProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.deepseek.com/v1"
	}
	return newCompatibleProvider(opts, true)
}

func NewJinaProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.jina.ai/v1"
	}
	return newCompatibleProvider(opts, true)
}

// NewOllamaProvider needs no API key.
func NewOllamaProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434/v1"
	}
	if opts.Model == "" {
		opts.Model = "all-minilm"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	return newCompatibleProvider(opts, false)
}

func newCompatibleProvider(opts OpenAIOptions, needsKey bool) (*OpenAIProvider, error) {
	apiKey := "ollama"
	if needsKey {
		apiKey = os.Getenv(opts.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found in environment variable: %s", opts.APIKeyEnv)
		}
	}

	dimension := opts.Dimension
	if dimension <= 0 {
		dimension = knownDimension(opts.Model)
	}
	maxBatch := opts.BatchSize
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIProvider{
		apiKey:    apiKey,
		model:     opts.Model,
		baseURL:   opts.BaseURL,
		dimension: dimension,
		maxBatch:  maxBatch,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func knownDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "jina-embeddings-v3":
		return 1024
	case "jina-embeddings-v4":
		return 2048
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm", "all-MiniLM-L6-v2":
		return 384
	default:
		return 1536
	}
}

func (e *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.maxBatch {
		end := i + e.maxBatch
		if end > len(texts) {
			end = len(texts)
		}

		embeddings, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

func (e *OpenAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embeddingRequest{
		Input: texts,
		Model: e.model,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200]
		}
		return nil, fmt.Errorf("failed to parse response (body: %s): %w", bodyPreview, err)
	}

	if embResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", embResp.Error.Message)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}
	for i, emb := range embeddings {
		if len(emb) == 0 {
			return nil, fmt.Errorf("API returned no embedding for input %d", i)
		}
	}

	return embeddings, nil
}

func (e *OpenAIProvider) Dimension() int {
	return e.dimension
}

func (e *OpenAIProvider) ModelName() string {
	return e.model
}
