package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"neurodb/config"
)

func newEmbeddingServer(t *testing.T, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"bad key"}}`))
			return
		}

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		// respond in reverse order to exercise index placement
		resp := embeddingResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{
				Embedding: []float32{float32(len(req.Input[i])), 0, 1},
				Index:     i,
			})
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIProvider_Embed(t *testing.T) {
	var requests atomic.Int32
	srv := newEmbeddingServer(t, &requests)
	defer srv.Close()

	t.Setenv("NEURODB_TEST_KEY", "test-key")
	p, err := NewOpenAIProvider(OpenAIOptions{
		APIKeyEnv: "NEURODB_TEST_KEY",
		BaseURL:   srv.URL,
		Dimension: 3,
		BatchSize: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := p.Embed(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(out))
	}
	for i, want := range []float32{1, 2, 3} {
		if out[i][0] != want {
			t.Errorf("vector %d: expected first component %v, got %v", i, want, out[i][0])
		}
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("expected 2 batched requests, got %d", n)
	}
	if p.ModelName() != "text-embedding-3-small" {
		t.Errorf("unexpected default model %s", p.ModelName())
	}
}

func TestOpenAIProvider_MissingKey(t *testing.T) {
	t.Setenv("NEURODB_MISSING_KEY", "")
	_, err := NewOpenAIProvider(OpenAIOptions{APIKeyEnv: "NEURODB_MISSING_KEY"})
	if err == nil || !strings.Contains(err.Error(), "NEURODB_MISSING_KEY") {
		t.Errorf("expected missing key error, got %v", err)
	}
}

func TestOpenAIProvider_HTTPError(t *testing.T) {
	var requests atomic.Int32
	srv := newEmbeddingServer(t, &requests)
	defer srv.Close()

	t.Setenv("NEURODB_TEST_KEY", "wrong")
	p, err := NewOpenAIProvider(OpenAIOptions{APIKeyEnv: "NEURODB_TEST_KEY", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Embed(context.Background(), []string{"x"}); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestOllamaProvider_NoKeyNeeded(t *testing.T) {
	p, err := NewOllamaProvider(OpenAIOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if p.Dimension() != 384 {
		t.Errorf("expected all-minilm dimension 384, got %d", p.Dimension())
	}
}

func TestProviderFactory(t *testing.T) {
	cfg := config.DefaultConfig().Embedding
	p, err := NewProviderFactory(cfg)(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if p.ModelName() != "local-hash" {
		t.Errorf("expected local provider, got %s", p.ModelName())
	}

	cfg.Provider = "unknown"
	if _, err := NewProviderFactory(cfg)(context.Background()); err == nil {
		t.Error("expected error for unknown provider")
	}
}
