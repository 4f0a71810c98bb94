package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Chunk.Size != 500 {
		t.Errorf("expected Chunk.Size=500, got %d", cfg.Chunk.Size)
	}
	if cfg.Chunk.Overlap != 50 {
		t.Errorf("expected Chunk.Overlap=50, got %d", cfg.Chunk.Overlap)
	}
	if cfg.Search.DefaultLimit != 5 {
		t.Errorf("expected DefaultLimit=5, got %d", cfg.Search.DefaultLimit)
	}
	if cfg.Store.Backend != BackendBolt {
		t.Errorf("expected bolt backend, got %s", cfg.Store.Backend)
	}
	if !cfg.Ingest.ReplaceExisting {
		t.Error("expected ReplaceExisting to default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "neurodb.yaml")

	content := `
chunk:
  size: 256
  overlap: 20
store:
  backend: sqlite
ingest:
  replace_existing: false
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Chunk.Size != 256 {
		t.Errorf("expected Chunk.Size=256, got %d", cfg.Chunk.Size)
	}
	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("expected sqlite backend, got %s", cfg.Store.Backend)
	}
	if cfg.Ingest.ReplaceExisting {
		t.Error("expected ReplaceExisting=false")
	}
	// untouched sections keep defaults
	if cfg.Search.DefaultLimit != 5 {
		t.Errorf("expected default limit to survive, got %d", cfg.Search.DefaultLimit)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"overlap too large", "chunk:\n  size: 100\n  overlap: 100\n"},
		{"unknown backend", "store:\n  backend: redis\n"},
		{"unknown provider", "embedding:\n  provider: magic\n"},
		{"zero limit", "search:\n  default_limit: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "neurodb.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := EnsureDataDir(tmpDir); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(tmpDir, DataDirName, "config.yaml")

	content := `
search:
  default_limit: 9
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Search.DefaultLimit != 9 {
		t.Errorf("expected DefaultLimit=9, got %d", cfg.Search.DefaultLimit)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neurodb.yaml")
	cfg := DefaultConfig()
	cfg.Embedding.Provider = "ollama"

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Embedding.Provider != "ollama" {
		t.Errorf("expected provider ollama, got %s", loaded.Embedding.Provider)
	}
}

func TestStorePath(t *testing.T) {
	cfg := DefaultConfig()
	if got, want := cfg.StorePath("/home/user/docs"), filepath.Join("/home/user/docs", DataDirName, "neuro.db"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	cfg.Store.Backend = BackendSQLite
	if got, want := cfg.StorePath("/home/user/docs"), filepath.Join("/home/user/docs", DataDirName, "neuro.sqlite"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	cfg.Store.Path = "data/custom.db"
	if got, want := cfg.StorePath("/home/user/docs"), filepath.Join("/home/user/docs", "data", "custom.db"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	cfg.Store.Path = "/var/lib/neuro.db"
	if got := cfg.StorePath("/home/user/docs"); got != "/var/lib/neuro.db" {
		t.Errorf("absolute path should be kept, got %s", got)
	}
}
