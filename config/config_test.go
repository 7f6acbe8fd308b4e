package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Retrieve.TopK != 3 {
		t.Errorf("expected TopK=3, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Retrieve.MinFragmentChars != 10 {
		t.Errorf("expected MinFragmentChars=10, got %d", cfg.Retrieve.MinFragmentChars)
	}
	if cfg.Session.Timeout != 30*time.Minute {
		t.Errorf("expected session timeout 30m, got %s", cfg.Session.Timeout)
	}
	if cfg.Embedding.Dimension != 768 {
		t.Errorf("expected Dimension=768, got %d", cfg.Embedding.Dimension)
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
	configPath := filepath.Join(tmpDir, "bookrag.yaml")

	content := `
embedding:
  provider: mock
  dimension: 32
retrieve:
  top_k: 5
  call_timeout: 2s
session:
  timeout: 5m
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Embedding.Provider != "mock" {
		t.Errorf("expected provider mock, got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimension != 32 {
		t.Errorf("expected Dimension=32, got %d", cfg.Embedding.Dimension)
	}
	if cfg.Retrieve.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Retrieve.CallTimeout != 2*time.Second {
		t.Errorf("expected CallTimeout=2s, got %s", cfg.Retrieve.CallTimeout)
	}
	if cfg.Session.Timeout != 5*time.Minute {
		t.Errorf("expected session timeout 5m, got %s", cfg.Session.Timeout)
	}
	// untouched sections keep defaults
	if cfg.Index.Backend != "bolt" {
		t.Errorf("expected default backend bolt, got %s", cfg.Index.Backend)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown provider", "embedding:\n  provider: word2vec\n"},
		{"zero top_k", "retrieve:\n  top_k: 0\n"},
		{"top_k above max", "retrieve:\n  top_k: 60\n  max_top_k: 50\n"},
		{"overlap not below chunk size", "index:\n  chunk_tokens: 50\n  chunk_overlap: 50\n"},
		{"unknown session backend", "session:\n  backend: memcached\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bookrag.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := EnsureDataDir(tmpDir); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(tmpDir, ".bookrag", "config.yaml")

	content := `
index:
  backend: memory
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Index.Backend != "memory" {
		t.Errorf("expected backend memory, got %s", cfg.Index.Backend)
	}
}

func TestLoadEnv(t *testing.T) {
	tmpDir := t.TempDir()

	if err := LoadEnv(tmpDir); err != nil {
		t.Errorf("missing .env should not fail: %v", err)
	}

	envPath := filepath.Join(tmpDir, ".env")
	if err := os.WriteFile(envPath, []byte("BOOKRAG_TEST_KEY=from-dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("BOOKRAG_TEST_KEY") })

	if err := LoadEnv(tmpDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("BOOKRAG_TEST_KEY"); got != "from-dotenv" {
		t.Errorf("expected BOOKRAG_TEST_KEY=from-dotenv, got %q", got)
	}
}

func TestIndexDBPath(t *testing.T) {
	path := IndexDBPath("/home/user/library")
	expected := filepath.Join("/home/user/library", ".bookrag", "index.db")
	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}
}
