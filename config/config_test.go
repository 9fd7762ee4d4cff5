package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Retrieve.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Retrieve.BM25Weight != 0.5 {
		t.Errorf("expected BM25Weight=0.5, got %f", cfg.Retrieve.BM25Weight)
	}
	if cfg.Generation.Temperature != 0 {
		t.Errorf("expected Temperature=0, got %f", cfg.Generation.Temperature)
	}
	if len(cfg.Chunking.Tiers) != 3 {
		t.Fatalf("expected 3 chunking tiers, got %d", len(cfg.Chunking.Tiers))
	}
	if cfg.Chunking.Tiers[0].ChunkSize != 600 || cfg.Chunking.Tiers[0].Overlap != 150 {
		t.Errorf("unexpected large-document tier: %+v", cfg.Chunking.Tiers[0])
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
	configPath := filepath.Join(tmpDir, "docqa.yaml")

	content := `
retrieve:
  top_k: 8
  stemming: false
answer:
  question_timeout_secs: 12
chunking:
  tiers:
    - {min_doc_chars: 0, chunk_size: 2000, overlap: 400}
    - {min_doc_chars: 50000, chunk_size: 800, overlap: 100}
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Retrieve.TopK != 8 {
		t.Errorf("expected TopK=8, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Retrieve.Stemming {
		t.Errorf("expected Stemming=false")
	}
	if cfg.Answer.QuestionTimeoutSecs != 12 {
		t.Errorf("expected QuestionTimeoutSecs=12, got %d", cfg.Answer.QuestionTimeoutSecs)
	}
	if len(cfg.Chunking.Tiers) != 2 {
		t.Fatalf("expected tiers to be replaced, got %d", len(cfg.Chunking.Tiers))
	}
	if cfg.Chunking.Tiers[0].MinDocChars != 50000 {
		t.Errorf("expected tiers sorted largest threshold first, got %+v", cfg.Chunking.Tiers)
	}
	if cfg.Cache.Path == "" {
		t.Error("expected cache path default to survive partial config")
	}
}

func TestLoad_RejectsNonMonotonicTiers(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "docqa.yaml")

	content := `
chunking:
  tiers:
    - {min_doc_chars: 100000, chunk_size: 1500, overlap: 100}
    - {min_doc_chars: 0, chunk_size: 600, overlap: 100}
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("expected error for tiers that grow with document length")
	}
}

func TestValidate_OverlapBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chunking.Tiers = []ChunkTier{{MinDocChars: 0, ChunkSize: 100, Overlap: 100}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when overlap equals chunk size")
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := EnsureStateDir(tmpDir); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(StateDir(tmpDir), "config.yaml")

	content := `
cache:
  path: answers.yaml
  write_through: false
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Cache.Path != "answers.yaml" {
		t.Errorf("expected cache path answers.yaml, got %s", cfg.Cache.Path)
	}
	if cfg.Cache.WriteThrough {
		t.Error("expected write_through=false")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "docqa.yaml")
	cfg := DefaultConfig()
	cfg.Generation.Model = "deepseek-chat"

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Generation.Model != "deepseek-chat" {
		t.Errorf("expected model deepseek-chat, got %s", loaded.Generation.Model)
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/srv", "cache.json"); got != filepath.Join("/srv", "cache.json") {
		t.Errorf("unexpected relative resolution: %s", got)
	}
	if got := ResolvePath("/srv", "/tmp/cache.json"); got != "/tmp/cache.json" {
		t.Errorf("absolute path should be kept, got %s", got)
	}
	if got := ResolvePath("/srv", ""); got != "" {
		t.Errorf("empty path should stay empty, got %s", got)
	}
}
