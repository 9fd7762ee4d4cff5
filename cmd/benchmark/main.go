package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"docqa/config"
	"docqa/internal/adapter/analyzer"
	"docqa/internal/adapter/chunker"
	"docqa/internal/adapter/embedding"
	"docqa/internal/adapter/fetch"
	"docqa/internal/adapter/loader"
	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/port"
	"docqa/internal/usecase"
)

func main() {
	dir := flag.String("dir", ".", "Directory holding docqa.yaml")
	doc := flag.String("doc", "", "Document URL or local path")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 5, "Number of results")
	flag.Parse()

	if *doc == "" || *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -doc ./policy.pdf -q \"query\"")
		fmt.Println("\nCompares:")
		fmt.Println("  1. Semantic ranking (embedding index)")
		fmt.Println("  2. Lexical ranking (BM25)")
		fmt.Println("  3. Hybrid ranking (reciprocal rank fusion)")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup("warn", cfg.Logging.Format)

	embedder, err := setupEmbedding(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Semantic search not available: %v\n", err)
		os.Exit(1)
	}

	tiers := make([]chunker.Tier, len(cfg.Chunking.Tiers))
	for i, t := range cfg.Chunking.Tiers {
		tiers[i] = chunker.Tier{MinDocChars: t.MinDocChars, ChunkSize: t.ChunkSize, Overlap: t.Overlap}
	}
	policy, err := chunker.NewPolicy(tiers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid chunking tiers: %v\n", err)
		os.Exit(1)
	}

	indexUC, err := usecase.NewIndexUseCase(
		fetch.NewHTTPFetcher(time.Duration(cfg.Fetch.TimeoutSecs)*time.Second, cfg.Fetch.MaxBytes),
		loader.New(),
		chunker.NewAdaptiveChunker(policy),
		embedder,
		usecase.BM25Factory(analyzer.NewTokenizer(cfg.Retrieve.Stemming), cfg.Retrieve.K1, cfg.Retrieve.B),
		usecase.IndexOptions{HybridEnabled: true, RRFK: cfg.Retrieve.RRFK, LexicalWeight: cfg.Retrieve.BM25Weight},
		nil,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	start := time.Now()
	idx, err := indexUC.Build(ctx, *doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error indexing document: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Document: %s (%s)\n", *doc, idx.Ref.Format)
	fmt.Printf("Characters: %d, chunks: %d, built in %s\n",
		len([]rune(idx.Document.Text)), len(idx.Chunks), time.Since(start).Round(time.Millisecond))
	fmt.Printf("Model: %s (dimension %d)\n", embedder.ModelName(), embedder.Dimension())
	fmt.Printf("Query: \"%s\"\n", *query)

	report(ctx, "SEMANTIC", idx.Vectors, *query, *topK)
	if idx.Lexical != nil {
		report(ctx, "LEXICAL (BM25)", idx.Lexical, *query, *topK)
	} else {
		fmt.Println("\nLexical index unavailable, hybrid equals semantic")
	}
	report(ctx, "HYBRID (RRF)", idx.Retriever, *query, *topK)
}

func report(ctx context.Context, name string, r port.Retriever, query string, k int) {
	fmt.Println()
	fmt.Println(strings.Repeat("-", 70))
	fmt.Println(name)
	fmt.Println(strings.Repeat("-", 70))

	start := time.Now()
	results, err := r.Search(ctx, query, k)
	if err != nil {
		fmt.Printf("Search error: %v\n", err)
		return
	}
	fmt.Printf("%d results in %s\n\n", len(results), time.Since(start).Round(time.Microsecond))

	for i, res := range results {
		fmt.Printf("%d. [%.4f] page %d, chars %d-%d  id=%s\n", i+1, res.Score, res.Chunk.Page, res.Chunk.Start, res.Chunk.End, res.Chunk.ID)
		fmt.Printf("   %s\n\n", preview(res.Chunk))
	}
}

func preview(c domain.Chunk) string {
	text := []rune(strings.ReplaceAll(c.Text, "\n", " "))
	if len(text) > 150 {
		return string(text[:150]) + "..."
	}
	return string(text)
}

func setupEmbedding(cfg *config.Config) (port.Embedder, error) {
	opts := embedding.Options{
		BaseURL:   cfg.Embedding.BaseURL,
		Dimension: cfg.Embedding.Dimension,
		BatchSize: cfg.Embedding.BatchSize,
		Timeout:   time.Duration(cfg.Embedding.TimeoutSecs) * time.Second,
	}

	switch cfg.Embedding.Provider {
	case "hash":
		return embedding.NewHashEmbedder(cfg.Embedding.Dimension), nil
	case "ollama":
		return embedding.NewOllamaEmbedder(cfg.Embedding.Model, opts)
	case "openai":
		return embedding.NewOpenAIEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, opts)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Embedding.Provider)
	}
}
