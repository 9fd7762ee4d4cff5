package cli

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"docqa/config"
	"docqa/internal/adapter/analyzer"
	"docqa/internal/adapter/cache"
	"docqa/internal/adapter/chunker"
	"docqa/internal/adapter/embedding"
	"docqa/internal/adapter/fetch"
	"docqa/internal/adapter/llm"
	"docqa/internal/adapter/loader"
	"docqa/internal/adapter/store"
	"docqa/internal/metrics"
	"docqa/internal/port"
	"docqa/internal/usecase"
)

// app holds the wired pipeline and everything that must be closed with it.
type app struct {
	cfg      *config.Config
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	answers  *cache.AnswerCache
	index    *usecase.IndexUseCase
	llm      *llm.Client
	pipeline *usecase.Pipeline

	embeddings *store.EmbeddingCache
}

// newIndexApp wires everything up to retrieval. It does not need generation
// credentials.
func newIndexApp(cfg *config.Config, dir string) (*app, error) {
	a := &app{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
	}
	a.metrics = metrics.New(a.registry)

	embedder, err := a.newEmbedder(dir)
	if err != nil {
		a.Close()
		return nil, err
	}

	tiers := make([]chunker.Tier, len(cfg.Chunking.Tiers))
	for i, t := range cfg.Chunking.Tiers {
		tiers[i] = chunker.Tier{MinDocChars: t.MinDocChars, ChunkSize: t.ChunkSize, Overlap: t.Overlap}
	}
	policy, err := chunker.NewPolicy(tiers)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid chunking tiers: %w", err)
	}

	fetcher := fetch.NewHTTPFetcher(time.Duration(cfg.Fetch.TimeoutSecs)*time.Second, cfg.Fetch.MaxBytes)
	tokenizer := analyzer.NewTokenizer(cfg.Retrieve.Stemming)

	a.index, err = usecase.NewIndexUseCase(
		fetcher,
		loader.New(),
		chunker.NewAdaptiveChunker(policy),
		embedder,
		usecase.BM25Factory(tokenizer, cfg.Retrieve.K1, cfg.Retrieve.B),
		usecase.IndexOptions{
			HybridEnabled: cfg.Retrieve.HybridEnabled,
			RRFK:          cfg.Retrieve.RRFK,
			LexicalWeight: cfg.Retrieve.BM25Weight,
			CacheSize:     cfg.Retrieve.IndexCacheSize,
		},
		a.metrics,
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// newApp wires the full question answering pipeline.
func newApp(cfg *config.Config, dir string) (*app, error) {
	a, err := newIndexApp(cfg, dir)
	if err != nil {
		return nil, err
	}

	a.llm, err = llm.NewClient(cfg.Generation.Provider, cfg.Generation.Model, llm.Options{
		BaseURL:           cfg.Generation.BaseURL,
		APIKeyEnv:         cfg.Generation.APIKeyEnv,
		Timeout:           time.Duration(cfg.Generation.TimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.Generation.RequestsPerSecond,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}

	a.answers, err = openAnswerCache(cfg, dir)
	if err != nil {
		a.Close()
		return nil, err
	}

	answerer := usecase.NewAnswerer(
		a.llm,
		time.Duration(cfg.Answer.QuestionTimeoutSecs)*time.Second,
		port.GenerateOptions{Temperature: cfg.Generation.Temperature, MaxTokens: cfg.Generation.MaxTokens},
	)
	a.pipeline = usecase.NewPipeline(a.index, answerer, a.answers, usecase.PipelineOptions{
		TopK:        cfg.Retrieve.TopK,
		Concurrency: cfg.Answer.Concurrency,
	}, a.metrics)
	return a, nil
}

func openAnswerCache(cfg *config.Config, dir string) (*cache.AnswerCache, error) {
	path := config.ResolvePath(dir, cfg.Cache.Path)
	answers, err := cache.Open(path, cfg.Cache.WriteThrough)
	if err != nil {
		return nil, fmt.Errorf("failed to open answer cache %s: %w", path, err)
	}
	return answers, nil
}

func (a *app) newEmbedder(dir string) (port.Embedder, error) {
	ec := a.cfg.Embedding
	opts := embedding.Options{
		BaseURL:   ec.BaseURL,
		Dimension: ec.Dimension,
		BatchSize: ec.BatchSize,
		Timeout:   time.Duration(ec.TimeoutSecs) * time.Second,
	}

	var embedder port.Embedder
	var err error
	switch ec.Provider {
	case "openai":
		embedder, err = embedding.NewOpenAIEmbedder(ec.APIKeyEnv, ec.Model, opts)
	case "deepseek":
		embedder, err = embedding.NewDeepSeekEmbedder(ec.APIKeyEnv, ec.Model, opts)
	case "jina":
		embedder, err = embedding.NewJinaEmbedder(ec.APIKeyEnv, ec.Model, opts)
	case "ollama":
		embedder, err = embedding.NewOllamaEmbedder(ec.Model, opts)
	case "hash":
		return embedding.NewHashEmbedder(ec.Dimension), nil
	default:
		if ec.BaseURL == "" {
			return nil, fmt.Errorf("unknown embedding provider: %s", ec.Provider)
		}
		embedder, err = embedding.NewOpenAICompatibleEmbedder(ec.APIKeyEnv, ec.Model, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	if ec.CachePath == "" {
		return embedder, nil
	}
	a.embeddings, err = store.OpenEmbeddingCache(config.ResolvePath(dir, ec.CachePath))
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	return store.NewCachedEmbedder(embedder, a.embeddings), nil
}

// Close flushes the answer cache and releases the embedding cache.
func (a *app) Close() error {
	var firstErr error
	if a.answers != nil {
		if err := a.answers.Flush(); err != nil {
			firstErr = err
		}
	}
	if a.embeddings != nil {
		if err := a.embeddings.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
