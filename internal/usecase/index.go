package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"docqa/internal/adapter/analyzer"
	"docqa/internal/adapter/loader"
	"docqa/internal/adapter/retriever"
	"docqa/internal/adapter/store"
	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/metrics"
	"docqa/internal/port"
)

// RetrievalIndex bundles everything built for one document. It is never
// mutated after construction and is safe for concurrent searches.
type RetrievalIndex struct {
	Ref       domain.DocumentRef
	Document  domain.Document
	Chunks    []domain.Chunk
	Vectors   *store.VectorIndex
	Lexical   port.Retriever // nil when retrieval degraded to semantic-only
	Retriever *retriever.HybridRetriever
	BuiltAt   time.Time
}

func (ri *RetrievalIndex) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	return ri.Retriever.Search(ctx, query, k)
}

// LexicalFactory builds the lexical side of a RetrievalIndex.
type LexicalFactory func(chunks []domain.Chunk) (port.Retriever, error)

// BM25Factory returns a LexicalFactory backed by an in-memory BM25 index.
func BM25Factory(tokenizer *analyzer.Tokenizer, k1, b float64) LexicalFactory {
	return func(chunks []domain.Chunk) (port.Retriever, error) {
		idx, err := retriever.BuildBM25Index(chunks, tokenizer, k1, b)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
}

// IndexOptions tune retrieval index construction.
type IndexOptions struct {
	HybridEnabled bool
	RRFK          int
	LexicalWeight float64
	CacheSize     int // built indexes kept per URL; 0 rebuilds every time
}

// IndexUseCase runs fetch → load → chunk → embed/index for a document URL.
type IndexUseCase struct {
	fetcher  port.Fetcher
	loader   port.Loader
	chunker  port.Chunker
	embedder port.Embedder
	lexical  LexicalFactory
	opts     IndexOptions
	metrics  *metrics.Metrics

	cache *lru.Cache[string, *RetrievalIndex]
	group singleflight.Group
}

// NewIndexUseCase creates a new index use case. A nil lexical factory
// means semantic-only retrieval.
func NewIndexUseCase(
	fetcher port.Fetcher,
	ldr port.Loader,
	chunker port.Chunker,
	embedder port.Embedder,
	lexical LexicalFactory,
	opts IndexOptions,
	m *metrics.Metrics,
) (*IndexUseCase, error) {
	if m == nil {
		m = metrics.New(nil)
	}
	u := &IndexUseCase{
		fetcher:  fetcher,
		loader:   ldr,
		chunker:  chunker,
		embedder: embedder,
		lexical:  lexical,
		opts:     opts,
		metrics:  m,
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, *RetrievalIndex](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create index cache: %w", err)
		}
		u.cache = cache
	}
	return u, nil
}

// Build returns the retrieval index for documentURL, reusing a cached one
// when the index cache is enabled. Concurrent builds of the same URL are
// collapsed into one.
func (u *IndexUseCase) Build(ctx context.Context, documentURL string) (*RetrievalIndex, error) {
	if u.cache == nil {
		return u.build(ctx, documentURL)
	}

	if idx, ok := u.cache.Get(documentURL); ok {
		u.metrics.IndexBuildsTotal.WithLabelValues("reused").Inc()
		return idx, nil
	}

	v, err, _ := u.group.Do(documentURL, func() (any, error) {
		if idx, ok := u.cache.Get(documentURL); ok {
			return idx, nil
		}
		idx, err := u.build(ctx, documentURL)
		if err != nil {
			return nil, err
		}
		u.cache.Add(documentURL, idx)
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*RetrievalIndex), nil
}

// Forget drops a cached index.
func (u *IndexUseCase) Forget(documentURL string) {
	if u.cache != nil {
		u.cache.Remove(documentURL)
	}
}

func (u *IndexUseCase) build(ctx context.Context, documentURL string) (*RetrievalIndex, error) {
	start := time.Now()
	log := logger.FromContext(ctx).With("component", "index")

	idx, err := u.buildStages(ctx, documentURL)
	u.metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		u.metrics.IndexBuildsTotal.WithLabelValues("error").Inc()
		log.Error("index build failed", "error", err)
		return nil, err
	}

	u.metrics.IndexBuildsTotal.WithLabelValues("ok").Inc()
	u.metrics.ChunksPerDocument.Observe(float64(len(idx.Chunks)))
	log.Info("index built",
		"format", idx.Ref.Format,
		"chars", len([]rune(idx.Document.Text)),
		"chunks", len(idx.Chunks),
		"lexical", idx.Lexical != nil,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return idx, nil
}

func (u *IndexUseCase) buildStages(ctx context.Context, documentURL string) (*RetrievalIndex, error) {
	fetched, err := u.fetcher.Fetch(ctx, documentURL)
	if err != nil {
		return nil, err
	}

	format, err := loader.DetectFormat(documentURL, fetched.ContentType)
	if err != nil {
		return nil, err
	}
	ref := domain.DocumentRef{URL: documentURL, Format: format}

	pages, err := u.loader.Load(ctx, fetched.Body, format)
	if err != nil {
		return nil, err
	}
	if !loader.HasText(pages) {
		return nil, fmt.Errorf("%w: no extractable text in %d pages", domain.ErrDocumentParse, len(pages))
	}

	doc := loader.JoinPages(ref, pages)
	chunks, err := u.chunker.Chunk(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: chunking: %v", domain.ErrDocumentParse, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document produced no chunks", domain.ErrDocumentParse)
	}

	vectors, err := store.BuildVectorIndex(ctx, u.embedder, chunks)
	if err != nil {
		if !errors.Is(err, domain.ErrEmbeddingService) {
			err = fmt.Errorf("%w: %v", domain.ErrEmbeddingService, err)
		}
		return nil, err
	}

	var lexical port.Retriever
	if u.opts.HybridEnabled && u.lexical != nil {
		lexical, err = buildLexical(u.lexical, chunks)
		if err != nil {
			u.metrics.LexicalDegradedTotal.Inc()
			logger.FromContext(ctx).Warn("lexical index unavailable, using semantic retrieval only",
				"component", "index", "error", err)
			lexical = nil
		}
	}

	return &RetrievalIndex{
		Ref:       ref,
		Document:  doc,
		Chunks:    chunks,
		Vectors:   vectors,
		Lexical:   lexical,
		Retriever: retriever.NewHybridRetriever(vectors, lexical, u.opts.RRFK, u.opts.LexicalWeight),
		BuiltAt:   time.Now(),
	}, nil
}

// buildLexical runs factory and turns a panic into ErrLexicalIndex.
func buildLexical(factory LexicalFactory, chunks []domain.Chunk) (lexical port.Retriever, err error) {
	defer func() {
		if r := recover(); r != nil {
			lexical = nil
			err = fmt.Errorf("%w: panic: %v", domain.ErrLexicalIndex, r)
		}
	}()
	return factory(chunks)
}
