package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/port"
)

// HybridRetriever combines BM25 lexical search with vector similarity search.
// A nil lexical retriever means semantic-only retrieval.
type HybridRetriever struct {
	semantic      port.Retriever
	lexical       port.Retriever
	rrfK          int     // RRF constant (typically 60)
	lexicalWeight float64 // Weight for BM25 results (0-1)
}

// NewHybridRetriever creates a new hybrid retriever.
func NewHybridRetriever(semantic, lexical port.Retriever, rrfK int, lexicalWeight float64) *HybridRetriever {
	if rrfK <= 0 {
		rrfK = 60 // Standard default
	}
	if lexicalWeight < 0 || lexicalWeight > 1 {
		lexicalWeight = 0.5 // Equal weighting
	}

	return &HybridRetriever{
		semantic:      semantic,
		lexical:       lexical,
		rrfK:          rrfK,
		lexicalWeight: lexicalWeight,
	}
}

// Lexical reports whether a lexical index takes part in retrieval.
func (r *HybridRetriever) Lexical() bool {
	return r.lexical != nil
}

// Search performs hybrid search combining BM25 and vector similarity. When
// one side fails the other side's ranking is returned; only a failure of
// every available side is an error.
func (r *HybridRetriever) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	if r.lexical == nil {
		return r.semantic.Search(ctx, query, k)
	}

	// Get expanded candidate pool from both retrievers
	candidateK := max(k*3, 20)
	log := r.log(ctx)

	lexResults, lexErr := r.lexical.Search(ctx, query, candidateK)
	semResults, semErr := r.semantic.Search(ctx, query, candidateK)

	switch {
	case lexErr != nil && semErr != nil:
		return nil, fmt.Errorf("hybrid search: semantic: %w (lexical: %v)", semErr, lexErr)
	case semErr != nil:
		log.Warn("semantic search failed, using lexical ranking", "error", semErr)
		return truncate(lexResults, k), nil
	case lexErr != nil:
		log.Warn("lexical search failed, using semantic ranking", "error", lexErr)
		return truncate(semResults, k), nil
	}

	return truncate(r.rrfFuse(lexResults, semResults), k), nil
}

// rrfFuse combines results using weighted Reciprocal Rank Fusion.
// RRF score = Σ weight/(k + rank) for each result list where the chunk
// appears, so a chunk found by both sides sums its contributions.
func (r *HybridRetriever) rrfFuse(lexResults, semResults []domain.ScoredChunk) []domain.ScoredChunk {
	rrfScores := make(map[string]float64)
	chunkMap := make(map[string]domain.Chunk)

	for rank, result := range lexResults {
		rrfScores[result.Chunk.ID] += r.lexicalWeight / float64(r.rrfK+rank+1)
		chunkMap[result.Chunk.ID] = result.Chunk
	}

	semanticWeight := 1.0 - r.lexicalWeight
	for rank, result := range semResults {
		rrfScores[result.Chunk.ID] += semanticWeight / float64(r.rrfK+rank+1)
		if _, exists := chunkMap[result.Chunk.ID]; !exists {
			chunkMap[result.Chunk.ID] = result.Chunk
		}
	}

	fused := make([]domain.ScoredChunk, 0, len(rrfScores))
	for id, score := range rrfScores {
		fused = append(fused, domain.ScoredChunk{
			Chunk: chunkMap[id],
			Score: score,
		})
	}

	// Sort by RRF score descending, document order on ties.
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		if fused[i].Chunk.Start != fused[j].Chunk.Start {
			return fused[i].Chunk.Start < fused[j].Chunk.Start
		}
		return fused[i].Chunk.ID < fused[j].Chunk.ID
	})

	return fused
}

func (r *HybridRetriever) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx).With("component", "retriever")
}

func truncate(results []domain.ScoredChunk, k int) []domain.ScoredChunk {
	if len(results) > k {
		return results[:k]
	}
	return results
}
