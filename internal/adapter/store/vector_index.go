package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// VectorIndex holds the chunk embeddings of one document in memory and
// answers nearest-neighbour queries by brute-force cosine similarity. It is
// read-only after BuildVectorIndex returns.
type VectorIndex struct {
	embedder port.Embedder
	chunks   []domain.Chunk
	vectors  [][]float32
}

// BuildVectorIndex embeds all chunk texts in one batched call sequence.
func BuildVectorIndex(ctx context.Context, embedder port.Embedder, chunks []domain.Chunk) (*VectorIndex, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", domain.ErrEmbeddingService, len(vectors), len(chunks))
	}

	return &VectorIndex{
		embedder: embedder,
		chunks:   chunks,
		vectors:  vectors,
	}, nil
}

func (idx *VectorIndex) Len() int {
	return len(idx.chunks)
}

// Search implements port.Retriever. Ties keep document order.
func (idx *VectorIndex) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 || len(idx.chunks) == 0 {
		return nil, nil
	}

	qv, err := idx.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(qv) != 1 {
		return nil, fmt.Errorf("%w: expected one query vector, got %d", domain.ErrEmbeddingService, len(qv))
	}

	return idx.SearchVector(qv[0], k), nil
}

// SearchVector ranks chunks against an already embedded query.
func (idx *VectorIndex) SearchVector(query []float32, k int) []domain.ScoredChunk {
	results := make([]domain.ScoredChunk, len(idx.chunks))
	for i, chunk := range idx.chunks {
		results[i] = domain.ScoredChunk{
			Chunk: chunk,
			Score: cosineSimilarity(query, idx.vectors[i]),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k]
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
