package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"docqa/internal/adapter/analyzer"
)

// HashEmbedder is an offline embedder that hashes analyzer terms into a
// fixed number of signed buckets. Texts that share vocabulary end up close
// under cosine similarity, which is enough for local runs and tests.
type HashEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashEmbedder{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(true),
	}
}

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		embeddings[i] = e.embed(text)
	}
	return embeddings, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dimension)
	for _, term := range e.tokenizer.Tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(term))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dimension))
		if sum&(1<<63) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashEmbedder) ModelName() string {
	return fmt.Sprintf("hash-%d", e.dimension)
}
