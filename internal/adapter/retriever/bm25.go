package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"

	"docqa/internal/adapter/analyzer"
	"docqa/internal/domain"
)

type posting struct {
	chunk int
	tf    int
}

// BM25Index is an in-memory inverted index over the chunks of one document.
// It is read-only after BuildBM25Index returns.
type BM25Index struct {
	tokenizer *analyzer.Tokenizer
	k1        float64
	b         float64
	chunks    []domain.Chunk
	lengths   []int
	avgLen    float64
	postings  map[string][]posting
}

// BuildBM25Index tokenizes every chunk and builds postings. It fails with
// domain.ErrLexicalIndex when no chunk yields a single indexable term.
func BuildBM25Index(chunks []domain.Chunk, tokenizer *analyzer.Tokenizer, k1, b float64) (*BM25Index, error) {
	idx := &BM25Index{
		tokenizer: tokenizer,
		k1:        k1,
		b:         b,
		chunks:    chunks,
		lengths:   make([]int, len(chunks)),
		postings:  make(map[string][]posting),
	}

	total := 0
	for i, chunk := range chunks {
		tokens := tokenizer.Tokenize(chunk.Text)
		idx.lengths[i] = len(tokens)
		total += len(tokens)

		tf := make(map[string]int)
		for _, token := range tokens {
			tf[token]++
		}
		for term, count := range tf {
			idx.postings[term] = append(idx.postings[term], posting{chunk: i, tf: count})
		}
	}

	if total == 0 {
		return nil, fmt.Errorf("%w: %d chunks contain no indexable terms", domain.ErrLexicalIndex, len(chunks))
	}
	idx.avgLen = float64(total) / float64(len(chunks))

	return idx, nil
}

// Terms returns the vocabulary size.
func (r *BM25Index) Terms() int {
	return len(r.postings)
}

// Search implements port.Retriever. A query without indexable terms
// returns no results.
func (r *BM25Index) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTokens := r.tokenizer.Tokenize(query)
	if len(queryTokens) == 0 || k <= 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(queryTokens))
	scores := make(map[int]float64)
	N := float64(len(r.chunks))

	for _, term := range queryTokens {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		postings := r.postings[term]
		n := float64(len(postings))
		idf := math.Log((N-n+0.5)/(n+0.5) + 1)

		for _, p := range postings {
			dl := float64(r.lengths[p.chunk])
			tf := float64(p.tf)
			scores[p.chunk] += idf * (tf * (r.k1 + 1)) / (tf + r.k1*(1-r.b+r.b*dl/r.avgLen))
		}
	}

	order := make([]int, 0, len(scores))
	for i := range scores {
		order = append(order, i)
	}
	sort.Slice(order, func(i, j int) bool {
		si, sj := scores[order[i]], scores[order[j]]
		if si != sj {
			return si > sj
		}
		return order[i] < order[j]
	})

	if len(order) > k {
		order = order[:k]
	}

	results := make([]domain.ScoredChunk, len(order))
	for i, c := range order {
		results[i] = domain.ScoredChunk{Chunk: r.chunks[c], Score: scores[c]}
	}
	return results, nil
}
