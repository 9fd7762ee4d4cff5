package port

import (
	"context"

	"docqa/internal/domain"
)

// Retriever searches one document's chunks.
type Retriever interface {
	// Search returns at most k chunks ordered by descending score.
	Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error)
}
