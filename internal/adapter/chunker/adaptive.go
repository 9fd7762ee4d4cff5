package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"docqa/internal/domain"
)

// Tier selects ChunkSize and Overlap for documents longer than MinDocChars.
type Tier struct {
	MinDocChars int
	ChunkSize   int
	Overlap     int
}

// Policy is a step function from document length to chunk parameters.
// Longer documents get smaller chunks so that top-k retrieval still lands
// on focused passages.
type Policy struct {
	tiers []Tier
}

// NewPolicy validates tiers and orders them largest threshold first.
func NewPolicy(tiers []Tier) (Policy, error) {
	if len(tiers) == 0 {
		return Policy{}, fmt.Errorf("chunk policy needs at least one tier")
	}
	sorted := append([]Tier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinDocChars > sorted[j].MinDocChars
	})
	for i, t := range sorted {
		if t.ChunkSize <= 0 || t.Overlap < 0 || t.Overlap >= t.ChunkSize {
			return Policy{}, fmt.Errorf("tier %d: invalid size %d / overlap %d", i, t.ChunkSize, t.Overlap)
		}
		if i > 0 && t.ChunkSize < sorted[i-1].ChunkSize {
			return Policy{}, fmt.Errorf("tier %d: chunk size must not shrink for shorter documents", i)
		}
	}
	return Policy{tiers: sorted}, nil
}

// Params returns the chunk size and overlap for a document of docLen runes.
func (p Policy) Params(docLen int) (size, overlap int) {
	for _, t := range p.tiers {
		if docLen > t.MinDocChars {
			return t.ChunkSize, t.Overlap
		}
	}
	last := p.tiers[len(p.tiers)-1]
	return last.ChunkSize, last.Overlap
}

// AdaptiveChunker picks chunk parameters from its Policy per document and
// delegates splitting to a RecursiveChunker.
type AdaptiveChunker struct {
	policy Policy
}

func NewAdaptiveChunker(policy Policy) *AdaptiveChunker {
	return &AdaptiveChunker{policy: policy}
}

// Chunk implements port.Chunker. Chunks that contain only whitespace are
// dropped.
func (c *AdaptiveChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	runes := []rune(doc.Text)
	size, overlap := c.policy.Params(len(runes))

	splitter, err := NewRecursiveChunker(size, overlap)
	if err != nil {
		return nil, err
	}

	var chunks []domain.Chunk
	for _, span := range splitter.Split(doc.Text) {
		text := string(runes[span.Start:span.End])
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			ID:     generateChunkID(doc.Ref.URL, span.Start, span.End),
			Text:   text,
			Start:  span.Start,
			End:    span.End,
			Page:   doc.PageAt(span.Start),
			Source: doc.Ref,
		})
	}

	return chunks, nil
}

func generateChunkID(url string, start, end int) string {
	data := fmt.Sprintf("%s:%d-%d", url, start, end)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
