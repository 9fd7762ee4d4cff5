package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentPageAt(t *testing.T) {
	doc := Document{Pages: []PageSpan{{Number: 1, Start: 0}, {Number: 2, Start: 100}, {Number: 3, Start: 250}}}

	assert.Equal(t, 1, doc.PageAt(0))
	assert.Equal(t, 1, doc.PageAt(99))
	assert.Equal(t, 2, doc.PageAt(100))
	assert.Equal(t, 3, doc.PageAt(10_000))
	assert.Equal(t, 0, Document{}.PageAt(5))
}

func TestIsRequestFatal(t *testing.T) {
	assert.True(t, IsRequestFatal(fmt.Errorf("download: %w", ErrFetch)))
	assert.True(t, IsRequestFatal(fmt.Errorf("ext %q: %w", "txt", ErrUnsupportedFormat)))
	assert.True(t, IsRequestFatal(fmt.Errorf("embed: %w", ErrEmbeddingService)))
	assert.False(t, IsRequestFatal(fmt.Errorf("bm25: %w", ErrLexicalIndex)))
	assert.False(t, IsRequestFatal(ErrGenerationTimeout))
	assert.False(t, IsRequestFatal(nil))
}
