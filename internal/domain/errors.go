package domain

import "errors"

// Request-fatal errors abort the whole batch.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrFetch             = errors.New("document fetch failed")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrDocumentParse     = errors.New("document could not be parsed")
	ErrEmbeddingService  = errors.New("embedding service unavailable")
)

// ErrLexicalIndex is recoverable: retrieval degrades to semantic-only.
var ErrLexicalIndex = errors.New("lexical index unavailable")

// Question-scoped errors become a fallback answer for that question only.
var (
	ErrGeneration        = errors.New("answer generation failed")
	ErrGenerationTimeout = errors.New("answer generation timed out")
)

// IsRequestFatal reports whether err must abort the whole request.
func IsRequestFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrFetch),
		errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrDocumentParse),
		errors.Is(err, ErrEmbeddingService):
		return true
	default:
		return false
	}
}
