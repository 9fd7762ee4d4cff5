package port

import (
	"context"

	"docqa/internal/domain"
)

// Fetched is the raw payload behind a document URL.
type Fetched struct {
	Body        []byte
	ContentType string
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Fetched, error)
}

// Loader turns raw bytes into ordered pages of plain text.
type Loader interface {
	Load(ctx context.Context, body []byte, format domain.Format) ([]domain.Page, error)
}
