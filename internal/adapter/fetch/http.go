package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// HTTPFetcher downloads documents over http(s) and reads file:// URLs and
// bare paths from the local disk.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		maxBytes: maxBytes,
	}
}

// Fetch implements port.Fetcher. Every failure wraps domain.ErrFetch.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*port.Fetched, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse url: %v", domain.ErrFetch, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return f.fetchHTTP(ctx, rawURL)
	case "file":
		return f.fetchFile(u.Path)
	case "":
		return f.fetchFile(rawURL)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", domain.ErrFetch, u.Scheme)
	}
}

func (f *HTTPFetcher) fetchHTTP(ctx context.Context, rawURL string) (*port.Fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrFetch, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d", domain.ErrFetch, redact(rawURL), resp.StatusCode)
	}

	body, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, err
	}

	return &port.Fetched{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func (f *HTTPFetcher) fetchFile(path string) (*port.Fetched, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	defer file.Close()

	body, err := f.readLimited(file)
	if err != nil {
		return nil, err
	}
	return &port.Fetched{Body: body}, nil
}

func (f *HTTPFetcher) readLimited(r io.Reader) ([]byte, error) {
	if f.maxBytes <= 0 {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", domain.ErrFetch, err)
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrFetch, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", domain.ErrFetch, f.maxBytes)
	}
	return body, nil
}

// redact drops the query string, which often carries signed-URL tokens.
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
