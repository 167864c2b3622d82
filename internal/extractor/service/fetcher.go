package service

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rizkirmdhn/vimeo-scraper/internal/common/config"
)

// Page is a fetched document
type Page struct {
	StatusCode int
	Body       []byte
}

// Fetcher retrieves the raw content of a page
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// HTTPFetcher fetches pages with a single GET request
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates a fetcher. A zero timeout leaves the client without one.
func NewHTTPFetcher(cfg *config.ExtractorConfig) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.TimeoutDuration(),
		},
		userAgent: cfg.UserAgent,
	}
}

// Fetch issues a GET and reads the whole body. Non-200 responses are returned, not treated as errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Page{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}
