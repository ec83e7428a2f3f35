package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Source provides canonical copies of named documents.
type Source interface {
	Fetch(ctx context.Context, name string) (Document, error)
}

// HTTPSource reads documents from a static directory served over HTTP,
// e.g. http://host/data/products.json.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource builds a source rooted at baseURL. timeout bounds every request.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &HTTPSource{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// BaseURL returns the normalized root, always ending in a slash.
func (s *HTTPSource) BaseURL() string { return s.baseURL }

func (s *HTTPSource) Fetch(ctx context.Context, name string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+name, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", name, resp.StatusCode)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode %s: not a JSON object", name)
	}
	return doc, nil
}

// Probe checks that the source answers at all. Any HTTP response counts as reachable.
func (s *HTTPSource) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.baseURL, nil)
	if err != nil {
		return fmt.Errorf("build probe: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
