package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"addonplan/internal/models"
)

// DefaultFetchTimeout bounds a single registry round trip
const DefaultFetchTimeout = 5 * time.Second

// maxRegistryBytes caps the size of a remote registry payload
const maxRegistryBytes = 8 << 20

// FetchResult is the outcome of one conditional registry fetch
type FetchResult struct {
	NotModified bool
	Body        []byte
	ETag        string
}

// RegistryFetcher performs conditional GETs against a remote registry endpoint
type RegistryFetcher struct {
	httpClient *http.Client
	userAgent  string
}

// NewRegistryFetcher creates a fetcher with the given timeout (DefaultFetchTimeout when zero)
func NewRegistryFetcher(timeout time.Duration, userAgent string) *RegistryFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &RegistryFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
	}
}

// Fetch requests the registry, sending etag as a validator when non-empty.
// A fresh payload is only returned when it decodes as a registry.
func (f *RegistryFetcher) Fetch(ctx context.Context, registryURL, etag string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, registryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{NotModified: true, ETag: etag}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("registry endpoint returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRegistryBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var registry models.ToolRegistry
	if err := json.Unmarshal(body, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}

	return &FetchResult{Body: body, ETag: resp.Header.Get("ETag")}, nil
}
