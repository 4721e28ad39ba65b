package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/joshuadavidthomas/dashtext/internal/domain/release"
	"github.com/joshuadavidthomas/dashtext/internal/logger"
	"github.com/joshuadavidthomas/dashtext/internal/version"
)

// ManifestMaxBytes caps the manifest body.
const ManifestMaxBytes = 1 << 20

// Fetcher retrieves the release manifest from a fixed URL.
type Fetcher struct {
	url    string
	client *http.Client
}

// NewFetcher returns a Fetcher for url. A nil client means http.DefaultClient.
func NewFetcher(url string, client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}

	return &Fetcher{
		url:    url,
		client: client,
	}
}

// URL returns the manifest location.
func (f *Fetcher) URL() string {
	return f.url
}

// Fetch downloads and decodes the manifest. It does not retry.
func (f *Fetcher) Fetch(ctx context.Context) (*release.Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: build manifest request: %w", ErrNetwork, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	logger.DebugKV(ctx, "Fetching manifest", "url", f.url)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch manifest: %w", ErrNetwork, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %s returned %s", ErrBadStatus, f.url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, ManifestMaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %w", ErrNetwork, err)
	}

	if len(body) > ManifestMaxBytes {
		return nil, fmt.Errorf("%w: manifest exceeds %d bytes", ErrManifest, ManifestMaxBytes)
	}

	return decodeManifest(body)
}

func decodeManifest(body []byte) (*release.Manifest, error) {
	var m release.Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %w", ErrManifest, err)
	}

	m.Version = strings.TrimSpace(m.Version)
	if m.Version == "" {
		return nil, fmt.Errorf("%w: manifest has no version", ErrManifest)
	}

	if len(m.Platforms) == 0 {
		return nil, fmt.Errorf("%w: manifest lists no platforms", ErrManifest)
	}

	return &m, nil
}
