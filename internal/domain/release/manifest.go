package release

import (
	"strings"
	"time"
)

// Manifest is the release description published at the feed URL (latest.json).
type Manifest struct {
	// Version is the semantic version of the published release.
	Version string `json:"version"`
	// Notes are optional human-readable release notes.
	Notes string `json:"notes,omitempty"`
	// PubDate is the optional RFC 3339 publish timestamp.
	PubDate string `json:"pub_date,omitempty"`
	// Platforms maps "<os>-<arch>" keys to their artifacts.
	Platforms map[string]Artifact `json:"platforms"`
}

// Artifact describes one platform build.
type Artifact struct {
	// URL is where the gzip-tar archive is downloaded from.
	URL string `json:"url"`
	// SHA256 is the hex digest of the archive.
	SHA256 string `json:"sha256"`
	// Signature is the detached minisign signature over the archive.
	// An artifact without one is never installed.
	Signature string `json:"signature,omitempty"`
}

// Artifact returns the build for platform, if published.
func (m *Manifest) Artifact(platform string) (Artifact, bool) {
	if m == nil || m.Platforms == nil {
		return Artifact{}, false
	}

	a, ok := m.Platforms[platform]

	return a, ok
}

// PublishedAt parses PubDate. The second result is false when absent or malformed.
func (m *Manifest) PublishedAt() (time.Time, bool) {
	if m == nil || strings.TrimSpace(m.PubDate) == "" {
		return time.Time{}, false
	}

	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(m.PubDate))
	if err != nil {
		return time.Time{}, false
	}

	return ts, true
}

// IsSigned reports whether the artifact carries a signature.
func (a Artifact) IsSigned() bool {
	return strings.TrimSpace(a.Signature) != ""
}
