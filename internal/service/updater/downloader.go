package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joshuadavidthomas/dashtext/internal/domain/release"
	"github.com/joshuadavidthomas/dashtext/internal/logger"
	"github.com/joshuadavidthomas/dashtext/internal/version"
)

// DefaultChunkSize is the read buffer used while streaming an artifact.
const DefaultChunkSize = 32 * 1024

// ProgressFunc receives download progress. It is called from the goroutine
// running the install and must not block for long.
type ProgressFunc func(release.Progress)

// Downloader streams an artifact to disk without holding it in memory.
type Downloader struct {
	client    *http.Client
	progress  ProgressFunc
	chunkSize int
}

// NewDownloader returns a Downloader. Either argument may be nil.
func NewDownloader(client *http.Client, progress ProgressFunc) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}

	return &Downloader{
		client:    client,
		progress:  progress,
		chunkSize: DefaultChunkSize,
	}
}

// Download writes the body at url to dest and returns the number of bytes written.
// The file is synced before it is closed.
func (d *Downloader) Download(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("%w: build download request: %w", ErrNetwork, err)
	}

	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: download %s: %w", ErrNetwork, url, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return 0, fmt.Errorf("%w: %s returned %s", ErrBadStatus, url, resp.Status)
	}

	f, err := os.OpenFile(filepath.Clean(dest), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %w", ErrFilesystem, dest, err)
	}

	total := resp.ContentLength
	logger.InfoKV(ctx, "Downloading update", "url", url, "bytes", total)

	downloaded, err := d.copy(f, resp.Body, total)
	if err != nil {
		_ = f.Close()
		return downloaded, err
	}

	if err = f.Sync(); err != nil {
		_ = f.Close()
		return downloaded, fmt.Errorf("%w: sync %s: %w", ErrFilesystem, dest, err)
	}

	if err = f.Close(); err != nil {
		return downloaded, fmt.Errorf("%w: close %s: %w", ErrFilesystem, dest, err)
	}

	if total >= 0 && downloaded != total {
		return downloaded, fmt.Errorf("%w: short download: got %d of %d bytes", ErrNetwork, downloaded, total)
	}

	return downloaded, nil
}

func (d *Downloader) copy(dst io.Writer, src io.Reader, total int64) (int64, error) {
	buf := make([]byte, d.chunkSize)

	var downloaded int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return downloaded, fmt.Errorf("%w: write artifact: %w", ErrFilesystem, err)
			}

			downloaded += int64(n)
			d.emit(release.NewProgress(downloaded, total))
		}

		if errors.Is(readErr, io.EOF) {
			return downloaded, nil
		}

		if readErr != nil {
			return downloaded, fmt.Errorf("%w: read artifact: %w", ErrNetwork, readErr)
		}
	}
}

func (d *Downloader) emit(p release.Progress) {
	if d.progress != nil {
		d.progress(p)
	}
}
