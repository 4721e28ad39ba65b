package updater

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuadavidthomas/dashtext/internal/domain/release"
)

func TestDownloadReportsProgress(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("d"), 3*DefaultChunkSize+17)
	srv := serveBody(t, http.StatusOK, string(payload))

	var events []release.Progress

	dest := filepath.Join(t.TempDir(), "artifact")

	n, err := NewDownloader(srv.Client(), func(p release.Progress) {
		events = append(events, p)
	}).Download(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), n)
	require.Equal(t, string(payload), readFile(t, dest))

	require.NotEmpty(t, events)

	for i := 1; i < len(events); i++ {
		require.GreaterOrEqual(t, events[i].Downloaded, events[i-1].Downloaded)
		require.GreaterOrEqual(t, events[i].Percent, events[i-1].Percent)
	}

	last := events[len(events)-1]
	require.Equal(t, int64(len(payload)), last.Downloaded)
	require.Equal(t, int64(len(payload)), last.Total)
	require.Equal(t, 100, last.Percent)
}

func TestDownloadUnknownLength(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("first"))
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("second"))
	}))
	t.Cleanup(srv.Close)

	var events []release.Progress

	_, err := NewDownloader(srv.Client(), func(p release.Progress) {
		events = append(events, p)
	}).Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "artifact"))
	require.NoError(t, err)
	require.NotEmpty(t, events)

	for _, p := range events {
		require.False(t, p.HasTotal())
		require.Equal(t, -1, p.Percent)
	}
}

func TestDownloadFailures(t *testing.T) {
	t.Parallel()

	t.Run("bad status", func(t *testing.T) {
		t.Parallel()

		srv := serveBody(t, http.StatusNotFound, "gone")
		dest := filepath.Join(t.TempDir(), "artifact")

		_, err := NewDownloader(srv.Client(), nil).Download(context.Background(), srv.URL, dest)
		require.ErrorIs(t, err, ErrNetwork)
		requireNotExist(t, dest)
	})

	t.Run("truncated body", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", strconv.Itoa(1000))
			_, _ = w.Write([]byte("short"))
		}))
		t.Cleanup(srv.Close)

		_, err := NewDownloader(srv.Client(), nil).
			Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "artifact"))
		require.ErrorIs(t, err, ErrNetwork)
	})

	t.Run("unwritable destination", func(t *testing.T) {
		t.Parallel()

		srv := serveBody(t, http.StatusOK, "data")
		dest := filepath.Join(t.TempDir(), "missing", "artifact")

		_, err := NewDownloader(srv.Client(), nil).Download(context.Background(), srv.URL, dest)
		require.ErrorIs(t, err, ErrFilesystem)

		_, statErr := os.Stat(filepath.Dir(dest))
		require.ErrorIs(t, statErr, os.ErrNotExist)
	})
}
