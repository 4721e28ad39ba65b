package integration

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"

	"aead.dev/minisign"
	"github.com/stretchr/testify/require"

	"github.com/joshuadavidthomas/dashtext/internal/config"
	"github.com/joshuadavidthomas/dashtext/internal/service/packager"
	"github.com/joshuadavidthomas/dashtext/internal/service/updater"
)

const (
	testPlatform    = "linux-x86_64"
	keyPassword     = "integration"
	archiveFilename = "dashtext.tar.gz"
)

// feed is a release feed served over HTTP from a directory the packager writes to.
type feed struct {
	root      string
	keyPath   string
	publicKey string
	server    *httptest.Server
	downloads atomic.Int32
}

func newFeed(t *testing.T) *feed {
	t.Helper()

	f := &feed{root: t.TempDir()}

	// Generate a signing key pair; the secret half is stored encrypted.
	pub, priv, err := minisign.GenerateKey(rand.Reader)
	require.NoError(t, err)

	encrypted, err := minisign.EncryptKey(keyPassword, priv)
	require.NoError(t, err)

	f.keyPath = filepath.Join(t.TempDir(), "minisign.key")
	require.NoError(t, os.WriteFile(f.keyPath, encrypted, 0o600))

	text, err := pub.MarshalText()
	require.NoError(t, err)

	f.publicKey = string(text)

	files := http.FileServer(http.Dir(f.root))
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".tar.gz") {
			f.downloads.Add(1)
		}

		files.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)

	return f
}

func (f *feed) manifestURL() string {
	return f.server.URL + "/" + packager.DefaultManifestFilename
}

func (f *feed) archivePath(version string) string {
	return filepath.Join(f.root, version, archiveFilename)
}

// publish packs binary as the dashtext executable of version and signs it into the manifest.
func (f *feed) publish(t *testing.T, version, binary string) {
	t.Helper()
	f.publishFor(t, version, testPlatform, binary)
}

func (f *feed) publishFor(t *testing.T, version, platform, binary string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(f.archivePath(version)), 0o755))
	require.NoError(t, os.WriteFile(f.archivePath(version), tarGz(t, "dashtext-"+version+"/dashtext", binary), 0o600))

	err := packager.Run(context.Background(), &packager.Options{
		ArchivePath:  f.archivePath(version),
		Platform:     platform,
		URL:          f.server.URL + "/" + version + "/" + archiveFilename,
		Version:      version,
		Notes:        "Release " + version,
		KeyPath:      f.keyPath,
		KeyPassword:  keyPassword,
		PublicKey:    f.publicKey,
		ManifestPath: filepath.Join(f.root, packager.DefaultManifestFilename),
	})
	require.NoError(t, err)
}

// replaceArchive swaps the published archive for other bytes without re-signing.
func (f *feed) replaceArchive(t *testing.T, version, binary string) {
	t.Helper()

	require.NoError(t, os.WriteFile(f.archivePath(version), tarGz(t, "dashtext", binary), 0o600))
}

// installation is a live dashtext executable with its settings file.
type installation struct {
	dir          string
	live         string
	settingsPath string
	tempRoot     string
}

func newInstallation(t *testing.T, f *feed, version string) *installation {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake executables are shell scripts")
	}

	in := &installation{
		dir:          t.TempDir(),
		settingsPath: filepath.Join(t.TempDir(), config.DefaultConfigFilename),
		tempRoot:     t.TempDir(),
	}
	in.live = filepath.Join(in.dir, "dashtext")

	require.NoError(t, os.WriteFile(in.live, []byte(script(version)), 0o755))

	require.NoError(t, config.Save(in.settingsPath, &config.Config{
		ManifestURL:           f.manifestURL(),
		AllowManifestOverride: true,
		Platform:              testPlatform,
		LockPath:              filepath.Join(t.TempDir(), "update.lock"),
		TempDir:               in.tempRoot,
		LogLevel:              "debug",
	}))

	return in
}

// coordinator builds an updater the way the CLI does, from the settings file.
func (in *installation) coordinator(t *testing.T, f *feed, current string) *updater.Coordinator {
	t.Helper()

	cfg, err := config.Load(in.settingsPath)
	require.NoError(t, err)

	opts := updater.OptionsFromConfig(cfg)
	opts.PublicKey = f.publicKey
	opts.CurrentVersion = current
	opts.ExecutablePath = in.live
	opts.BinaryName = "dashtext"

	c, err := updater.New(opts)
	require.NoError(t, err)

	return c
}

// version runs the live executable the way the post-install probe does.
func (in *installation) version(t *testing.T) string {
	t.Helper()

	out, err := exec.Command("/bin/sh", in.live, "--version").Output()
	require.NoError(t, err)

	return strings.TrimSpace(string(out))
}

func (in *installation) requireClean(t *testing.T) {
	t.Helper()

	for _, leftover := range []string{in.live + ".old", in.live + ".bad", filepath.Join(in.dir, ".dashtext.new")} {
		_, err := os.Stat(leftover)
		require.ErrorIs(t, err, os.ErrNotExist, leftover)
	}

	entries, err := os.ReadDir(in.tempRoot)
	require.NoError(t, err)
	require.Empty(t, entries, "session directories must be removed")
}

func script(version string) string {
	return "#!/bin/sh\necho 'version: " + version + "'\n"
}

func tarGz(t *testing.T, name, body string) []byte {
	t.Helper()

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     name,
		Mode:     0o755,
		Size:     int64(len(body)),
		Typeflag: tar.TypeReg,
	}))

	_, err := tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	return buf.Bytes()
}
