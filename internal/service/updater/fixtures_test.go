package updater

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"aead.dev/minisign"
	"github.com/stretchr/testify/require"

	"github.com/joshuadavidthomas/dashtext/internal/domain/release"
)

const testPlatform = "test-x86_64"

// archiveEntry is one member of a fixture archive.
type archiveEntry struct {
	name     string
	body     string
	mode     int64
	typeflag byte
	linkname string
}

// keyPair is a fixture minisign key pair with the public half in text form.
type keyPair struct {
	public  string
	private minisign.PrivateKey
}

func newKeyPair(t *testing.T) keyPair {
	t.Helper()

	pub, priv, err := minisign.GenerateKey(rand.Reader)
	require.NoError(t, err)

	text, err := pub.MarshalText()
	require.NoError(t, err)

	return keyPair{public: string(text), private: priv}
}

func (k keyPair) sign(data []byte) string {
	return string(minisign.Sign(k.private, data))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func makeTarGz(t *testing.T, entries ...archiveEntry) []byte {
	t.Helper()

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		typeflag := e.typeflag
		if typeflag == 0 {
			typeflag = tar.TypeReg
		}

		mode := e.mode
		if mode == 0 {
			mode = 0o755
		}

		header := &tar.Header{
			Name:     e.name,
			Mode:     mode,
			Typeflag: typeflag,
			Linkname: e.linkname,
		}

		if typeflag == tar.TypeReg {
			header.Size = int64(len(e.body))
		}

		require.NoError(t, tw.WriteHeader(header))

		if typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	return buf.Bytes()
}

// versionScript is a fake executable that prints a version and exits with code.
func versionScript(ver string, code int) string {
	if code != 0 {
		return "#!/bin/sh\necho 'broken build' >&2\nexit " + strconv.Itoa(code) + "\n"
	}

	return "#!/bin/sh\necho 'version: " + ver + "'\n"
}

func writeExecutable(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
}

func skipWithoutShell(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake executables are shell scripts")
	}
}

// releaseServer serves a manifest and one archive and counts artifact hits.
type releaseServer struct {
	*httptest.Server

	manifest     release.Manifest
	archive      []byte
	artifactHits atomic.Int32
	manifestHits atomic.Int32

	// When hold is set, the first manifest request closes seen and then
	// waits for hold to be closed.
	hold     chan struct{}
	seen     chan struct{}
	seenOnce sync.Once
}

// holdFirstManifest makes the first manifest request block until the
// returned release function is called. The returned channel closes once
// that request has arrived.
func (rs *releaseServer) holdFirstManifest() (<-chan struct{}, func()) {
	rs.hold = make(chan struct{})
	rs.seen = make(chan struct{})

	return rs.seen, func() { close(rs.hold) }
}

func newReleaseServer(t *testing.T, manifest release.Manifest, archive []byte) *releaseServer {
	t.Helper()

	rs := &releaseServer{manifest: manifest, archive: archive}

	mux := http.NewServeMux()
	mux.HandleFunc("/latest.json", func(w http.ResponseWriter, r *http.Request) {
		rs.manifestHits.Add(1)

		if rs.hold != nil {
			first := false
			rs.seenOnce.Do(func() {
				first = true
				close(rs.seen)
			})

			if first {
				<-rs.hold
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rs.manifest)
	})
	mux.HandleFunc("/download/dashtext.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		rs.artifactHits.Add(1)
		w.Header().Set("Content-Length", strconv.Itoa(len(rs.archive)))
		_, _ = w.Write(rs.archive)
	})

	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)

	return rs
}

func (rs *releaseServer) manifestURL() string {
	return rs.URL + "/latest.json"
}

func (rs *releaseServer) artifactURL() string {
	return rs.URL + "/download/dashtext.tar.gz"
}

// signedRelease builds a manifest for ver whose test platform entry points at
// the server's archive URL, signed with keys.
func signedRelease(keys keyPair, ver string, archive []byte) release.Manifest {
	return release.Manifest{
		Version: ver,
		Notes:   "Fixes",
		Platforms: map[string]release.Artifact{
			testPlatform: {
				SHA256:    sha256Hex(archive),
				Signature: keys.sign(archive),
			},
		},
	}
}

// installFixture is a live executable plus a coordinator wired to a release server.
type installFixture struct {
	dir       string
	live      string
	tempRoot  string
	lockPath  string
	server    *releaseServer
	keys      keyPair
	progress  []release.Progress
	installer *Coordinator
}

func newInstallFixture(t *testing.T, current, latest string, newBinary string) *installFixture {
	t.Helper()

	keys := newKeyPair(t)
	archive := makeTarGz(t, archiveEntry{name: "dashtext", body: newBinary})

	return newInstallFixtureWith(t, keys, current, signedRelease(keys, latest, archive), archive)
}

func newInstallFixtureWith(
	t *testing.T,
	keys keyPair,
	current string,
	manifest release.Manifest,
	archive []byte,
) *installFixture {
	t.Helper()

	f := &installFixture{
		dir:      t.TempDir(),
		tempRoot: t.TempDir(),
		keys:     keys,
	}
	f.live = filepath.Join(f.dir, "dashtext")
	f.lockPath = filepath.Join(t.TempDir(), "update.lock")

	writeExecutable(t, f.live, versionScript(current, 0))

	f.server = newReleaseServer(t, manifest, archive)

	for key, artifact := range f.server.manifest.Platforms {
		if artifact.URL == "" {
			artifact.URL = f.server.artifactURL()
			f.server.manifest.Platforms[key] = artifact
		}
	}

	installer, err := New(&Options{
		ManifestURL:    f.server.manifestURL(),
		PublicKey:      keys.public,
		CurrentVersion: current,
		ExecutablePath: f.live,
		BinaryName:     "dashtext",
		Platform:       testPlatform,
		LockPath:       f.lockPath,
		TempDir:        f.tempRoot,
		Progress: func(p release.Progress) {
			f.progress = append(f.progress, p)
		},
	})
	require.NoError(t, err)

	f.installer = installer

	return f
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

func requireNotExist(t *testing.T, path string) {
	t.Helper()

	_, err := os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
