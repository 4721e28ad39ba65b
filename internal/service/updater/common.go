package updater

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/mitchellh/go-ps"

	"github.com/joshuadavidthomas/dashtext/internal/logger"
	"github.com/joshuadavidthomas/dashtext/internal/version"
)

const (
	// DefaultFileMode is applied to every installed executable.
	DefaultFileMode os.FileMode = 0o755

	// baseExecutable is the executable name; platform helpers append the extension.
	baseExecutable = "dashtext"

	// appDataDirectory holds the machine-wide update lock.
	appDataDirectory = "dashtext"

	// lockFilename is the advisory lock file inside appDataDirectory.
	lockFilename = "update.lock"

	// sessionPrefix names per-attempt temporary directories.
	sessionPrefix = "dashtext-update-"

	// archiveFilename is the downloaded artifact inside a session directory.
	archiveFilename = "update.tar.gz"

	// extractDirectory receives the unpacked archive inside a session directory.
	extractDirectory = "extracted"

	// backupSuffix marks the previous binary kept during an install.
	backupSuffix = ".old"

	// rejectedSuffix marks a new binary being moved aside during rollback.
	rejectedSuffix = ".bad"

	// versionProbeFlag is passed to a freshly installed binary to prove it starts.
	versionProbeFlag = "--version"

	// versionWaitDelay bounds how long the version check waits for output
	// pipes after the process exits or is killed.
	versionWaitDelay = 2 * time.Second

	// writeTestPattern names the scratch file used to test directory writability.
	writeTestPattern = ".dashtext-update-test-*"
)

// CurrentVersion returns the version of the running build.
func CurrentVersion() string {
	return version.Short()
}

// ExecutableName returns the executable filename for this platform.
func ExecutableName() string {
	return baseExecutable + getExecutableExtension()
}

// PlatformKey returns the "<os>-<arch>" key this build looks up in the manifest.
func PlatformKey() string {
	return platformKey(runtime.GOOS, runtime.GOARCH)
}

// platformKey maps Go's architecture names onto the ones release feeds use.
func platformKey(goos, goarch string) string {
	arch := goarch

	switch goarch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	case "arm":
		arch = "armv7"
	}

	return goos + "-" + arch
}

// CurrentExecutable returns the resolved path of the running executable.
func CurrentExecutable() (string, error) {
	path, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("%w: get executable path: %w", ErrFilesystem, err)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("%w: resolve symlinks: %w", ErrFilesystem, err)
	}

	return resolved, nil
}

// DefaultLockPath returns the lock file location in the local app-data
// directory, creating the directory if needed.
func DefaultLockPath() (string, error) {
	path, err := xdg.DataFile(filepath.Join(appDataDirectory, lockFilename))
	if err != nil {
		return "", fmt.Errorf("%w: resolve app data directory: %w", ErrFilesystem, err)
	}

	return path, nil
}

// FileSHA256 returns the lowercase hex SHA-256 digest of the file at path.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}

	defer func() {
		_ = f.Close()
	}()

	hasher := sha256.New()
	if _, err = io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("calculate checksum: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// logPeerProcesses reports other running copies of the executable. It is
// purely diagnostic: the lock decides exclusivity.
func logPeerProcesses(ctx context.Context, executable string) {
	peers, err := peerProcesses(executable)
	if err != nil {
		logger.DebugKV(ctx, "Could not list processes", "error", err)
		return
	}

	if len(peers) > 0 {
		logger.WarnKV(ctx, "Other instances are running", "executable", executable, "pids", peers)
	}
}

// peerProcesses lists process ids with the given executable name, excluding this process.
func peerProcesses(executable string) ([]int, error) {
	processList, err := ps.Processes()
	if err != nil {
		return nil, err
	}

	thisProcessID := os.Getpid()

	var peers []int

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != executable {
			continue
		}

		peers = append(peers, process.Pid())
	}

	return peers, nil
}

// getExecutableExtension returns ".exe" on Windows and "" elsewhere.
func getExecutableExtension() string {
	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		return ".exe"
	}

	return ""
}
