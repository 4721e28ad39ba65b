package updater

import (
	"context"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	goupdate "github.com/doitdistributed/go-update"
	"github.com/google/uuid"

	"github.com/joshuadavidthomas/dashtext/internal/config"
	"github.com/joshuadavidthomas/dashtext/internal/domain/release"
	"github.com/joshuadavidthomas/dashtext/internal/logger"
	"github.com/joshuadavidthomas/dashtext/internal/semver"
	"github.com/joshuadavidthomas/dashtext/internal/version"
)

var errNoManifestURL = errors.New("manifest url is not set")

// stage is a non-terminal state of an install attempt.
type stage string

const (
	stageLocking     stage = "locking"
	stageChecking    stage = "checking"
	stageDownloading stage = "downloading"
	stageVerifying   stage = "verifying"
	stageExtracting  stage = "extracting"
	stageSwapping    stage = "swapping"
	stagePostVerify  stage = "post_verify"
)

// Options configure a Coordinator. Zero values select the defaults for the
// running executable.
type Options struct {
	ManifestURL    string        // Release feed location.
	PublicKey      string        // Pinned minisign public key.
	CurrentVersion string        // Version of the installed build.
	ExecutablePath string        // Live executable to replace.
	BinaryName     string        // Executable name inside the archive.
	Platform       string        // Manifest platform key.
	LockPath       string        // Machine-wide lock file.
	TempDir        string        // Parent of per-attempt session directories.
	HTTPClient     *http.Client  // Client for the manifest request.
	DownloadClient *http.Client  // Client for the artifact download.
	ProbeTimeout   time.Duration // Bound on the post-install version probe.
	Progress       ProgressFunc  // Receives download progress.
}

// OptionsFromConfig builds Options for the running build from settings.
func OptionsFromConfig(cfg *config.Config) *Options {
	return &Options{
		ManifestURL:    cfg.EffectiveManifestURL(),
		PublicKey:      version.UpdatePublicKey,
		CurrentVersion: version.Short(),
		Platform:       cfg.Platform,
		LockPath:       cfg.LockPath,
		TempDir:        cfg.TempDir,
		HTTPClient:     &http.Client{Timeout: cfg.HTTPTimeout},
		DownloadClient: &http.Client{Timeout: cfg.DownloadTimeout},
		ProbeTimeout:   cfg.ProbeTimeout,
	}
}

// Coordinator runs update checks and install attempts for one executable.
type Coordinator struct {
	currentVersion string
	executablePath string
	binaryName     string
	platform       string
	lockPath       string
	tempDir        string
	probeTimeout   time.Duration

	fetcher    *Fetcher
	downloader *Downloader
	verifier   *Verifier

	apply  func(io.Reader, goupdate.Options) error
	probe  func(ctx context.Context, path string) (string, error)
	rename func(oldPath, newPath string) error
	remove func(path string) error
}

// New validates opts and returns a Coordinator. An invalid pinned key is an error.
func New(opts *Options) (*Coordinator, error) {
	if opts == nil || strings.TrimSpace(opts.ManifestURL) == "" {
		return nil, errNoManifestURL
	}

	verifier, err := NewVerifier(opts.PublicKey)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		currentVersion: opts.CurrentVersion,
		executablePath: opts.ExecutablePath,
		binaryName:     opts.BinaryName,
		platform:       opts.Platform,
		lockPath:       opts.LockPath,
		tempDir:        opts.TempDir,
		probeTimeout:   opts.ProbeTimeout,
		fetcher:        NewFetcher(opts.ManifestURL, opts.HTTPClient),
		downloader:     NewDownloader(opts.DownloadClient, opts.Progress),
		verifier:       verifier,
		apply:          goupdate.Apply,
		rename:         os.Rename,
		remove:         os.Remove,
	}

	if c.currentVersion == "" {
		c.currentVersion = CurrentVersion()
	}

	if c.executablePath == "" {
		if c.executablePath, err = CurrentExecutable(); err != nil {
			return nil, err
		}
	}

	if c.binaryName == "" {
		c.binaryName = ExecutableName()
	}

	if c.platform == "" {
		c.platform = PlatformKey()
	}

	if c.probeTimeout <= 0 {
		c.probeTimeout = config.DefaultProbeTimeout
	}

	c.probe = c.runVersionCheck

	return c, nil
}

// CurrentVersion returns the version the coordinator compares against.
func (c *Coordinator) CurrentVersion() string {
	return c.currentVersion
}

// Check reports whether a newer release exists for this platform.
// It returns nil when the installed version is current. It never writes to disk.
func (c *Coordinator) Check(ctx context.Context) (*release.UpdateInfo, error) {
	ctx = logger.WithName(ctx, "updater")

	manifest, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	if !c.isNewer(ctx, manifest.Version) {
		logger.InfoKV(ctx, "No newer release", "current", c.currentVersion, "latest", manifest.Version)
		return nil, nil
	}

	artifact, ok := manifest.Artifact(c.platform)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPlatformBuild, c.platform)
	}

	return &release.UpdateInfo{
		CurrentVersion: c.currentVersion,
		NewVersion:     manifest.Version,
		ReleaseNotes:   manifest.Notes,
		DownloadURL:    artifact.URL,
		CanAutoInstall: c.CanAutoInstall(),
	}, nil
}

// CanAutoInstall reports whether the directory holding the executable is writable.
// The check uses its own uniquely named file so it never touches the staging
// copy of an install running in another process.
func (c *Coordinator) CanAutoInstall() bool {
	f, err := os.CreateTemp(filepath.Dir(c.executablePath), writeTestPattern)
	if err != nil {
		return false
	}

	name := f.Name()
	_ = f.Close()

	return os.Remove(name) == nil
}

// Result carries the terminal result of an asynchronous install.
type Result struct {
	Outcome *release.Outcome
	Err     error
}

// Start runs Install on its own goroutine. The channel yields exactly one Result.
func (c *Coordinator) Start(ctx context.Context) <-chan Result {
	results := make(chan Result, 1)

	go func() {
		defer close(results)

		outcome, err := c.Install(ctx)
		results <- Result{Outcome: outcome, Err: err}
	}()

	return results
}

// Install performs one install attempt and always returns a resolved Outcome.
// The error is nil for committed and up-to-date outcomes.
func (c *Coordinator) Install(ctx context.Context) (*release.Outcome, error) {
	sessionID := uuid.NewString()
	ctx = logger.WithKV(logger.WithName(ctx, "updater"), "session", sessionID)

	outcome := &release.Outcome{
		SessionID:      sessionID,
		CurrentVersion: c.currentVersion,
	}

	c.enter(ctx, stageLocking)

	lockPath := c.lockPath
	if lockPath == "" {
		var err error
		if lockPath, err = DefaultLockPath(); err != nil {
			return c.abort(ctx, outcome, release.ReasonFailed, err)
		}
	}

	lock, err := AcquireLock(ctx, lockPath)
	if err != nil {
		return c.abort(ctx, outcome, release.ReasonFailed, err)
	}

	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Could not release update lock", "error", releaseErr)
		}
	}()

	c.enter(ctx, stageChecking)

	manifest, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return c.abort(ctx, outcome, release.ReasonFailed, err)
	}

	outcome.NewVersion = manifest.Version

	if !c.isNewer(ctx, manifest.Version) {
		outcome.State = release.StateAborted
		outcome.Reason = release.ReasonUpToDate
		logger.InfoKV(ctx, "Already up to date", "current", c.currentVersion, "latest", manifest.Version)

		return outcome, nil
	}

	artifact, ok := manifest.Artifact(c.platform)
	if !ok {
		return c.abort(ctx, outcome, release.ReasonFailed, fmt.Errorf("%w: %s", ErrNoPlatformBuild, c.platform))
	}

	if !artifact.IsSigned() {
		return c.abort(ctx, outcome, release.ReasonFailed, ErrUnsigned)
	}

	if !c.CanAutoInstall() {
		return c.abort(ctx, outcome, release.ReasonManualUpdateRequired,
			fmt.Errorf("%w: %s", ErrManualUpdateRequired, filepath.Dir(c.executablePath)))
	}

	sessionDir, err := os.MkdirTemp(c.tempDir, sessionPrefix+sessionID+"-")
	if err != nil {
		return c.abort(ctx, outcome, release.ReasonFailed,
			fmt.Errorf("%w: create session directory: %w", ErrFilesystem, err))
	}

	defer func() {
		if removeErr := os.RemoveAll(sessionDir); removeErr != nil {
			logger.WarnKV(ctx, "Could not remove session directory", "path", sessionDir, "error", removeErr)
		}
	}()

	newBinary, err := c.prepare(ctx, artifact, sessionDir)
	if err != nil {
		return c.abort(ctx, outcome, release.ReasonFailed, err)
	}

	// Past this point the live executable is touched; cancellation is ignored
	// so every path ends with a runnable binary in place.
	ctx = context.WithoutCancel(ctx)

	c.enter(ctx, stageSwapping)

	if err = c.swap(ctx, newBinary); err != nil {
		return c.abort(ctx, outcome, release.ReasonFailed, err)
	}

	c.enter(ctx, stagePostVerify)

	output, probeErr := c.probe(ctx, c.executablePath)
	if probeErr != nil {
		logger.ErrorKV(ctx, "New binary failed to start", "error", probeErr)

		if err = c.rollback(ctx); err != nil {
			return c.abort(ctx, outcome, release.ReasonFailed, fmt.Errorf("%w; %w", probeErr, err))
		}

		outcome.State = release.StateRolledBack
		outcome.Reason = release.ReasonRolledBack
		outcome.Err = probeErr
		logger.WarnKV(ctx, "Update rolled back", "state", outcome.State, "error", probeErr)

		return outcome, probeErr
	}

	if !strings.Contains(output, manifest.Version) {
		logger.WarnKV(ctx, "New binary reports an unexpected version", "expected", manifest.Version, "output", output)
	}

	if err = c.remove(c.backupPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Could not remove previous binary", "path", c.backupPath(), "error", err)
	}

	outcome.State = release.StateCommitted
	outcome.Reason = release.ReasonInstalled
	logger.InfoKV(ctx, "Update installed", "state", outcome.State, "version", manifest.Version)

	return outcome, nil
}

// prepare downloads, verifies and extracts the artifact into sessionDir and
// returns the path of the new executable.
func (c *Coordinator) prepare(ctx context.Context, artifact release.Artifact, sessionDir string) (string, error) {
	c.enter(ctx, stageDownloading)

	archivePath := filepath.Join(sessionDir, archiveFilename)
	if _, err := c.downloader.Download(ctx, artifact.URL, archivePath); err != nil {
		return "", err
	}

	c.enter(ctx, stageVerifying)

	if err := c.verifier.Verify(archivePath, artifact.Signature, artifact.SHA256); err != nil {
		return "", err
	}

	c.enter(ctx, stageExtracting)

	extractDir := filepath.Join(sessionDir, extractDirectory)
	if err := os.MkdirAll(extractDir, 0o700); err != nil {
		return "", fmt.Errorf("%w: create extraction directory: %w", ErrFilesystem, err)
	}

	return Extract(archivePath, extractDir, c.binaryName)
}

// swap installs newBinary over the live executable, keeping the previous one
// at backupPath. On failure the live executable is unchanged, or restored.
func (c *Coordinator) swap(ctx context.Context, newBinary string) error {
	if err := os.Chmod(newBinary, DefaultFileMode); err != nil {
		return fmt.Errorf("%w: mark new binary executable: %w", ErrFilesystem, err)
	}

	checksum, err := FileSHA256(newBinary)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFilesystem, err)
	}

	digest, err := hex.DecodeString(checksum)
	if err != nil {
		return fmt.Errorf("%w: decode checksum: %w", ErrFilesystem, err)
	}

	f, err := os.Open(filepath.Clean(newBinary))
	if err != nil {
		return fmt.Errorf("%w: open new binary: %w", ErrFilesystem, err)
	}

	defer func() {
		_ = f.Close()
	}()

	logger.InfoKV(ctx, "Replacing executable", "target", c.executablePath, "backup", c.backupPath())

	err = c.apply(f, goupdate.Options{
		TargetPath:  c.executablePath,
		TargetMode:  DefaultFileMode,
		Checksum:    digest,
		Hash:        crypto.SHA256,
		OldSavePath: c.backupPath(),
	})
	if err == nil {
		return nil
	}

	_ = c.remove(c.stagingPath())

	if rollbackErr := goupdate.RollbackError(err); rollbackErr != nil {
		logger.ErrorKV(ctx, "Restoring the previous binary failed",
			"target", c.executablePath, "backup", c.backupPath(), "error", rollbackErr)

		return fmt.Errorf("%w: install new binary: %w (previous binary kept at %s: %v)",
			ErrFilesystem, err, c.backupPath(), rollbackErr)
	}

	return fmt.Errorf("%w: install new binary: %w", ErrFilesystem, err)
}

// rollback moves the rejected binary aside and restores the previous one.
func (c *Coordinator) rollback(ctx context.Context) error {
	rejected := c.executablePath + rejectedSuffix
	_ = c.remove(rejected)

	if err := c.rename(c.executablePath, rejected); err != nil {
		logger.ErrorKV(ctx, "Could not move rejected binary aside",
			"target", c.executablePath, "backup", c.backupPath(), "error", err)

		return fmt.Errorf("%w: roll back: %w (previous binary kept at %s)", ErrFilesystem, err, c.backupPath())
	}

	if err := c.rename(c.backupPath(), c.executablePath); err != nil {
		logger.ErrorKV(ctx, "Could not restore previous binary",
			"target", c.executablePath, "backup", c.backupPath(), "error", err)

		if restoreErr := c.rename(rejected, c.executablePath); restoreErr != nil {
			logger.ErrorKV(ctx, "Could not put rejected binary back", "path", rejected, "error", restoreErr)
		}

		return fmt.Errorf("%w: roll back: %w (previous binary kept at %s)", ErrFilesystem, err, c.backupPath())
	}

	if err := c.remove(rejected); err != nil {
		logger.WarnKV(ctx, "Could not remove rejected binary", "path", rejected, "error", err)
	}

	return nil
}

// runVersionCheck runs the executable with --version and returns its output.
func (c *Coordinator) runVersionCheck(ctx context.Context, path string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, path, versionProbeFlag)
	cmd.WaitDelay = versionWaitDelay

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))

	if err != nil {
		return output, fmt.Errorf("%w: %s %s: %w (output: %q)", ErrProcess, path, versionProbeFlag, err, output)
	}

	logger.DebugKV(ctx, "Version probe succeeded", "output", output)

	return output, nil
}

func (c *Coordinator) isNewer(ctx context.Context, candidate string) bool {
	cmp, err := semver.Compare(candidate, c.currentVersion)
	if err != nil {
		logger.DebugKV(ctx, "Version comparison failed",
			"current", c.currentVersion, "candidate", candidate, "error", fmt.Errorf("%w: %w", ErrVersion, err))

		return false
	}

	return cmp > 0
}

func (c *Coordinator) enter(ctx context.Context, s stage) {
	logger.InfoKV(ctx, "Update stage", "stage", s)
}

func (c *Coordinator) abort(
	ctx context.Context,
	outcome *release.Outcome,
	reason release.Reason,
	err error,
) (*release.Outcome, error) {
	outcome.State = release.StateAborted
	outcome.Reason = reason
	outcome.Err = err

	logger.ErrorKV(ctx, "Update aborted", "reason", reason, "kind", Kind(err), "error", err)

	return outcome, err
}

func (c *Coordinator) backupPath() string {
	return c.executablePath + backupSuffix
}

// stagingPath is the sibling file go-update writes before renaming.
func (c *Coordinator) stagingPath() string {
	return filepath.Join(filepath.Dir(c.executablePath), "."+filepath.Base(c.executablePath)+".new")
}
