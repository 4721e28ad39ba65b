package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"aead.dev/minisign"

	"github.com/joshuadavidthomas/dashtext/internal/domain/release"
	"github.com/joshuadavidthomas/dashtext/internal/logger"
	"github.com/joshuadavidthomas/dashtext/internal/repository/manifest"
	"github.com/joshuadavidthomas/dashtext/internal/semver"
	"github.com/joshuadavidthomas/dashtext/internal/service/updater"
)

// DefaultManifestFilename is the manifest file name the updater fetches.
const DefaultManifestFilename = "latest.json"

var (
	errMissingArchive  = errors.New("archive path is not set")
	errMissingURL      = errors.New("download url is not set")
	errMissingKey      = errors.New("signing key path is not set")
	errMissingPlatform = errors.New("platform is not set")
)

// Options are inputs accepted by the packager entry point.
type Options struct {
	// ArchivePath is the gzip-tar archive to publish.
	ArchivePath string
	// Platform is the manifest key, e.g. linux-x86_64.
	Platform string
	// URL is where clients download the archive from.
	URL string
	// Version is the release version. It must be semantic.
	Version string
	// Notes are optional release notes.
	Notes string
	// KeyPath is the encrypted minisign secret key file.
	KeyPath string
	// KeyPassword decrypts the secret key.
	KeyPassword string
	// PublicKey, when set, is used to check the fresh signature before publishing.
	PublicKey string
	// ManifestPath is the manifest to create or update.
	ManifestPath string
	// Now stamps pub_date; nil means time.Now.
	Now func() time.Time
}

// packager holds the state of a single publish run.
type packager struct {
	opts     *Options
	key      minisign.PrivateKey
	repo     manifest.Repository
	manifest *release.Manifest
}

// Run signs the archive and writes the merged manifest.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "dashtext-packager")

	if err := validate(opts); err != nil {
		return err
	}

	key, err := minisign.PrivateKeyFromFile(opts.KeyPassword, opts.KeyPath)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}

	repo := manifest.NewFileRepository(opts.ManifestPath)

	current, err := repo.Load(ctx)
	if errors.Is(err, manifest.ErrNotFound) {
		logger.InfoKV(ctx, "Creating a new manifest", "path", repo.Path())

		current, err = &release.Manifest{}, nil
	}

	if err != nil {
		return err
	}

	p := &packager{
		opts:     opts,
		key:      key,
		repo:     repo,
		manifest: current,
	}

	if err = p.Run(ctx); err != nil {
		return fmt.Errorf("packager failed: %w", err)
	}

	logger.Info(ctx, "Packager completed successfully")

	return nil
}

// Run checks, signs and merges the archive, then saves the manifest.
func (p *packager) Run(ctx context.Context) error {
	logger.InfoKV(ctx, "Checking archive layout", "archive", p.opts.ArchivePath)

	if err := checkArchive(p.opts.ArchivePath, executableFor(p.opts.Platform)); err != nil {
		return err
	}

	artifact, err := SignArchive(p.opts.ArchivePath, p.opts.URL, p.key)
	if err != nil {
		return err
	}

	if p.opts.PublicKey != "" {
		if err = verifyArtifact(p.opts.ArchivePath, p.opts.PublicKey, artifact); err != nil {
			return err
		}
	}

	now := time.Now
	if p.opts.Now != nil {
		now = p.opts.Now
	}

	replaced := Merge(p.manifest, p.opts.Version, p.opts.Notes, now(), p.opts.Platform, artifact)
	if replaced {
		logger.InfoKV(ctx, "Manifest held an older release, starting a new one", "version", p.opts.Version)
	}

	logger.InfoKV(ctx, "Saving manifest", "path", p.opts.ManifestPath, "platform", p.opts.Platform)

	if err = p.repo.Save(ctx, p.manifest); err != nil {
		return err
	}

	p.printNextSteps(ctx)

	return nil
}

// SignArchive hashes and signs the archive and returns its manifest entry.
func SignArchive(archivePath, url string, key minisign.PrivateKey) (release.Artifact, error) {
	data, err := os.ReadFile(filepath.Clean(archivePath))
	if err != nil {
		return release.Artifact{}, fmt.Errorf("read archive: %w", err)
	}

	checksum, err := updater.FileSHA256(archivePath)
	if err != nil {
		return release.Artifact{}, err
	}

	return release.Artifact{
		URL:       url,
		SHA256:    checksum,
		Signature: string(minisign.Sign(key, data)),
	}, nil
}

// Merge records artifact for platform. A manifest for a different version is
// reset first, since its other platform entries belong to an older release.
// It reports whether that reset happened.
func Merge(
	m *release.Manifest,
	version, notes string,
	published time.Time,
	platform string,
	artifact release.Artifact,
) bool {
	reset := m.Version != "" && m.Version != version
	if reset || m.Platforms == nil {
		m.Platforms = make(map[string]release.Artifact, 1)
	}

	m.Version = version
	m.PubDate = published.UTC().Format(time.RFC3339)
	m.Platforms[platform] = artifact

	if notes != "" {
		m.Notes = notes
	} else if reset {
		m.Notes = ""
	}

	return reset
}

// checkArchive extracts the archive into a scratch directory to prove the
// updater will find the executable in it.
func checkArchive(archivePath, executable string) error {
	scratch, err := os.MkdirTemp("", "dashtext-packager-")
	if err != nil {
		return err
	}

	defer func() {
		_ = os.RemoveAll(scratch)
	}()

	if _, err = updater.Extract(archivePath, scratch, executable); err != nil {
		return fmt.Errorf("check archive: %w", err)
	}

	return nil
}

// executableFor returns the executable name the updater on platform looks for.
func executableFor(platform string) string {
	if strings.HasPrefix(platform, "windows-") {
		return "dashtext.exe"
	}

	return "dashtext"
}

func verifyArtifact(archivePath, publicKey string, artifact release.Artifact) error {
	verifier, err := updater.NewVerifier(publicKey)
	if err != nil {
		return err
	}

	if err = verifier.Verify(archivePath, artifact.Signature, artifact.SHA256); err != nil {
		return fmt.Errorf("signature does not match the public key: %w", err)
	}

	return nil
}

func validate(opts *Options) error {
	switch {
	case opts == nil || strings.TrimSpace(opts.ArchivePath) == "":
		return errMissingArchive
	case strings.TrimSpace(opts.URL) == "":
		return errMissingURL
	case strings.TrimSpace(opts.KeyPath) == "":
		return errMissingKey
	case strings.TrimSpace(opts.Platform) == "":
		return errMissingPlatform
	}

	if _, err := semver.Parse(opts.Version); err != nil {
		return err
	}

	if opts.ManifestPath == "" {
		opts.ManifestPath = DefaultManifestFilename
	}

	return nil
}

// printNextSteps logs what to upload once the manifest is written.
func (p *packager) printNextSteps(ctx context.Context) {
	platforms := make([]string, 0, len(p.manifest.Platforms))
	for platform := range p.manifest.Platforms {
		platforms = append(platforms, platform)
	}

	sort.Strings(platforms)

	var builder strings.Builder

	builder.WriteString("Upload the following files:\n")
	builder.WriteString(p.opts.ArchivePath)
	builder.WriteString(" -> ")
	builder.WriteString(p.opts.URL)
	builder.WriteString(",\n")
	builder.WriteString(p.opts.ManifestPath)
	builder.WriteString("\nRelease ")
	builder.WriteString(p.manifest.Version)
	builder.WriteString(" now lists: ")
	builder.WriteString(strings.Join(platforms, ", "))

	logger.Info(ctx, builder.String())
}
