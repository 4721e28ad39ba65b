package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joshuadavidthomas/dashtext/internal/service/packager"
	"github.com/joshuadavidthomas/dashtext/internal/version"
)

// defaultPasswordEnv holds the signing key password unless overridden.
const defaultPasswordEnv = "DASHTEXT_SIGNING_KEY_PASSWORD"

var (
	options = packager.Options{
		ManifestPath: packager.DefaultManifestFilename,
	}

	// passwordEnv names the environment variable that holds the key password.
	passwordEnv string

	// rootCmd represents the base command for publishing a release archive.
	rootCmd = &cobra.Command{
		Use:   "dashtext-packager",
		Short: "Sign a release archive and add it to the update manifest",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			opts := options
			opts.KeyPassword = os.Getenv(passwordEnv)

			return packager.Run(ctx, &opts)
		},
	}
)

// Execute runs the dashtext-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersion(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&options.ArchivePath, "archive", "", "gzip-tar archive to publish")
	flags.StringVar(&options.Platform, "platform", "", "manifest platform key, e.g. linux-x86_64")
	flags.StringVar(&options.URL, "url", "", "download url of the archive")
	flags.StringVar(&options.Version, "release-version", "", "release version")
	flags.StringVar(&options.Notes, "notes", "", "release notes")
	flags.StringVar(&options.KeyPath, "key", "", "minisign secret key file")
	flags.StringVar(&passwordEnv, "key-password-env", defaultPasswordEnv, "environment variable holding the key password")
	flags.StringVar(&options.PublicKey, "public-key", version.UpdatePublicKey, "public key the signature must verify against; empty to skip")
	flags.StringVar(&options.ManifestPath, "manifest", packager.DefaultManifestFilename, "manifest file to create or update")

	for _, name := range []string{"archive", "platform", "url", "release-version", "key"} {
		_ = rootCmd.MarkFlagRequired(name)
	}
}
