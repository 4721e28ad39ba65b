package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AttachCobraVersion wires build info into the root command twice:
// as the `--version` flag (the probe the updater runs against a freshly
// installed binary) and as a `version` subcommand.
func AttachCobraVersion(root *cobra.Command) {
	root.Version = Short()
	root.SetVersionTemplate(Full() + "\n")

	// Subcommand: `version`.
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Long:  "Print detailed version information including build metadata, commit hash, and build timestamp. This information is injected during the build process from Git tags and repository state.",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Full())
		},
	})
}
