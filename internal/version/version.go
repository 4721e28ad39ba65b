package version

import "fmt"

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"

	// ManifestURL is where the release manifest is published.
	// Release builds pin it via -ldflags "-X .../internal/version.ManifestURL=...".
	ManifestURL = "https://github.com/joshuadavidthomas/dashtext/releases/latest/download/latest.json"

	// UpdatePublicKey is the minisign public key every update must be signed with.
	// It is compiled into the binary and never fetched remotely.
	UpdatePublicKey = "RWShIod1Hid9Pszyt9kgjV0pvnWmO2lxd2BLvadhh2JfOM67NmdKDhw/"
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}

// UserAgent is sent with every request to the release feed.
func UserAgent() string {
	return "dashtext-updater/" + Version
}
