// Package updater checks the release feed and replaces the running
// executable with a newer, verified build.
//
// An install attempt holds a machine-wide lock, downloads the platform
// archive into a private session directory, verifies its minisign signature
// against the pinned key and then its SHA-256 digest, extracts the new
// executable and swaps it in with directory-entry renames. The new binary
// must answer --version before the previous one is discarded; otherwise the
// previous binary is restored. Every attempt ends in exactly one of
// committed, rolled back or aborted, and the lock and session directory are
// released on every path.
package updater
