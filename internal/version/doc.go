// Package version exposes build metadata for the project.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags and default to sensible values for local builds. The release
// feed location and the pinned update signing key live here as well so a
// release pipeline sets all build-time inputs in one place.
package version
