// Package manifest implements persistence for the release manifest.
//
// The FileRepository stores and loads latest.json on disk and exposes a
// Repository interface that the packager depends on.
package manifest
