// Package packager publishes a release archive into the update manifest.
//
// It checks that the archive carries the dashtext executable where the
// updater looks for it, hashes and minisign-signs the archive, and merges the
// resulting platform entry into latest.json. The manifest and archive are
// then uploaded to the release feed by hand or by CI.
package packager
