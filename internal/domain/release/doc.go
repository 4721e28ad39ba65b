// Package release contains the data types exchanged during an update attempt.
//
// Manifest and Artifact describe what the release feed publishes, UpdateInfo
// is what a check reports to the UI layer, Progress is emitted while the
// artifact downloads, and Outcome is the single terminal result of an install.
// None of these are persisted.
package release
