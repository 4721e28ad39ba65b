// Package semver parses and orders release versions.
//
// Parsing accepts an optional leading "v" and requires major.minor.patch with
// optional prerelease and build metadata. Anything that fails to parse is
// never considered newer than anything else, so a malformed version string
// cannot trigger an install.
package semver
