// Package integration holds end-to-end tests that publish releases with the
// packager, serve them over HTTP and install them with the updater.
package integration
