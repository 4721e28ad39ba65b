// Package config defines the updater settings used by the dashtext binaries
// and provides helpers to load, validate and save them in YAML format.
//
// Load layers DASHTEXT_* environment variables over the optional settings
// file; the release feed URL itself is fixed at build time and can only be
// redirected when a settings file explicitly opts in.
package config
