// Package version exposes build metadata for the updates server.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. Short and Full render the version for CLI output and logs,
// UserAgent identifies the built-in update checker to the server.
package version
