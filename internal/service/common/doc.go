// Package common holds helpers shared by several services.
//
// It opens the configured content store, provides an HTTP client speaking the
// update protocol plus a gRPC health probe, and detects the current system
// actor (hostname/username) for audit logging.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
