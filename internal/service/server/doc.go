// Package server runs the updates server process: it wires the configured
// content store, digest cache and signing key into the manifest engine and
// serves the HTTP API, Prometheus metrics and the gRPC health service until
// its context is cancelled.
package server
