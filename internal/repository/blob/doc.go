// Package blob implements the content store holding published update bundles.
//
// Repository is the only way the protocol engine touches storage. Keys are
// slash-separated paths ({project}/{channel}/{platform}/{runtime}/{epoch}/...).
// FileRepository serves a local directory tree, S3Repository an S3-compatible
// bucket and MemoryRepository keeps objects in process for tests and demos.
package blob
