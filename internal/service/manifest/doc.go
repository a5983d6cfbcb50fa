// Package manifest is the update-resolution engine behind the manifest and
// assets endpoints.
//
// For one update check it finds the newest bundle of a runtime version,
// classifies it as a normal update or a rollback, and returns a tagged
// update.Outcome: a manifest with content-addressed assets, a rollback
// directive, or a no-update signal. The engine keeps no state between calls;
// every read goes through a blob.Repository.
package manifest
