// Package update contains the domain model of a single update check.
//
// It defines the request parameters, the bundle metadata document, the
// manifest and directive payloads served to clients, the tagged Outcome the
// protocol engine returns, and the sentinel errors callers classify.
package update
