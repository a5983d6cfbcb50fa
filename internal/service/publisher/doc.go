// Package publisher uploads exported update bundles, or rollback markers,
// into the content store under {project}/{channel}/{platform}/{runtime}/{epoch}.
package publisher
