// Package metrics exposes the Prometheus counters of the updates server.
package metrics
