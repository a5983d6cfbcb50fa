// Package health implements the gRPC health service of the updates server.
//
// A prober periodically lists the content store root and reports the
// updates service as SERVING only while that call succeeds.
package health
