// Package types defines the Go types shared by the reporter and the server.
// These are the canonical in-memory representations of roster records,
// compliance classifications and aggregated reports. The JSON tags double
// as the wire format between reporter and server.
package types
