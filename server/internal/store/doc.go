// Package store holds the latest report for every roster in memory. It
// provides a thread-safe report store with optional TTL eviction; report
// history lives in package history.
package store
