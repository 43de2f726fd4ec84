// Package shipper POSTs finished reports to raptrack-server as JSON
// (POST /api/v1/reports).
//
// Ship retries transient failures (connection errors, 5xx, 429) with
// truncated exponential backoff (1s→60s, ±25% jitter) up to MaxAttempts.
// Any other 4xx is permanent: the server rejected the report itself, so it
// is not retried.
//
// The API key, when configured, is sent in the configured header.
// The sleep field is injectable for testing.
package shipper
