// Package config loads the server configuration from the `server:` and
// `thresholds:` sections of config.yaml (a `reporter:` key in the same file
// is ignored).
//
// Config fields:
//   - HTTPPort:         port for the REST API, intake and WebSocket hub (default 8080)
//   - Auth.Mode:        "apikey" or "none"
//   - Auth.KeyEnv:      environment variable holding the expected API key
//   - Auth.Header:      HTTP header name (default "x-api-key")
//   - Report.TTL:       how long a roster's latest report stays live (0 = forever)
//   - Storage:          "sqlite" history database or "memory" (no history)
//   - Schedule:         cron expression plus roster files to evaluate on it
//   - Alerts:           rules and webhook targets
//   - BroadcastInterval: WebSocket push period (default 5s)
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, fn) reloads on file change.
package config
