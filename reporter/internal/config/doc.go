// Package config loads the reporter configuration file (reporter.yaml).
//
// Top-level types:
//   - Config{Reporter, Thresholds}: full config tree parsed from YAML
//   - ReporterConfig: log_level, target_month, workers, source, output, ship
//   - Source: id, type (file|http), path, endpoint, auth, timeout
//   - AuthConfig: mode (apikey|bearer|basic|none), header, key_env,
//     token_env, username, password_env; Key(), Token() and Password()
//     resolve from environment variables
//   - OutputConfig: format (text|json|yaml|csv), metrics_file
//   - ShipConfig: endpoint, header, api_key_env, max_attempts, timeout
//   - Thresholds: position code → {one_month, three_month} overrides merged
//     onto the built-in table by Registry()
//
// Load(path) reads the YAML file, applies defaults (file source, text
// output, 4 workers, 5 ship attempts), then validates required fields and
// enums.
package config
