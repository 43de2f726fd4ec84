// Package threshold holds the crew-position minimum flight requirements.
//
// A Registry maps a position code (e.g. "KAN", "PIN") to an Entry with the
// required flight count for a one-month window and for a three-month window.
// Registries are immutable once built: Default() returns the built-in table,
// With(overrides) returns a new Registry with config-supplied entries merged
// on top. Unknown codes are reported explicitly by Lookup, never defaulted.
package threshold
