// Package history persists every received report to SQLite so trends can be
// queried after the in-memory store has moved on.
//
// Schema: report_runs holds one row per report (roster, target month,
// category counts); member_results holds one row per member per run.
// Run IDs are random UUIDs.
package history
