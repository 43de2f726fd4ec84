// Package receiver is the intake side of raptrack-server: it accepts
// finished reports from raptrack-reporter instances and raw roster CSVs
// uploaded for evaluation.
//
// Ingest validates the report (roster_id required, target_month in range),
// re-classifies every member against the server's current threshold
// registry so the server is authoritative, then stores it, records it in
// history and hands it to the alert engine and the live-update hub.
// Authentication is enforced upstream by the HTTP middleware (see package
// auth), so the receiver itself only performs structural validation.
package receiver
