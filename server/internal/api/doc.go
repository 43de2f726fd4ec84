// Package api implements the HTTP API for raptrack-server.
//
// New(opts) returns an http.Handler that serves:
//
//	GET  /api/v1/health                         state, roster count, category totals
//	GET  /api/v1/reports                        all live reports ([]ReportResponse)
//	POST /api/v1/reports                        ingest a JSON report (receiver)
//	GET  /api/v1/reports/{id}                   one report; 404 if unknown or stale
//	GET  /api/v1/reports/{id}/members/{name}    one member with windows and diagnostics
//	GET  /api/v1/thresholds                     active position code table
//	GET  /api/v1/history?roster=&limit=         stored runs, newest first
//	GET  /api/v1/history?member=&roster=        one member across stored runs
//	GET  /api/v1/history/{run_id}               one stored run
//	GET  /api/v1/alerts                         firing and recently resolved alerts
//	POST /api/v1/rosters/{id}/evaluate?month=N  evaluate a CSV body (receiver)
//	GET  /metrics                               Prometheus text exposition
//
// JSON endpoints return 405 for wrong methods. History endpoints return 503
// when the server runs without a history database.
package api
