// Package schedule runs the periodic roster evaluation job.
//
// On every tick of the configured cron expression the Scheduler reads each
// configured roster file, evaluates it for the current fiscal target month
// (fiscal.TargetMonth in the configured timezone) and ingests the result
// through the receiver, so scheduled runs reach the store, the history
// database, the alert engine and WebSocket clients like any other report.
package schedule
