package api

import (
	"time"

	"github.com/raptrack/raptrack/pkg/lookback"
	"github.com/raptrack/raptrack/pkg/threshold"
	"github.com/raptrack/raptrack/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is "unknown" with no reports, "critical" when anyone is in
	// regression, "degraded" on probation or one-month failures, else "healthy".
	State              string `json:"state"`
	RosterCount        int    `json:"roster_count"`
	TotalMembers       int    `json:"total_members"`
	RegressionCount    int    `json:"regression_count"`
	ProbationCount     int    `json:"probation_count"`
	OneMonthFailures   int    `json:"one_month_failure_count"`
	ThreeMonthFailures int    `json:"three_month_failure_count"`
	MissingCount       int    `json:"missing_count"`
	ErrorCount         int    `json:"error_count"`
	AlertCount         int    `json:"alert_count"`
	ThresholdCodes     int    `json:"threshold_codes"`
}

// ReportResponse is one stored report in GET /api/v1/reports or
// GET /api/v1/reports/{id}.
type ReportResponse struct {
	*types.Report
	ReceivedAt time.Time `json:"received_at"`
}

// MemberResponse is the payload for GET /api/v1/reports/{id}/members/{name}.
type MemberResponse struct {
	RosterID    string             `json:"roster_id"`
	TargetMonth int                `json:"target_month"`
	Member      types.MemberResult `json:"member"`
	Threshold   *threshold.Entry   `json:"threshold,omitempty"`
	Windows     lookback.Windows   `json:"windows"`
	Diagnostics []DiagnosticHint   `json:"diagnostics"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
