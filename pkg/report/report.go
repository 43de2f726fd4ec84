// Package report groups per-member lookback results into the named status
// categories shown to operators.
//
// Tier-exclusive categories (regression, probation, one-month failures) come
// from each member's single display tier, so a member is listed in at most
// one of them. Three-month failures, missing codes and evaluation errors are
// audit lists and are filled independently.
package report

import (
	"time"

	"github.com/raptrack/raptrack/pkg/lookback"
	"github.com/raptrack/raptrack/pkg/threshold"
	"github.com/raptrack/raptrack/pkg/types"
)

// Build aggregates results into a Report. Category lists keep roster order.
func Build(rosterID string, target int, results []types.MemberResult, now time.Time) *types.Report {
	r := &types.Report{
		RosterID:           rosterID,
		TargetMonth:        target,
		GeneratedAt:        now.UTC(),
		Total:              len(results),
		OneMonthFailures:   []string{},
		Probation:          []string{},
		Regression:         []string{},
		ThreeMonthFailures: []string{},
		Missing:            []string{},
		Errors:             []string{},
		Members:            results,
	}
	if r.Members == nil {
		r.Members = []types.MemberResult{}
	}

	for _, m := range results {
		name := m.Record.Name
		switch m.Tier {
		case types.TierRegression:
			r.Regression = append(r.Regression, name)
		case types.TierProbation:
			r.Probation = append(r.Probation, name)
		case types.TierOneMonthFailure:
			r.OneMonthFailures = append(r.OneMonthFailures, name)
		}

		c := m.Classification
		if c.ThreeMonth == types.Fail {
			r.ThreeMonthFailures = append(r.ThreeMonthFailures, name)
		}
		if c.MissingCode {
			r.Missing = append(r.Missing, name)
		}
		if c.OneMonth == types.Error || c.ThreeMonth == types.Error {
			r.Errors = append(r.Errors, name)
		}
	}
	return r
}

// Reevaluate classifies every member of r again against reg and returns a
// fresh Report for the same roster and target month. r is not modified.
func Reevaluate(r *types.Report, reg *threshold.Registry, now time.Time) *types.Report {
	results := make([]types.MemberResult, len(r.Members))
	for i, m := range r.Members {
		results[i] = lookback.Member(reg, m.Record, r.TargetMonth)
	}
	return Build(r.RosterID, r.TargetMonth, results, now)
}

// Records extracts the input records from r in roster order.
func Records(r *types.Report) []types.Record {
	out := make([]types.Record, len(r.Members))
	for i, m := range r.Members {
		out[i] = m.Record
	}
	return out
}
