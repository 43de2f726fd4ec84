package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// MonthsPerYear is the length of the fiscal year (October through September).
const MonthsPerYear = 12

// MissingCode is the sentinel upstream data entry uses for a crew member who
// has not been assigned a position code yet.
const MissingCode = "MISSING"

// Record is one crew member's flight activity for the fiscal year.
// Counts[0] is fiscal month 1 (October), Counts[11] is September.
type Record struct {
	Name         string        `json:"name" yaml:"name"`
	PositionCode string        `json:"position_code" yaml:"position_code"`
	RawCode      string        `json:"raw_code" yaml:"raw_code"`
	Counts       MonthlyCounts `json:"counts" yaml:"counts"`
}

// MonthlyCounts holds one sortie count per fiscal month.
type MonthlyCounts [MonthsPerYear]int

// UnmarshalJSON requires exactly MonthsPerYear elements. A plain array would
// zero-pad a short list and drop the tail of a long one.
func (c *MonthlyCounts) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != MonthsPerYear {
		return fmt.Errorf("counts: got %d months, want %d", len(v), MonthsPerYear)
	}
	copy(c[:], v)
	return nil
}

// Result is the outcome of a single lookback window check.
type Result string

const (
	Pass  Result = "PASS"
	Fail  Result = "FAIL"
	Error Result = "ERROR"
)

// Classification is the evaluator's verdict for one record.
//
// The booleans are computed independently of each other. The display tier
// (see Tier) is derived from them and never feeds back into these fields.
type Classification struct {
	OneMonth     Result `json:"one_month" yaml:"one_month"`
	ThreeMonth   Result `json:"three_month" yaml:"three_month"`
	OnProbation  bool   `json:"on_probation" yaml:"on_probation"`
	OnRegression bool   `json:"on_regression" yaml:"on_regression"`
	MissingCode  bool   `json:"missing_code" yaml:"missing_code"`
}

// Tier is the single most severe status category a member is displayed in.
type Tier string

const (
	TierRegression      Tier = "REGRESSION"
	TierProbation       Tier = "PROBATION"
	TierOneMonthFailure Tier = "ONE_MONTH_FAILURE"
	TierOK              Tier = "OK"
)

// Tiers lists every tier from most to least severe.
func Tiers() []Tier {
	return []Tier{TierRegression, TierProbation, TierOneMonthFailure, TierOK}
}

// MemberResult pairs a record with its classification and display tier.
type MemberResult struct {
	Record         Record         `json:"record" yaml:"record"`
	Classification Classification `json:"classification" yaml:"classification"`
	Tier           Tier           `json:"tier" yaml:"tier"`
}

// Report is the aggregated outcome of one evaluation run over a roster.
type Report struct {
	RosterID    string    `json:"roster_id" yaml:"roster_id"`
	TargetMonth int       `json:"target_month" yaml:"target_month"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	Total       int       `json:"total" yaml:"total"`

	// Tier-exclusive display lists: a name appears in at most one of these.
	OneMonthFailures []string `json:"one_month_failures" yaml:"one_month_failures"`
	Probation        []string `json:"probation" yaml:"probation"`
	Regression       []string `json:"regression" yaml:"regression"`

	// Audit lists, independent of tiers.
	ThreeMonthFailures []string `json:"three_month_failures" yaml:"three_month_failures"`
	Missing            []string `json:"missing" yaml:"missing"`
	Errors             []string `json:"errors" yaml:"errors"`

	Members []MemberResult `json:"members" yaml:"members"`
}

// Category names used by exports and alert conditions.
const (
	CategoryOneMonthFailure   = "one_month_failure"
	CategoryThreeMonthFailure = "three_month_failure"
	CategoryProbation         = "probation"
	CategoryRegression        = "regression"
	CategoryMissing           = "missing"
	CategoryError             = "error"
)

// Counts returns the size of every category list keyed by category name.
func (r *Report) Counts() map[string]int {
	return map[string]int{
		CategoryOneMonthFailure:   len(r.OneMonthFailures),
		CategoryThreeMonthFailure: len(r.ThreeMonthFailures),
		CategoryProbation:         len(r.Probation),
		CategoryRegression:        len(r.Regression),
		CategoryMissing:           len(r.Missing),
		CategoryError:             len(r.Errors),
	}
}

// Categories returns the category names in display order.
func Categories() []string {
	return []string{
		CategoryOneMonthFailure,
		CategoryThreeMonthFailure,
		CategoryProbation,
		CategoryRegression,
		CategoryMissing,
		CategoryError,
	}
}

// Member returns the result for the named member, if present.
func (r *Report) Member(name string) (MemberResult, bool) {
	for _, m := range r.Members {
		if m.Record.Name == name {
			return m, true
		}
	}
	return MemberResult{}, false
}

// IngestResponse is the server's reply to a report submission.
type IngestResponse struct {
	OK      bool   `json:"ok"`
	RunID   string `json:"run_id,omitempty"`
	Message string `json:"message,omitempty"`
}
