package lookback

import (
	"strings"

	"github.com/raptrack/raptrack/pkg/threshold"
	"github.com/raptrack/raptrack/pkg/types"
)

// Window offsets, in months before the target month.
const (
	oneMonthStart   = 1 // the month immediately preceding the target
	threeMonthStart = 1
	priorStart      = 2 // the three-month window one measurement point earlier
	windowLen       = 3
)

// MinRegressionMonth is the earliest target month with a full prior window.
const MinRegressionMonth = priorStart + windowLen

// ValidMonth reports whether m is a fiscal month index in [1, 12].
func ValidMonth(m int) bool {
	return m >= 1 && m <= types.MonthsPerYear
}

// Evaluator binds a registry so callers can pass a single value around.
type Evaluator struct {
	reg *threshold.Registry
}

// New returns an Evaluator backed by reg.
func New(reg *threshold.Registry) *Evaluator {
	return &Evaluator{reg: reg}
}

// Registry returns the registry the Evaluator was built with.
func (e *Evaluator) Registry() *threshold.Registry { return e.reg }

// OneMonth is EvaluateOneMonth bound to e's registry.
func (e *Evaluator) OneMonth(rec types.Record, target int) types.Result {
	return EvaluateOneMonth(e.reg, rec, target)
}

// ThreeMonth is EvaluateThreeMonth bound to e's registry.
func (e *Evaluator) ThreeMonth(rec types.Record, target int) types.Result {
	return EvaluateThreeMonth(e.reg, rec, target)
}

// Probation is EvaluateProbation bound to e's registry.
func (e *Evaluator) Probation(rec types.Record, target int) bool {
	return EvaluateProbation(e.reg, rec, target)
}

// Regression is EvaluateRegression bound to e's registry.
func (e *Evaluator) Regression(rec types.Record, target int) bool {
	return EvaluateRegression(e.reg, rec, target)
}

// Classify is the package-level Classify bound to e's registry.
func (e *Evaluator) Classify(rec types.Record, target int) types.Classification {
	return Classify(e.reg, rec, target)
}

// EvaluateOneMonth checks the single month before target against the
// position's one-month minimum.
//
// target is the month the report is run in, not the month being measured:
// target 6 (March) reads rec.Counts[4], February's count. Callers holding the
// number of the month to measure must pass that number plus one.
// fiscal.TargetMonth derives target from a run date. Targets below 2 have no
// preceding month and yield Error.
func EvaluateOneMonth(reg *threshold.Registry, rec types.Record, target int) types.Result {
	entry, ok := reg.Lookup(rec.PositionCode)
	if !ok {
		return types.Error
	}
	flown, ok := windowSum(rec.Counts, target, oneMonthStart, 1)
	if !ok {
		return types.Error
	}
	return verdict(flown, entry.OneMonth)
}

// EvaluateThreeMonth checks the sum of the three months before target
// against the position's three-month minimum. target follows the same
// run-month convention as EvaluateOneMonth: target 6 sums Counts[2:5].
func EvaluateThreeMonth(reg *threshold.Registry, rec types.Record, target int) types.Result {
	entry, ok := reg.Lookup(rec.PositionCode)
	if !ok {
		return types.Error
	}
	flown, ok := windowSum(rec.Counts, target, threeMonthStart, windowLen)
	if !ok {
		return types.Error
	}
	return verdict(flown, entry.ThreeMonth)
}

// EvaluateProbation reports whether both lookbacks FAIL.
func EvaluateProbation(reg *threshold.Registry, rec types.Record, target int) bool {
	return probation(EvaluateOneMonth(reg, rec, target), EvaluateThreeMonth(reg, rec, target))
}

// EvaluateRegression reports whether the member is on probation and the
// three-month window one month earlier was also below the minimum.
func EvaluateRegression(reg *threshold.Registry, rec types.Record, target int) bool {
	one := EvaluateOneMonth(reg, rec, target)
	three := EvaluateThreeMonth(reg, rec, target)
	return regression(reg, rec, target, one, three)
}

// Classify runs every check for rec and flags missing position codes.
func Classify(reg *threshold.Registry, rec types.Record, target int) types.Classification {
	one := EvaluateOneMonth(reg, rec, target)
	three := EvaluateThreeMonth(reg, rec, target)
	return types.Classification{
		OneMonth:     one,
		ThreeMonth:   three,
		OnProbation:  probation(one, three),
		OnRegression: regression(reg, rec, target, one, three),
		MissingCode:  IsMissingCode(rec),
	}
}

// Window is the flight total of one lookback window. Valid is false when
// the window does not fit inside the fiscal year.
type Window struct {
	Flown int  `json:"flown"`
	Valid bool `json:"valid"`
}

// Windows holds the totals every check for a record is based on.
type Windows struct {
	OneMonth   Window `json:"one_month"`
	ThreeMonth Window `json:"three_month"`
	Prior      Window `json:"prior"`
}

// WindowsOf sums rec's counts over the one-month, three-month and prior
// windows for target.
func WindowsOf(rec types.Record, target int) Windows {
	w := func(start, n int) Window {
		flown, ok := windowSum(rec.Counts, target, start, n)
		return Window{Flown: flown, Valid: ok}
	}
	return Windows{
		OneMonth:   w(oneMonthStart, 1),
		ThreeMonth: w(threeMonthStart, windowLen),
		Prior:      w(priorStart, windowLen),
	}
}

// IsMissingCode reports whether rec carries the upstream "not yet assigned"
// sentinel, either as its extracted code or as the whole raw field.
// Other unknown codes are not "missing"; they evaluate to ERROR.
func IsMissingCode(rec types.Record) bool {
	return rec.PositionCode == types.MissingCode || strings.TrimSpace(rec.RawCode) == types.MissingCode
}

func probation(one, three types.Result) bool {
	return one == types.Fail && three == types.Fail
}

func regression(reg *threshold.Registry, rec types.Record, target int, one, three types.Result) bool {
	if !probation(one, three) {
		return false
	}
	entry, ok := reg.Lookup(rec.PositionCode)
	if !ok {
		return false
	}
	prior, ok := windowSum(rec.Counts, target, priorStart, windowLen)
	if !ok {
		return false
	}
	return prior < entry.ThreeMonth
}

// windowSum adds n consecutive months, walking back from the month that is
// start months before target.
// It returns false if target is not a fiscal month or any month of the
// window falls outside the fiscal year.
func windowSum(counts types.MonthlyCounts, target, start, n int) (int, bool) {
	if !ValidMonth(target) {
		return 0, false
	}
	var sum int
	for k := 0; k < n; k++ {
		idx := target - 1 - start - k
		if idx < 0 || idx >= types.MonthsPerYear {
			return 0, false
		}
		sum += counts[idx]
	}
	return sum, true
}

func verdict(flown, required int) types.Result {
	if flown < required {
		return types.Fail
	}
	return types.Pass
}
