package api

import (
	"fmt"
	"sort"

	"github.com/raptrack/raptrack/pkg/fiscal"
	"github.com/raptrack/raptrack/pkg/lookback"
	"github.com/raptrack/raptrack/pkg/threshold"
	"github.com/raptrack/raptrack/pkg/types"
)

// Hint levels, most severe first.
const (
	LevelCritical = "critical"
	LevelWarning  = "warning"
	LevelInfo     = "info"
	LevelOK       = "ok"
)

var levelRank = map[string]int{LevelCritical: 0, LevelWarning: 1, LevelInfo: 2, LevelOK: 3}

// DiagnosticHint is one human-readable explanation of a member's status.
// Hints are shown as chips next to the member; Detail is the full text.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level  string `json:"level"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	// Value is the flight total the hint is about, when there is one.
	Value *int `json:"value,omitempty"`
}

// computeDiagnostics explains m's classification for target in terms of
// the flights behind it. Hints are ordered critical first.
func computeDiagnostics(entry threshold.Entry, known bool, m types.MemberResult, w lookback.Windows, target int) []DiagnosticHint {
	var hints []DiagnosticHint
	c := m.Classification

	// Without a threshold entry nothing else can be said.
	if !known {
		if c.MissingCode {
			return []DiagnosticHint{{
				Key:   "missing_code",
				Level: LevelWarning,
				Title: "Missing position code",
				Detail: "The roster lists MISSING for this member's position, so no " +
					"requirement applies yet. Assign a position code in the source roster.",
			}}
		}
		return []DiagnosticHint{{
			Key:   "unknown_code",
			Level: LevelCritical,
			Title: "Unknown position code",
			Detail: fmt.Sprintf(
				"Position code %q has no threshold entry, so both lookbacks evaluate to ERROR. "+
					"Add it under thresholds in the server config or fix the roster.",
				m.Record.PositionCode),
		}}
	}

	switch m.Tier {
	case types.TierRegression:
		v := w.Prior.Flown
		hints = append(hints, DiagnosticHint{
			Key:   "regression",
			Level: LevelCritical,
			Title: "Regression",
			Detail: fmt.Sprintf(
				"Both lookbacks failed and the previous three-month window was short as well "+
					"(%d flights against a minimum of %d). The member has been below the "+
					"requirement for two consecutive measurement points.",
				w.Prior.Flown, entry.ThreeMonth),
			Value: &v,
		})
	case types.TierProbation:
		hints = append(hints, DiagnosticHint{
			Key:   "probation",
			Level: LevelCritical,
			Title: "On probation",
			Detail: fmt.Sprintf(
				"Both the one-month (%d of %d) and the three-month (%d of %d) lookbacks failed.",
				w.OneMonth.Flown, entry.OneMonth, w.ThreeMonth.Flown, entry.ThreeMonth),
		})
		if !w.Prior.Valid {
			hints = append(hints, DiagnosticHint{
				Key:   "regression_unassessed",
				Level: LevelInfo,
				Title: "Regression not assessed",
				Detail: fmt.Sprintf(
					"The previous three-month window does not fit in the fiscal year before "+
						"month %d, so regression is only assessed from month %d.",
					target, lookback.MinRegressionMonth),
			})
		}
	}

	if v := w.OneMonth.Flown; c.OneMonth == types.Fail && !c.OnProbation {
		hints = append(hints, DiagnosticHint{
			Key:   "one_month",
			Level: LevelWarning,
			Title: fmt.Sprintf("%d of %d last month", v, entry.OneMonth),
			Detail: fmt.Sprintf(
				"Only %d flights were logged in %s against a one-month minimum of %d.",
				v, fiscal.MonthName(target-1), entry.OneMonth),
			Value: &v,
		})
	}

	if v := w.ThreeMonth.Flown; c.ThreeMonth == types.Fail && !c.OnProbation {
		hints = append(hints, DiagnosticHint{
			Key:   "three_month",
			Level: LevelWarning,
			Title: fmt.Sprintf("%d of %d over three months", v, entry.ThreeMonth),
			Detail: fmt.Sprintf(
				"The last three months add up to %d flights against a minimum of %d. "+
					"Last month was enough on its own, but the window is still short.",
				v, entry.ThreeMonth),
			Value: &v,
		})
	}

	for _, e := range []struct {
		key, name string
		r         types.Result
	}{
		{"one_month_error", "one-month", c.OneMonth},
		{"three_month_error", "three-month", c.ThreeMonth},
	} {
		if e.r != types.Error {
			continue
		}
		hints = append(hints, DiagnosticHint{
			Key:   e.key,
			Level: LevelInfo,
			Title: "Window out of range",
			Detail: fmt.Sprintf(
				"The %s window for month %d reaches back past the start of the fiscal year, "+
					"so it cannot be evaluated.", e.name, target),
		})
	}

	if c.MissingCode {
		hints = append(hints, DiagnosticHint{
			Key:    "missing_code",
			Level:  LevelWarning,
			Title:  "Missing position code",
			Detail: "The roster lists MISSING for this member's position. Assign a code in the source roster.",
		})
	}

	if len(hints) == 0 {
		v := w.ThreeMonth.Flown
		hints = append(hints, DiagnosticHint{
			Key:   "ok",
			Level: LevelOK,
			Title: "Meets requirements",
			Detail: fmt.Sprintf(
				"%d flights last month (minimum %d) and %d over three months (minimum %d).",
				w.OneMonth.Flown, entry.OneMonth, w.ThreeMonth.Flown, entry.ThreeMonth),
			Value: &v,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool { return levelRank[hints[i].Level] < levelRank[hints[j].Level] })
	return hints
}
