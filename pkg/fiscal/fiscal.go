// Package fiscal maps calendar dates onto the federal fiscal year, which
// starts on October 1 and is named for the calendar year it ends in.
//
// This is the only place that reads calendar months. The lookback evaluator
// only ever sees the fiscal month index returned by TargetMonth.
package fiscal

import (
	"fmt"
	"strings"
	"time"
)

// StartMonth is the first calendar month of the fiscal year.
const StartMonth = time.October

// MonthNumber returns the fiscal month (1 = October … 12 = September).
func MonthNumber(m time.Month) int {
	return (int(m)-int(StartMonth)+12)%12 + 1
}

// CalendarMonth is the inverse of MonthNumber. It returns false when n is
// not in [1, 12].
func CalendarMonth(n int) (time.Month, bool) {
	if n < 1 || n > 12 {
		return 0, false
	}
	return time.Month((int(StartMonth)-1+n-1)%12 + 1), true
}

// MonthName returns the English calendar name of fiscal month n, or "" when
// n is out of range.
func MonthName(n int) string {
	m, ok := CalendarMonth(n)
	if !ok {
		return ""
	}
	return m.String()
}

// ParseMonth accepts a fiscal month number ("6") or a calendar month name
// ("March", "mar") and returns the fiscal month number.
func ParseMonth(s string) (int, error) {
	s = strings.TrimSpace(s)
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && fmt.Sprint(n) == s {
		if _, ok := CalendarMonth(n); !ok {
			return 0, fmt.Errorf("fiscal: month %d out of range [1, 12]", n)
		}
		return n, nil
	}
	for m := time.January; m <= time.December; m++ {
		name := m.String()
		if strings.EqualFold(s, name) || (len(s) >= 3 && strings.EqualFold(s, name[:3])) {
			return MonthNumber(m), nil
		}
	}
	return 0, fmt.Errorf("fiscal: unrecognised month %q", s)
}

// TargetMonth returns the fiscal month to report for at now: the fiscal
// number of now's calendar month. Its one-month lookback is the previous
// calendar month.
func TargetMonth(now time.Time) int {
	return MonthNumber(now.Month())
}

// ReportedMonth returns the calendar month a report run at now covers,
// i.e. the month before now.
func ReportedMonth(now time.Time) time.Month {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return first.AddDate(0, 0, -1).Month()
}

// Year returns the fiscal year containing now.
func Year(now time.Time) int {
	if now.Month() >= StartMonth {
		return now.Year() + 1
	}
	return now.Year()
}
