package alerts

import (
	"strconv"
	"strings"

	"github.com/raptrack/raptrack/pkg/types"
)

// evalCondition evaluates a rule condition string against a report.
//
// Supported expressions (field operator value):
//
//	regression_count > 0
//	probation_count >= 3
//	one_month_failure_count > 5
//	three_month_failure_count > 5
//	missing_count > 0
//	error_count > 0
//	total_members < 1
//	failing_pct > 20
//	target_month >= 5
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, r *types.Report) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	v, ok := numericField(field, r)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// validCondition reports whether cond parses and names a known field.
func validCondition(cond string) bool {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false
	}
	if _, ok := numericField(parts[0], &types.Report{}); !ok {
		return false
	}
	switch parts[1] {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return false
	}
	_, err := strconv.ParseFloat(parts[2], 64)
	return err == nil
}

// numericField maps a field name to its value in the report.
func numericField(field string, r *types.Report) (float64, bool) {
	switch field {
	case "regression_count":
		return float64(len(r.Regression)), true
	case "probation_count":
		return float64(len(r.Probation)), true
	case "one_month_failure_count":
		return float64(len(r.OneMonthFailures)), true
	case "three_month_failure_count":
		return float64(len(r.ThreeMonthFailures)), true
	case "missing_count":
		return float64(len(r.Missing)), true
	case "error_count":
		return float64(len(r.Errors)), true
	case "total_members":
		return float64(r.Total), true
	case "target_month":
		return float64(r.TargetMonth), true
	case "failing_pct":
		if r.Total == 0 {
			return 0, true
		}
		failing := len(r.Regression) + len(r.Probation) + len(r.OneMonthFailures)
		return 100 * float64(failing) / float64(r.Total), true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
