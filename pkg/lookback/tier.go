package lookback

import "github.com/raptrack/raptrack/pkg/types"

// TierOf returns the most severe display tier c qualifies for.
// The most severe tier wins, so a member is shown in exactly one tier.
func TierOf(c types.Classification) types.Tier {
	switch {
	case c.OnRegression:
		return types.TierRegression
	case c.OnProbation:
		return types.TierProbation
	case c.OneMonth == types.Fail:
		return types.TierOneMonthFailure
	default:
		return types.TierOK
	}
}

// Severity ranks a tier; higher is worse. Unknown tiers rank as OK.
func Severity(t types.Tier) int {
	switch t {
	case types.TierRegression:
		return 3
	case types.TierProbation:
		return 2
	case types.TierOneMonthFailure:
		return 1
	default:
		return 0
	}
}
