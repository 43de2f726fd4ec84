package lookback

import (
	"testing"

	"github.com/raptrack/raptrack/pkg/types"
)

func TestTierOf(t *testing.T) {
	tests := []struct {
		name string
		c    types.Classification
		want types.Tier
	}{
		{"regression wins over everything",
			types.Classification{OneMonth: types.Fail, ThreeMonth: types.Fail, OnProbation: true, OnRegression: true},
			types.TierRegression},
		{"probation wins over one month",
			types.Classification{OneMonth: types.Fail, ThreeMonth: types.Fail, OnProbation: true},
			types.TierProbation},
		{"one month failure alone",
			types.Classification{OneMonth: types.Fail, ThreeMonth: types.Pass},
			types.TierOneMonthFailure},
		{"three month failure alone is OK tier",
			types.Classification{OneMonth: types.Pass, ThreeMonth: types.Fail},
			types.TierOK},
		{"errors are OK tier",
			types.Classification{OneMonth: types.Error, ThreeMonth: types.Error},
			types.TierOK},
		{"missing code does not change tier",
			types.Classification{OneMonth: types.Pass, ThreeMonth: types.Pass, MissingCode: true},
			types.TierOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := TierOf(tc.c); got != tc.want {
				t.Errorf("TierOf = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestTierOf_ExactlyOneTier(t *testing.T) {
	results := []types.Result{types.Pass, types.Fail, types.Error}
	bools := []bool{false, true}
	for _, one := range results {
		for _, three := range results {
			for _, prob := range bools {
				for _, reg := range bools {
					c := types.Classification{OneMonth: one, ThreeMonth: three, OnProbation: prob, OnRegression: reg}
					tier := TierOf(c)
					var hits int
					for _, candidate := range types.Tiers() {
						if candidate == tier {
							hits++
						}
					}
					if hits != 1 {
						t.Fatalf("%+v mapped to %q, which is not exactly one known tier", c, tier)
					}
				}
			}
		}
	}
}

func TestSeverity_Ordering(t *testing.T) {
	tiers := types.Tiers()
	for i := 1; i < len(tiers); i++ {
		if Severity(tiers[i-1]) <= Severity(tiers[i]) {
			t.Errorf("Severity(%s) should exceed Severity(%s)", tiers[i-1], tiers[i])
		}
	}
	if Severity("bogus") != Severity(types.TierOK) {
		t.Error("unknown tiers should rank as OK")
	}
}
