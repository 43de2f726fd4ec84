package lookback

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/raptrack/raptrack/pkg/threshold"
	"github.com/raptrack/raptrack/pkg/types"
)

// EvaluateBatch classifies every record against reg for the target month.
//
// Records are spread over at most workers goroutines (GOMAXPROCS when
// workers <= 0). Each result is written to the slot matching its input
// index, so the output is identical to a sequential run. The only error
// returned is ctx's, if it is cancelled before all records are done.
func EvaluateBatch(ctx context.Context, reg *threshold.Registry, records []types.Record, target, workers int) ([]types.MemberResult, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]types.MemberResult, len(records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range records {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = Member(reg, records[i], target)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Member classifies a single record and attaches its display tier.
func Member(reg *threshold.Registry, rec types.Record, target int) types.MemberResult {
	c := Classify(reg, rec, target)
	return types.MemberResult{
		Record:         rec,
		Classification: c,
		Tier:           TierOf(c),
	}
}
