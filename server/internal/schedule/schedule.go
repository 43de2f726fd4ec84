package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/raptrack/raptrack/pkg/fiscal"
	"github.com/raptrack/raptrack/pkg/roster"
	"github.com/raptrack/raptrack/pkg/types"
	"github.com/raptrack/raptrack/server/internal/config"
)

// Ingester evaluates a CSV roster export and stores the result.
// *receiver.Receiver implements it.
type Ingester interface {
	EvaluateCSV(ctx context.Context, rosterID string, target, headerRows int, body io.Reader) (types.IngestResponse, error, error)
}

// Result is the outcome of one roster in one run.
type Result struct {
	RosterID string
	Target   int
	RunID    string
	Skipped  int
	Err      error
}

// Scheduler evaluates the configured roster files on a cron schedule.
type Scheduler struct {
	cfg  config.ScheduleConfig
	ing  Ingester
	loc  *time.Location
	cron *cron.Cron
	now  func() time.Time // injectable for tests
}

// New creates a Scheduler for cfg. The job is registered but not started.
func New(cfg config.ScheduleConfig, ing Ingester) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule: timezone %q: %w", cfg.Timezone, err)
	}
	s := &Scheduler{
		cfg:  cfg,
		ing:  ing,
		loc:  loc,
		cron: cron.New(cron.WithLocation(loc)),
		now:  time.Now,
	}
	if _, err := s.cron.AddFunc(cfg.Cron, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule: cron %q: %w", cfg.Cron, err)
	}
	return s, nil
}

// Run starts the cron loop and blocks until ctx is cancelled. A job that is
// running when ctx ends is allowed to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	slog.Info("schedule: started",
		"cron", s.cfg.Cron,
		"timezone", s.loc.String(),
		"rosters", len(s.cfg.Rosters),
		"next", s.Next(),
	)
	<-ctx.Done()
	<-s.cron.Stop().Done()
}

// Next returns the next time the job fires.
func (s *Scheduler) Next() time.Time {
	sched, err := cron.ParseStandard(s.cfg.Cron)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(s.now().In(s.loc))
}

// RunOnce evaluates every configured roster immediately. Rosters are
// independent: one failing does not stop the rest.
func (s *Scheduler) RunOnce(ctx context.Context) []Result {
	target := fiscal.TargetMonth(s.now().In(s.loc))
	out := make([]Result, 0, len(s.cfg.Rosters))
	for _, rf := range s.cfg.Rosters {
		res := s.evaluate(ctx, rf, target)
		if res.Err != nil {
			slog.Error("schedule: roster evaluation failed",
				"roster", rf.ID, "path", rf.Path, "target_month", target, "err", res.Err)
		} else {
			slog.Info("schedule: roster evaluated",
				"roster", rf.ID, "target_month", target, "run_id", res.RunID, "skipped_rows", res.Skipped)
		}
		out = append(out, res)
	}
	return out
}

func (s *Scheduler) evaluate(ctx context.Context, rf config.RosterFile, target int) Result {
	res := Result{RosterID: rf.ID, Target: target}

	f, err := os.Open(rf.Path)
	if err != nil {
		res.Err = fmt.Errorf("schedule: open %s: %w", rf.Path, err)
		return res
	}
	defer f.Close()

	resp, rowErr, err := s.ing.EvaluateCSV(ctx, rf.ID, target, rf.HeaderRows, f)
	if err != nil {
		res.Err = err
		return res
	}
	res.RunID = resp.RunID
	res.Skipped = countRowErrors(rowErr)
	return res
}

// countRowErrors counts the row errors joined into err.
func countRowErrors(err error) int {
	if err == nil {
		return 0
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		n := 0
		for _, e := range j.Unwrap() {
			var re *roster.RowError
			if errors.As(e, &re) {
				slog.Warn("schedule: skipped row", "line", re.Line, "name", re.Name, "err", re.Err)
			}
			n++
		}
		return n
	}
	return 1
}
