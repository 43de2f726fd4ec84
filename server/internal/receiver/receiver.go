package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/raptrack/raptrack/pkg/lookback"
	"github.com/raptrack/raptrack/pkg/report"
	"github.com/raptrack/raptrack/pkg/roster"
	"github.com/raptrack/raptrack/pkg/threshold"
	"github.com/raptrack/raptrack/pkg/types"
	"github.com/raptrack/raptrack/server/internal/store"
)

// ErrInvalid wraps every structural rejection of a submitted report.
var ErrInvalid = errors.New("receiver: invalid report")

// Recorder persists reports and returns the stored run ID.
type Recorder interface {
	SaveReport(ctx context.Context, r *types.Report) (string, error)
}

// Evaluator inspects each accepted report, e.g. the alert engine.
type Evaluator interface {
	Evaluate(r *types.Report)
}

// Notifier is told when the set of stored reports changed.
type Notifier interface {
	Notify()
}

// Options wires a Receiver. Only Store and Registry are required.
type Options struct {
	Store    *store.Store
	Registry func() *threshold.Registry
	History  Recorder
	Alerts   Evaluator
	Notifier Notifier
	Workers  int
}

// Receiver validates, classifies and fans out incoming reports.
type Receiver struct {
	opts Options
	now  func() time.Time // injectable for tests
}

// New creates a Receiver from opts.
func New(opts Options) *Receiver {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Receiver{opts: opts, now: time.Now}
}

// Ingest accepts a finished report. Member classifications in r are
// recomputed from the records with the server's registry.
func (rc *Receiver) Ingest(ctx context.Context, r *types.Report) (types.IngestResponse, error) {
	if err := validate(r); err != nil {
		return types.IngestResponse{}, err
	}

	at := r.GeneratedAt
	if at.IsZero() {
		at = rc.now()
	}
	authoritative := report.Reevaluate(r, rc.opts.Registry(), at)

	rc.opts.Store.Put(authoritative)

	runID := ""
	if rc.opts.History != nil {
		id, err := rc.opts.History.SaveReport(ctx, authoritative)
		if err != nil {
			// The in-memory store already has the report; surface the failure
			// so the sender can retry.
			return types.IngestResponse{}, fmt.Errorf("receiver: record history: %w", err)
		}
		runID = id
	} else {
		runID = uuid.NewString()
	}

	if rc.opts.Alerts != nil {
		rc.opts.Alerts.Evaluate(authoritative)
	}
	if rc.opts.Notifier != nil {
		rc.opts.Notifier.Notify()
	}

	slog.Info("receiver: report stored",
		"roster", authoritative.RosterID,
		"run_id", runID,
		"target_month", authoritative.TargetMonth,
		"total", authoritative.Total,
		"regression", len(authoritative.Regression),
		"probation", len(authoritative.Probation),
	)
	return types.IngestResponse{OK: true, RunID: runID}, nil
}

// EvaluateCSV parses a roster export, classifies it for target and ingests
// the result. Malformed rows are skipped and returned as rowErr alongside a
// successful response.
func (rc *Receiver) EvaluateCSV(ctx context.Context, rosterID string, target, headerRows int, body io.Reader) (resp types.IngestResponse, rowErr error, err error) {
	if rosterID == "" {
		return resp, nil, fmt.Errorf("%w: roster_id is required", ErrInvalid)
	}
	if !lookback.ValidMonth(target) {
		return resp, nil, fmt.Errorf("%w: target_month %d is out of range [1, 12]", ErrInvalid, target)
	}

	records, perr := roster.ParseWith(body, roster.Options{HeaderRows: headerRows})
	if perr != nil && records == nil {
		return resp, nil, fmt.Errorf("%w: %v", ErrInvalid, perr)
	}

	results, err := lookback.EvaluateBatch(ctx, rc.opts.Registry(), records, target, rc.opts.Workers)
	if err != nil {
		return resp, nil, fmt.Errorf("receiver: evaluate: %w", err)
	}
	resp, err = rc.Ingest(ctx, report.Build(rosterID, target, results, rc.now()))
	return resp, perr, err
}

func validate(r *types.Report) error {
	if r == nil {
		return fmt.Errorf("%w: empty body", ErrInvalid)
	}
	if r.RosterID == "" {
		return fmt.Errorf("%w: roster_id is required", ErrInvalid)
	}
	if !lookback.ValidMonth(r.TargetMonth) {
		return fmt.Errorf("%w: target_month %d is out of range [1, 12]", ErrInvalid, r.TargetMonth)
	}
	for i, m := range r.Members {
		if m.Record.Name == "" {
			return fmt.Errorf("%w: members[%d]: name is required", ErrInvalid, i)
		}
		for k, n := range m.Record.Counts {
			if n < 0 {
				return fmt.Errorf("%w: members[%d]: counts[%d] is negative", ErrInvalid, i, k)
			}
		}
	}
	return nil
}
