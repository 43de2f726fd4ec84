package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/raptrack/raptrack/pkg/types"
)

// DefaultLimit caps ListRuns when the caller passes a non-positive limit.
const DefaultLimit = 50

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = errors.New("history: run not found")

// Run is the summary row of one stored report.
type Run struct {
	ID          string         `json:"id"`
	RosterID    string         `json:"roster_id"`
	TargetMonth int            `json:"target_month"`
	GeneratedAt time.Time      `json:"generated_at"`
	ReceivedAt  time.Time      `json:"received_at"`
	Total       int            `json:"total"`
	Counts      map[string]int `json:"counts"`
}

// MemberEntry is one member's outcome in one stored run.
type MemberEntry struct {
	RunID          string               `json:"run_id"`
	RosterID       string               `json:"roster_id"`
	TargetMonth    int                  `json:"target_month"`
	GeneratedAt    time.Time            `json:"generated_at"`
	Record         types.Record         `json:"record"`
	Classification types.Classification `json:"classification"`
	Tier           types.Tier           `json:"tier"`
}

// DB is a SQLite-backed report history.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS report_runs (
	id                   TEXT PRIMARY KEY,
	roster_id            TEXT NOT NULL,
	target_month         INTEGER NOT NULL,
	generated_at         DATETIME NOT NULL,
	received_at          DATETIME NOT NULL,
	total                INTEGER NOT NULL,
	one_month_failures   INTEGER NOT NULL DEFAULT 0,
	three_month_failures INTEGER NOT NULL DEFAULT 0,
	probation            INTEGER NOT NULL DEFAULT 0,
	regression           INTEGER NOT NULL DEFAULT 0,
	missing              INTEGER NOT NULL DEFAULT 0,
	errors               INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_roster ON report_runs(roster_id, generated_at);

CREATE TABLE IF NOT EXISTS member_results (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL REFERENCES report_runs(id) ON DELETE CASCADE,
	name          TEXT NOT NULL,
	position_code TEXT NOT NULL DEFAULT '',
	raw_code      TEXT NOT NULL DEFAULT '',
	counts        TEXT NOT NULL,
	one_month     TEXT NOT NULL,
	three_month   TEXT NOT NULL,
	on_probation  INTEGER NOT NULL,
	on_regression INTEGER NOT NULL,
	missing_code  INTEGER NOT NULL,
	tier          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_members_run ON member_results(run_id);
CREATE INDEX IF NOT EXISTS idx_members_name ON member_results(name);
`

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// One writer at a time; sqlite serialises writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &DB{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (d *DB) Close() error { return d.db.Close() }

// SaveReport stores r and all of its members in one transaction and returns
// the new run ID.
func (d *DB) SaveReport(ctx context.Context, r *types.Report) (string, error) {
	id := uuid.NewString()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO report_runs (id, roster_id, target_month, generated_at, received_at, total,
			one_month_failures, three_month_failures, probation, regression, missing, errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.RosterID, r.TargetMonth, r.GeneratedAt.UTC(), d.now().UTC(), r.Total,
		len(r.OneMonthFailures), len(r.ThreeMonthFailures), len(r.Probation),
		len(r.Regression), len(r.Missing), len(r.Errors),
	)
	if err != nil {
		return "", fmt.Errorf("history: insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO member_results (run_id, name, position_code, raw_code, counts,
			one_month, three_month, on_probation, on_regression, missing_code, tier)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return "", fmt.Errorf("history: prepare member insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range r.Members {
		counts, err := json.Marshal(m.Record.Counts)
		if err != nil {
			return "", fmt.Errorf("history: encode counts for %q: %w", m.Record.Name, err)
		}
		c := m.Classification
		_, err = stmt.ExecContext(ctx,
			id, m.Record.Name, m.Record.PositionCode, m.Record.RawCode, string(counts),
			string(c.OneMonth), string(c.ThreeMonth), c.OnProbation, c.OnRegression, c.MissingCode,
			string(m.Tier),
		)
		if err != nil {
			return "", fmt.Errorf("history: insert member %q: %w", m.Record.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("history: commit: %w", err)
	}
	return id, nil
}

const runColumns = `id, roster_id, target_month, generated_at, received_at, total,
	one_month_failures, three_month_failures, probation, regression, missing, errors`

// ListRuns returns up to limit runs, newest first. An empty rosterID lists
// every roster.
func (d *DB) ListRuns(ctx context.Context, rosterID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := `SELECT ` + runColumns + ` FROM report_runs`
	args := []any{}
	if rosterID != "" {
		q += ` WHERE roster_id = ?`
		args = append(args, rosterID)
	}
	q += ` ORDER BY generated_at DESC, received_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns the summary of one run.
func (d *DB) GetRun(ctx context.Context, id string) (Run, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM report_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}

// MemberHistory returns every stored outcome for the named member, oldest
// first. An empty rosterID searches every roster.
func (d *DB) MemberHistory(ctx context.Context, rosterID, name string) ([]MemberEntry, error) {
	q := `SELECT r.id, r.roster_id, r.target_month, r.generated_at,
			m.name, m.position_code, m.raw_code, m.counts,
			m.one_month, m.three_month, m.on_probation, m.on_regression, m.missing_code, m.tier
		 FROM member_results m JOIN report_runs r ON r.id = m.run_id
		 WHERE m.name = ?`
	args := []any{name}
	if rosterID != "" {
		q += ` AND r.roster_id = ?`
		args = append(args, rosterID)
	}
	q += ` ORDER BY r.generated_at ASC, m.id ASC`

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: member history: %w", err)
	}
	defer rows.Close()

	out := []MemberEntry{}
	for rows.Next() {
		var (
			e                MemberEntry
			counts, one, thr string
			prob, regr, miss bool
			tier             string
		)
		err := rows.Scan(&e.RunID, &e.RosterID, &e.TargetMonth, &e.GeneratedAt,
			&e.Record.Name, &e.Record.PositionCode, &e.Record.RawCode, &counts,
			&one, &thr, &prob, &regr, &miss, &tier)
		if err != nil {
			return nil, fmt.Errorf("history: scan member: %w", err)
		}
		if err := json.Unmarshal([]byte(counts), &e.Record.Counts); err != nil {
			return nil, fmt.Errorf("history: decode counts: %w", err)
		}
		e.Classification = types.Classification{
			OneMonth:     types.Result(one),
			ThreeMonth:   types.Result(thr),
			OnProbation:  prob,
			OnRegression: regr,
			MissingCode:  miss,
		}
		e.Tier = types.Tier(tier)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RunRetention deletes runs generated more than retention ago, once at start
// and then periodically, until ctx is cancelled. A non-positive retention
// keeps every run.
func (d *DB) RunRetention(ctx context.Context, retention time.Duration) {
	if retention <= 0 {
		<-ctx.Done()
		return
	}
	interval := retention / 24
	if interval < time.Minute {
		interval = time.Minute
	} else if interval > time.Hour {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		n, err := d.Prune(ctx, d.now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			slog.Warn("history: retention prune failed", "err", err)
		case n > 0:
			slog.Info("history: pruned expired runs", "count", n, "retention", retention)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Prune deletes runs generated before cutoff and returns how many were removed.
func (d *DB) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM report_runs WHERE generated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run                                   Run
		one, three, prob, regr, miss, errsCnt int
	)
	err := s.Scan(&run.ID, &run.RosterID, &run.TargetMonth, &run.GeneratedAt, &run.ReceivedAt, &run.Total,
		&one, &three, &prob, &regr, &miss, &errsCnt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("history: scan run: %w", err)
	}
	run.Counts = map[string]int{
		types.CategoryOneMonthFailure:   one,
		types.CategoryThreeMonthFailure: three,
		types.CategoryProbation:         prob,
		types.CategoryRegression:        regr,
		types.CategoryMissing:           miss,
		types.CategoryError:             errsCnt,
	}
	return run, nil
}
