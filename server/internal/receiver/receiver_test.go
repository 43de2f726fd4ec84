package receiver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raptrack/raptrack/pkg/report"
	"github.com/raptrack/raptrack/pkg/threshold"
	"github.com/raptrack/raptrack/pkg/types"
	"github.com/raptrack/raptrack/server/internal/store"
)

type fakeHistory struct {
	mu    sync.Mutex
	saved []*types.Report
	err   error
}

func (f *fakeHistory) SaveReport(_ context.Context, r *types.Report) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, r)
	return "run-" + r.RosterID, nil
}

type fakeAlerts struct{ seen []*types.Report }

func (f *fakeAlerts) Evaluate(r *types.Report) { f.seen = append(f.seen, r) }

type fakeNotifier struct{ n int }

func (f *fakeNotifier) Notify() { f.n++ }

type fixture struct {
	rc      *Receiver
	store   *store.Store
	history *fakeHistory
	alerts  *fakeAlerts
	notify  *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.New(0),
		history: &fakeHistory{},
		alerts:  &fakeAlerts{},
		notify:  &fakeNotifier{},
	}
	reg := threshold.Default()
	f.rc = New(Options{
		Store:    f.store,
		Registry: func() *threshold.Registry { return reg },
		History:  f.history,
		Alerts:   f.alerts,
		Notifier: f.notify,
		Workers:  2,
	})
	f.rc.now = func() time.Time { return time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC) }
	return f
}

// tampered returns a report whose member claims OK but whose counts say regression.
func tampered() *types.Report {
	rec := types.Record{Name: "Roe", PositionCode: "KBE", RawCode: "GKBEA"}
	r := report.Build("22-ars", 6, []types.MemberResult{{
		Record:         rec,
		Classification: types.Classification{OneMonth: types.Pass, ThreeMonth: types.Pass},
		Tier:           types.TierOK,
	}}, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
	return r
}

func TestIngest_ReclassifiesAndFansOut(t *testing.T) {
	f := newFixture(t)

	resp, err := f.rc.Ingest(context.Background(), tampered())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !resp.OK || resp.RunID != "run-22-ars" {
		t.Errorf("response: %+v", resp)
	}

	e, ok := f.store.Get("22-ars")
	if !ok {
		t.Fatal("report not stored")
	}
	if len(e.Report.Regression) != 1 || e.Report.Members[0].Tier != types.TierRegression {
		t.Errorf("server should reclassify members: %+v", e.Report)
	}
	if !e.Report.GeneratedAt.Equal(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("GeneratedAt should be preserved: %v", e.Report.GeneratedAt)
	}
	if len(f.history.saved) != 1 || len(f.alerts.seen) != 1 || f.notify.n != 1 {
		t.Errorf("fan-out: history=%d alerts=%d notify=%d", len(f.history.saved), len(f.alerts.seen), f.notify.n)
	}
}

func TestIngest_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		report *types.Report
	}{
		{"nil", nil},
		{"missing roster id", &types.Report{TargetMonth: 6}},
		{"month zero", &types.Report{RosterID: "a", TargetMonth: 0}},
		{"month thirteen", &types.Report{RosterID: "a", TargetMonth: 13}},
		{"nameless member", &types.Report{RosterID: "a", TargetMonth: 6, Members: []types.MemberResult{{}}}},
		{"negative count", &types.Report{RosterID: "a", TargetMonth: 6, Members: []types.MemberResult{{
			Record: types.Record{Name: "Roe", PositionCode: "KBE", Counts: types.MonthlyCounts{0, 0, -50, 0, 100}},
		}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if _, err := f.rc.Ingest(context.Background(), tc.report); !errors.Is(err, ErrInvalid) {
				t.Fatalf("want ErrInvalid, got %v", err)
			}
			if f.store.Count() != 0 {
				t.Error("invalid report must not be stored")
			}
		})
	}
}

func TestIngest_WithoutHistory(t *testing.T) {
	reg := threshold.Default()
	rc := New(Options{Store: store.New(0), Registry: func() *threshold.Registry { return reg }})
	resp, err := rc.Ingest(context.Background(), tampered())
	if err != nil || resp.RunID == "" {
		t.Fatalf("Ingest without history: %+v, %v", resp, err)
	}
}

func TestIngest_HistoryError(t *testing.T) {
	f := newFixture(t)
	f.history.err = errors.New("disk full")
	_, err := f.rc.Ingest(context.Background(), tampered())
	if err == nil || errors.Is(err, ErrInvalid) {
		t.Fatalf("want non-validation error, got %v", err)
	}
}

const rosterCSV = `title
header
Doe,GPAEA,3,3,3,3,3,,,,,,,
Roe,GKBEA,0,0,0,0,0,,,,,,,
Bad,GKANA,1,-2,1,1,1,,,,,,,
`

func TestEvaluateCSV(t *testing.T) {
	f := newFixture(t)
	resp, rowErr, err := f.rc.EvaluateCSV(context.Background(), "22-ars", 6, 0, strings.NewReader(rosterCSV))
	if err != nil {
		t.Fatalf("EvaluateCSV: %v", err)
	}
	if !resp.OK {
		t.Errorf("response: %+v", resp)
	}
	if rowErr == nil || !strings.Contains(rowErr.Error(), "Bad") {
		t.Errorf("row error should name the bad row: %v", rowErr)
	}
	e, _ := f.store.Get("22-ars")
	if e.Report.Total != 2 {
		t.Errorf("Total: got %d, want 2", e.Report.Total)
	}
}

func TestServeReport(t *testing.T) {
	f := newFixture(t)
	body, _ := json.Marshal(tampered())

	rec := httptest.NewRecorder()
	f.rc.ServeReport(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reports", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var resp types.IngestResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || !resp.OK {
		t.Errorf("response: %+v, %v", resp, err)
	}
}

func TestServeReport_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "{", http.StatusBadRequest},
		{"invalid report", http.MethodPost, `{"roster_id":"","target_month":6}`, http.StatusBadRequest},
		{"short counts", http.MethodPost, memberBody("[5]"), http.StatusBadRequest},
		{"long counts", http.MethodPost, memberBody("[0,0,0,0,0,0,0,0,0,0,0,0,1]"), http.StatusBadRequest},
		{"null counts", http.MethodPost, memberBody("null"), http.StatusBadRequest},
		{"negative count", http.MethodPost, memberBody("[0,0,-50,0,100,0,0,0,0,0,0,0]"), http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			rec := httptest.NewRecorder()
			f.rc.ServeReport(rec, httptest.NewRequest(tc.method, "/api/v1/reports", strings.NewReader(tc.body)))
			if rec.Code != tc.status {
				t.Errorf("status: got %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

// memberBody is a one-member report whose counts field is the raw JSON counts.
func memberBody(counts string) string {
	return `{"roster_id":"22-ars","target_month":6,"members":[{"record":` +
		`{"name":"Roe","position_code":"KBE","raw_code":"GKBEA","counts":` + counts + `}}]}`
}

func TestServeReport_FullCountsAccepted(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	body := memberBody("[1,1,1,1,1,1,1,1,1,1,1,2]")
	f.rc.ServeReport(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	e, ok := f.store.Get("22-ars")
	if !ok {
		t.Fatal("report not stored")
	}
	if got := e.Report.Members[0].Record.Counts; got[11] != 2 || got[0] != 1 {
		t.Errorf("counts: got %v", got)
	}
}

func TestServeReport_RejectedCountsNotStored(t *testing.T) {
	for _, counts := range []string{"[5]", "[0,0,-50,0,100,0,0,0,0,0,0,0]"} {
		f := newFixture(t)
		rec := httptest.NewRecorder()
		f.rc.ServeReport(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(memberBody(counts))))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("counts %s: status %d, want 400", counts, rec.Code)
		}
		if f.store.Count() != 0 || len(f.history.saved) != 0 || len(f.alerts.seen) != 0 {
			t.Errorf("counts %s: rejected report reached store, history or alerts", counts)
		}
	}
}

func TestServeEvaluate(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rosters/22-ars/evaluate?month=March", strings.NewReader(rosterCSV))
	f.rc.ServeEvaluate(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var resp EvaluateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.OK || len(resp.SkippedRows) != 1 {
		t.Errorf("response: %+v", resp)
	}
	if e, ok := f.store.Get("22-ars"); !ok || e.Report.TargetMonth != 6 {
		t.Errorf("stored report: %+v", e)
	}
}

func TestServeEvaluate_DefaultMonthFromClock(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.rc.ServeEvaluate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rosters/wing/evaluate", strings.NewReader(rosterCSV)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if e, _ := f.store.Get("wing"); e.Report.TargetMonth != 6 {
		t.Errorf("March clock should give fiscal month 6, got %d", e.Report.TargetMonth)
	}
}

func TestServeEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"unknown action", http.MethodPost, "/api/v1/rosters/a/delete", http.StatusNotFound},
		{"no id", http.MethodPost, "/api/v1/rosters//evaluate", http.StatusNotFound},
		{"wrong method", http.MethodGet, "/api/v1/rosters/a/evaluate", http.StatusMethodNotAllowed},
		{"bad month", http.MethodPost, "/api/v1/rosters/a/evaluate?month=Smarch", http.StatusBadRequest},
		{"bad header rows", http.MethodPost, "/api/v1/rosters/a/evaluate?header_rows=x", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			rec := httptest.NewRecorder()
			f.rc.ServeEvaluate(rec, httptest.NewRequest(tc.method, tc.path, strings.NewReader(rosterCSV)))
			if rec.Code != tc.status {
				t.Errorf("status: got %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

func TestServeEvaluate_EmptyBody(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.rc.ServeEvaluate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rosters/a/evaluate?month=6", strings.NewReader("")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}
