package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/raptrack/raptrack/pkg/lookback"
	"github.com/raptrack/raptrack/pkg/metrics"
	"github.com/raptrack/raptrack/pkg/threshold"
	"github.com/raptrack/raptrack/pkg/types"
	"github.com/raptrack/raptrack/server/internal/alerts"
	"github.com/raptrack/raptrack/server/internal/history"
	"github.com/raptrack/raptrack/server/internal/store"
)

// HistoryReader is the read side of the report history.
type HistoryReader interface {
	ListRuns(ctx context.Context, rosterID string, limit int) ([]history.Run, error)
	GetRun(ctx context.Context, id string) (history.Run, error)
	MemberHistory(ctx context.Context, rosterID, name string) ([]history.MemberEntry, error)
}

// AlertLister returns the alerts shown by GET /api/v1/alerts.
type AlertLister interface {
	Active() []*alerts.Alert
}

// Ingester accepts reports over HTTP; *receiver.Receiver implements it.
type Ingester interface {
	ServeReport(w http.ResponseWriter, r *http.Request)
	ServeEvaluate(w http.ResponseWriter, r *http.Request)
}

// Options wires a Handler. Store and Registry are required; a nil History,
// Alerts or Ingester disables the endpoints that need it.
type Options struct {
	Store    *store.Store
	Registry func() *threshold.Registry
	History  HistoryReader
	Alerts   AlertLister
	Ingester Ingester
}

// Handler is the HTTP handler for all /api/v1/* endpoints and /metrics.
type Handler struct {
	opts Options
	mux  *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(opts Options) http.Handler {
	h := &Handler{opts: opts, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/reports", h.reports)
	h.mux.HandleFunc("/api/v1/reports/", h.report) // subtree: {id} and {id}/members/{name}
	h.mux.HandleFunc("/api/v1/thresholds", h.thresholds)
	h.mux.HandleFunc("/api/v1/history", h.history)
	h.mux.HandleFunc("/api/v1/history/", h.historyRun) // subtree: {run_id}
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/rosters/", h.evaluate) // subtree: {id}/evaluate
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: roster count and category totals.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	reports := h.opts.Store.Reports()
	resp := HealthResponse{
		RosterCount:    len(reports),
		ThresholdCodes: h.opts.Registry().Len(),
	}
	for _, rep := range reports {
		resp.TotalMembers += rep.Total
		resp.RegressionCount += len(rep.Regression)
		resp.ProbationCount += len(rep.Probation)
		resp.OneMonthFailures += len(rep.OneMonthFailures)
		resp.ThreeMonthFailures += len(rep.ThreeMonthFailures)
		resp.MissingCount += len(rep.Missing)
		resp.ErrorCount += len(rep.Errors)
	}
	if h.opts.Alerts != nil {
		for _, a := range h.opts.Alerts.Active() {
			if a.State == alerts.StateFiring {
				resp.AlertCount++
			}
		}
	}
	resp.State = stateOf(resp)
	jsonResp(w, http.StatusOK, resp)
}

// reports serves GET /api/v1/reports (all live reports) and
// POST /api/v1/reports (ingest).
func (h *Handler) reports(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries := h.opts.Store.List()
		out := make([]ReportResponse, 0, len(entries))
		for _, e := range entries {
			out = append(out, toReportResponse(e))
		}
		jsonResp(w, http.StatusOK, out)
	case http.MethodPost:
		if h.opts.Ingester == nil {
			jsonErr(w, http.StatusServiceUnavailable, "ingest disabled")
			return
		}
		h.opts.Ingester.ServeReport(w, r)
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// report serves GET /api/v1/reports/{id} and
// GET /api/v1/reports/{id}/members/{name}.
func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/reports/")
	if rest == "" {
		h.reports(w, r)
		return
	}
	id, name, hasMember := strings.Cut(rest, "/members/")
	if strings.Contains(id, "/") {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}

	e, ok := h.opts.Store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "report not found")
		return
	}
	if !hasMember {
		jsonResp(w, http.StatusOK, toReportResponse(e))
		return
	}

	m, ok := findMember(e.Report, name)
	if !ok {
		jsonErr(w, http.StatusNotFound, "member not found")
		return
	}
	jsonResp(w, http.StatusOK, h.memberResponse(e.Report, m))
}

// thresholds returns GET /api/v1/thresholds: the active code table.
func (h *Handler) thresholds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.opts.Registry().Entries())
}

// history serves GET /api/v1/history?roster=&limit= (runs, newest first)
// and GET /api/v1/history?member=&roster= (one member over time).
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	if !h.historyReady(w, r) {
		return
	}

	q := r.URL.Query()
	roster := q.Get("roster")

	if member := q.Get("member"); member != "" {
		entries, err := h.opts.History.MemberHistory(r.Context(), roster, member)
		if err != nil {
			internalErr(w, err)
			return
		}
		jsonResp(w, http.StatusOK, entries)
		return
	}

	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := h.opts.History.ListRuns(r.Context(), roster, limit)
	if err != nil {
		internalErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, runs)
}

// historyRun returns GET /api/v1/history/{run_id}.
func (h *Handler) historyRun(w http.ResponseWriter, r *http.Request) {
	if !h.historyReady(w, r) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/history/")
	if id == "" {
		h.history(w, r)
		return
	}
	run, err := h.opts.History.GetRun(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		jsonErr(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		internalErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, run)
}

// alerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := []*alerts.Alert{}
	if h.opts.Alerts != nil {
		out = append(out, h.opts.Alerts.Active()...)
	}
	jsonResp(w, http.StatusOK, out)
}

// evaluate forwards POST /api/v1/rosters/{id}/evaluate to the ingester.
func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ingester == nil {
		jsonErr(w, http.StatusServiceUnavailable, "ingest disabled")
		return
	}
	h.opts.Ingester.ServeEvaluate(w, r)
}

// metrics returns GET /metrics: Prometheus text exposition of all live reports.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", metrics.ContentType())
	if err := metrics.Write(w, h.opts.Store.Reports()...); err != nil {
		slog.Warn("api: write metrics", "err", err)
	}
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) historyReady(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if h.opts.History == nil {
		jsonErr(w, http.StatusServiceUnavailable, "history disabled")
		return false
	}
	return true
}

func (h *Handler) memberResponse(rep *types.Report, m types.MemberResult) MemberResponse {
	entry, known := h.opts.Registry().Lookup(m.Record.PositionCode)
	windows := lookback.WindowsOf(m.Record, rep.TargetMonth)
	resp := MemberResponse{
		RosterID:    rep.RosterID,
		TargetMonth: rep.TargetMonth,
		Member:      m,
		Windows:     windows,
		Diagnostics: computeDiagnostics(entry, known, m, windows, rep.TargetMonth),
	}
	if known {
		resp.Threshold = &entry
	}
	return resp
}

// findMember matches name exactly first, then case-insensitively.
func findMember(rep *types.Report, name string) (types.MemberResult, bool) {
	for _, m := range rep.Members {
		if m.Record.Name == name {
			return m, true
		}
	}
	for _, m := range rep.Members {
		if strings.EqualFold(m.Record.Name, name) {
			return m, true
		}
	}
	return types.MemberResult{}, false
}

func stateOf(h HealthResponse) string {
	switch {
	case h.RosterCount == 0:
		return "unknown"
	case h.RegressionCount > 0:
		return "critical"
	case h.ProbationCount > 0 || h.OneMonthFailures > 0:
		return "degraded"
	default:
		return "healthy"
	}
}

func toReportResponse(e *store.Entry) ReportResponse {
	return ReportResponse{Report: e.Report, ReceivedAt: e.UpdatedAt.UTC()}
}

func internalErr(w http.ResponseWriter, err error) {
	slog.Error("api: request failed", "err", err)
	jsonErr(w, http.StatusInternalServerError, "internal error")
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
