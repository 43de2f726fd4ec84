package receiver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/raptrack/raptrack/pkg/fiscal"
	"github.com/raptrack/raptrack/pkg/types"
)

// maxBody bounds accepted request bodies.
const maxBody = 8 << 20

// EvaluateResponse is the payload for POST /api/v1/rosters/{id}/evaluate.
type EvaluateResponse struct {
	types.IngestResponse
	SkippedRows []string `json:"skipped_rows,omitempty"`
}

// ServeReport handles POST /api/v1/reports with a JSON report body.
func (rc *Receiver) ServeReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var rep types.Report
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(&rep); err != nil {
		jsonErr(w, http.StatusBadRequest, "decode report: "+err.Error())
		return
	}

	resp, err := rc.Ingest(r.Context(), &rep)
	if err != nil {
		writeIngestErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, resp)
}

// ServeEvaluate handles POST /api/v1/rosters/{id}/evaluate?month=N with a
// roster CSV body. month accepts a fiscal month number or a month name;
// header_rows optionally overrides the number of title rows.
func (rc *Receiver) ServeEvaluate(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/rosters/")
	id, action, ok := strings.Cut(rest, "/")
	if !ok || action != "evaluate" || id == "" {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	target := fiscal.TargetMonth(rc.now())
	if m := q.Get("month"); m != "" {
		n, err := fiscal.ParseMonth(m)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		target = n
	}
	headerRows := 0
	if h := q.Get("header_rows"); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "header_rows must be an integer")
			return
		}
		headerRows = n
	}

	resp, rowErr, err := rc.EvaluateCSV(r.Context(), id, target, headerRows, http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeIngestErr(w, err)
		return
	}
	out := EvaluateResponse{IngestResponse: resp}
	if rowErr != nil {
		out.SkippedRows = strings.Split(rowErr.Error(), "\n")
	}
	jsonResp(w, http.StatusOK, out)
}

func writeIngestErr(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInvalid) {
		jsonResp(w, http.StatusBadRequest, types.IngestResponse{OK: false, Message: err.Error()})
		return
	}
	jsonResp(w, http.StatusInternalServerError, types.IngestResponse{OK: false, Message: err.Error()})
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, map[string]string{"error": msg})
}
