// Package render writes a finished report in one of the supported output
// formats: text (the operator console layout), json, yaml or csv.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
	"gopkg.in/yaml.v3"

	"github.com/raptrack/raptrack/pkg/fiscal"
	"github.com/raptrack/raptrack/pkg/types"
)

// Formats lists the accepted format names.
var Formats = []string{"text", "json", "yaml", "csv"}

// Render writes r to w in the named format.
func Render(w io.Writer, format string, r *types.Report) error {
	switch format {
	case "text", "":
		return Text(w, r)
	case "json":
		return JSON(w, r)
	case "yaml":
		return YAML(w, r)
	case "csv":
		return CSV(w, r)
	default:
		return fmt.Errorf("render: unknown format %q", format)
	}
}

// Text writes one line per member followed by the populated category lists.
func Text(w io.Writer, r *types.Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "RAP Report: %s (fiscal month %d, %s)\n\n", r.RosterID, r.TargetMonth, fiscal.MonthName(r.TargetMonth))
	for i, m := range r.Members {
		c := m.Classification
		fmt.Fprintf(&b, "%d Name: %s, Code: %s, 1-Month: %s, 3-Month: %s, Probation: %s, Regression: %s\n",
			i+1, m.Record.Name, m.Record.RawCode, c.OneMonth, c.ThreeMonth, yesNo(c.OnProbation), yesNo(c.OnRegression))
	}
	fmt.Fprintf(&b, "\nTotal Members: %d\n", r.Total)

	section(&b, "One Month Failures", r.OneMonthFailures)
	section(&b, "Probation List", r.Probation)
	section(&b, "Regression List", r.Regression)
	section(&b, "Missing List", r.Missing)
	section(&b, "Errors", r.Errors)

	_, err := io.WriteString(w, b.String())
	return err
}

func section(b *strings.Builder, title string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('\n')
	}
}

func yesNo(v bool) string {
	if v {
		return "YES"
	}
	return "NO"
}

// JSON writes r as indented JSON.
func JSON(w io.Writer, r *types.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("render: json: %w", err)
	}
	return nil
}

// YAML writes r as a YAML document.
func YAML(w io.Writer, r *types.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("render: yaml: %w", err)
	}
	return enc.Close()
}

// Row is the flat per-member shape used by the CSV export.
type Row struct {
	Name         string `csv:"name"`
	RawCode      string `csv:"raw_code"`
	PositionCode string `csv:"position_code"`
	OneMonth     string `csv:"one_month"`
	ThreeMonth   string `csv:"three_month"`
	Probation    bool   `csv:"probation"`
	Regression   bool   `csv:"regression"`
	MissingCode  bool   `csv:"missing_code"`
	Tier         string `csv:"tier"`
}

// Rows flattens the members of r in roster order.
func Rows(r *types.Report) []Row {
	rows := make([]Row, len(r.Members))
	for i, m := range r.Members {
		c := m.Classification
		rows[i] = Row{
			Name:         m.Record.Name,
			RawCode:      m.Record.RawCode,
			PositionCode: m.Record.PositionCode,
			OneMonth:     string(c.OneMonth),
			ThreeMonth:   string(c.ThreeMonth),
			Probation:    c.OnProbation,
			Regression:   c.OnRegression,
			MissingCode:  c.MissingCode,
			Tier:         string(m.Tier),
		}
	}
	return rows
}

// CSV writes one row per member with a header line.
func CSV(w io.Writer, r *types.Report) error {
	rows := Rows(r)
	if len(rows) == 0 {
		h, err := csvutil.Header(Row{}, "csv")
		if err != nil {
			return fmt.Errorf("render: csv header: %w", err)
		}
		_, err = io.WriteString(w, strings.Join(h, ",")+"\n")
		return err
	}
	b, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("render: csv: %w", err)
	}
	_, err = w.Write(b)
	return err
}
