// Package metrics exports reports as Prometheus gauges in the text
// exposition format. The reporter writes them to a node_exporter textfile;
// the server serves them on /metrics.
package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/raptrack/raptrack/pkg/lookback"
	"github.com/raptrack/raptrack/pkg/types"
)

// Metric family names.
const (
	MembersTotal    = "rap_members_total"
	CategoryMembers = "rap_category_members"
	MemberTier      = "rap_member_tier"
	ReportTimestamp = "rap_report_generated_timestamp_seconds"
)

// Families converts reports into metric families, sorted by family name.
// Every series carries a roster label so several rosters can share a scrape.
func Families(reports ...*types.Report) []*dto.MetricFamily {
	total := family(MembersTotal, "Number of members evaluated in the latest report.")
	cats := family(CategoryMembers, "Number of members in each report category.")
	tiers := family(MemberTier, "Per-member display tier; value is the tier severity (0 = OK).")
	ts := family(ReportTimestamp, "Unix time the latest report was generated.")

	for _, r := range reports {
		roster := label("roster", r.RosterID)
		total.Metric = append(total.Metric, gauge(float64(r.Total), roster))
		ts.Metric = append(ts.Metric, gauge(float64(r.GeneratedAt.Unix()), roster))

		counts := r.Counts()
		for _, c := range types.Categories() {
			cats.Metric = append(cats.Metric, gauge(float64(counts[c]), roster, label("category", c)))
		}
		for _, m := range r.Members {
			tiers.Metric = append(tiers.Metric, gauge(float64(lookback.Severity(m.Tier)),
				roster,
				label("name", m.Record.Name),
				label("position", m.Record.PositionCode),
				label("tier", string(m.Tier)),
			))
		}
	}

	out := []*dto.MetricFamily{total, cats, tiers, ts}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// Write encodes the families for reports to w in text exposition format.
func Write(w io.Writer, reports ...*types.Report) error {
	for _, mf := range Families(reports...) {
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteTextfile writes reports to path atomically (temp file + rename) so
// the textfile collector never reads a partial file.
func WriteTextfile(path string, reports ...*types.Report) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("metrics: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, reports...); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metrics: close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("metrics: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("metrics: rename: %w", err)
	}
	return nil
}

// ContentType is the media type of Write's output.
func ContentType() string {
	return string(expfmt.NewFormat(expfmt.TypeTextPlain))
}

func family(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: ptr(name),
		Help: ptr(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func gauge(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: ptr(v)},
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: ptr(name), Value: ptr(value)}
}

func ptr[T any](v T) *T { return &v }
