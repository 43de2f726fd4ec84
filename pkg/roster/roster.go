// Package roster parses the monthly flight-count export into lookback
// records.
//
// The export has two header rows, then one row per crew member:
//
//	name, crew code field, Oct, Nov, Dec, Jan, … , Sep
//
// Columns past the twelfth month are ignored. The position code is the
// three characters after the first one in the crew code field
// ("(KAN)" → "KAN", "MISSING" → "ISS"). Rows are decoded with csvutil
// against a synthetic header because the export's own header rows are not
// machine-readable.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/raptrack/raptrack/pkg/types"
)

// DefaultHeaderRows is the number of leading rows the export uses for titles.
const DefaultHeaderRows = 2

// columns is name + code + twelve months.
const columns = 2 + types.MonthsPerYear

// ErrEmpty is returned when the input ends before the header rows do.
var ErrEmpty = errors.New("roster: input has no header rows")

// header is the synthetic header fed to csvutil; it must match row's tags.
var header = []string{
	"name", "code",
	"oct", "nov", "dec", "jan", "feb", "mar",
	"apr", "may", "jun", "jul", "aug", "sep",
}

// Options controls parsing.
type Options struct {
	// HeaderRows is the number of rows skipped before member data.
	// Zero means DefaultHeaderRows; use a negative value to skip none.
	HeaderRows int
}

// RowError describes a row that could not be turned into a Record.
// Line is the 1-based line in the input file where the row starts.
type RowError struct {
	Line int
	Name string
	Err  error
}

func (e *RowError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("roster: line %d (%s): %v", e.Line, e.Name, e.Err)
	}
	return fmt.Sprintf("roster: line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Count is a monthly flight count cell. Blank cells decode as zero.
type Count int

// UnmarshalCSV implements csvutil.Unmarshaler.
func (c *Count) UnmarshalCSV(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*c = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("flight count %q is not a whole number", s)
	}
	if n < 0 {
		return fmt.Errorf("flight count %d is negative", n)
	}
	*c = Count(n)
	return nil
}

// MarshalCSV implements csvutil.Marshaler.
func (c Count) MarshalCSV() ([]byte, error) {
	return []byte(strconv.Itoa(int(c))), nil
}

// row is one decoded export line.
type row struct {
	Name string `csv:"name"`
	Code string `csv:"code"`
	Oct  Count  `csv:"oct"`
	Nov  Count  `csv:"nov"`
	Dec  Count  `csv:"dec"`
	Jan  Count  `csv:"jan"`
	Feb  Count  `csv:"feb"`
	Mar  Count  `csv:"mar"`
	Apr  Count  `csv:"apr"`
	May  Count  `csv:"may"`
	Jun  Count  `csv:"jun"`
	Jul  Count  `csv:"jul"`
	Aug  Count  `csv:"aug"`
	Sep  Count  `csv:"sep"`
}

func (r row) record() types.Record {
	return types.Record{
		Name:         strings.TrimSpace(r.Name),
		PositionCode: ExtractCode(r.Code),
		RawCode:      r.Code,
		Counts: [types.MonthsPerYear]int{
			int(r.Oct), int(r.Nov), int(r.Dec), int(r.Jan), int(r.Feb), int(r.Mar),
			int(r.Apr), int(r.May), int(r.Jun), int(r.Jul), int(r.Aug), int(r.Sep),
		},
	}
}

// ExtractCode returns characters 1 through 3 of the raw crew code field.
// Fields shorter than four characters yield a shorter, usually unknown, code.
func ExtractCode(raw string) string {
	r := []rune(raw)
	if len(r) <= 1 {
		return ""
	}
	end := 4
	if len(r) < end {
		end = len(r)
	}
	return string(r[1:end])
}

// Parse reads every member row from r using default options.
func Parse(r io.Reader) ([]types.Record, error) {
	return ParseWith(r, Options{})
}

// ParseWith reads every member row from r.
//
// Well-formed rows are always returned. Rows that fail to decode are
// skipped and reported together as a joined error of *RowError values, so
// one bad row never hides the rest of the roster. Blank rows are ignored.
// A non-nil error with a nil slice means the input itself was unreadable.
func ParseWith(r io.Reader, opts Options) ([]types.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	skip := opts.HeaderRows
	if skip == 0 {
		skip = DefaultHeaderRows
	}
	for i := 0; i < skip; i++ {
		if _, err := cr.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrEmpty
			}
			return nil, fmt.Errorf("roster: read header: %w", err)
		}
	}

	src := &lineReader{r: cr}
	dec, err := csvutil.NewDecoder(src, header...)
	if err != nil {
		return nil, fmt.Errorf("roster: build decoder: %w", err)
	}

	records := []types.Record{}
	var rowErrs []error
	for {
		var v row
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, &RowError{Line: src.line, Name: src.name(), Err: err})
			continue
		}
		if src.blank {
			continue
		}
		records = append(records, v.record())
	}
	return records, errors.Join(rowErrs...)
}

// lineReader adapts csv.Reader for csvutil: it tracks the file line of the
// current record,
// drops columns past the last month and flags blank rows.
type lineReader struct {
	r     *csv.Reader
	line  int
	last  []string
	blank bool
}

func (lr *lineReader) Read() ([]string, error) {
	rec, err := lr.r.Read()
	if errors.Is(err, io.EOF) {
		return nil, err
	}
	if err != nil {
		// csv.Reader resumes at the next line after a *csv.ParseError.
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			lr.line = pe.StartLine
		} else {
			lr.line++
		}
		lr.last, lr.blank = nil, false
		return nil, err
	}
	// csv.Reader skips empty lines, so counting records drifts from the file.
	lr.line, _ = lr.r.FieldPos(0)
	if len(rec) > columns {
		rec = rec[:columns]
	}
	lr.last = rec
	lr.blank = isBlank(rec)
	if lr.blank {
		// Spreadsheet exports pad the end with empty rows; keep csvutil happy.
		rec = make([]string, columns)
	} else if len(rec) < columns {
		return rec, fmt.Errorf("row has %d columns, want %d", len(rec), columns)
	}
	return rec, nil
}

func (lr *lineReader) name() string {
	if len(lr.last) == 0 {
		return ""
	}
	return strings.TrimSpace(lr.last[0])
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
