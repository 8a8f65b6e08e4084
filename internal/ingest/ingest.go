// Package ingest reads bank transaction spreadsheets into tables the
// rest of the pipeline can work with. The source format has a fixed,
// direction-dependent number of decorative rows above the header and
// Cyrillic column names; both are handled here so downstream packages
// only ever see cleaned headers.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/offshore-radar/internal/txn"
)

// ErrNotFound reports a missing input file.
var ErrNotFound = errors.New("input file not found")

// ParseError reports a workbook that could not be decoded or contained
// no data rows after cleanup. It is fatal for that file only.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse spreadsheet: %v", e.Err)
	}
	return fmt.Sprintf("parse spreadsheet %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Row is one spreadsheet row keyed by cleaned header name.
type Row map[string]string

// Table is a parsed spreadsheet: ordered headers plus data rows. Fully
// empty rows are already dropped.
type Table struct {
	Direction txn.Direction
	Headers   []string
	Rows      []Row
}

// Report describes how well a parsed table matches the expected format.
// Missing expected columns are a warning for the operator, not a failure;
// the pipeline degrades gracefully when the source format drifts.
type Report struct {
	TotalRows        int      `json:"total_rows"`
	ColumnsFound     int      `json:"columns_found"`
	ColumnsExpected  int      `json:"columns_expected"`
	MissingColumns   []string `json:"missing_columns"`
	ExtraColumns     []string `json:"extra_columns"`
	EmptyAmountCells int      `json:"empty_amount_cells"`
}

// ParseFile reads the spreadsheet at path for the given direction.
// Returns ErrNotFound when the path does not exist and *ParseError when
// the workbook cannot be decoded or holds no data.
func ParseFile(path string, direction txn.Direction) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("ParseFile: open %s: %w", path, err)
	}
	defer f.Close()

	t, err := Parse(f, direction)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return t, nil
}

// Parse decodes a spreadsheet from r. The header row sits below a fixed
// number of decorative rows; repeated whitespace inside header names is
// collapsed and fully empty data rows are dropped.
func Parse(r io.Reader, direction txn.Direction) (*Table, error) {
	if !direction.Valid() {
		return nil, fmt.Errorf("Parse: unknown direction %q", direction)
	}

	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("decode workbook: %w", err)}
	}
	defer wb.Close()

	sheet := wb.GetSheetName(0)
	if sheet == "" {
		return nil, &ParseError{Err: errors.New("workbook has no sheets")}
	}

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("read sheet %q: %w", sheet, err)}
	}

	offset := headerOffset(direction)
	if len(rows) <= offset {
		return nil, &ParseError{Err: fmt.Errorf("no header row: sheet has %d rows, header expected at row %d", len(rows), offset+1)}
	}

	headers := make([]string, len(rows[offset]))
	for i, h := range rows[offset] {
		headers[i] = CollapseWhitespace(h)
	}

	t := &Table{
		Direction: direction,
		Headers:   namedHeaders(headers),
	}

	for _, raw := range rows[offset+1:] {
		if rowEmpty(raw) {
			continue
		}
		row := make(Row, len(t.Headers))
		for i, name := range headers {
			if name == "" {
				continue
			}
			if i < len(raw) {
				row[name] = strings.TrimSpace(raw[i])
			} else {
				row[name] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}

	if len(t.Rows) == 0 {
		return nil, &ParseError{Err: errors.New("no data rows after removing empty rows")}
	}

	return t, nil
}

// Validate diffs the table's headers against the expected set for its
// direction and collects basic statistics.
func (t *Table) Validate() Report {
	expected := ExpectedColumns(t.Direction)

	found := make(map[string]bool, len(t.Headers))
	for _, h := range t.Headers {
		found[h] = true
	}
	want := make(map[string]bool, len(expected))
	for _, h := range expected {
		want[h] = true
	}

	rep := Report{
		TotalRows:       len(t.Rows),
		ColumnsFound:    len(t.Headers),
		ColumnsExpected: len(expected),
	}

	for _, h := range expected {
		if !found[h] {
			rep.MissingColumns = append(rep.MissingColumns, h)
		}
	}
	for _, h := range t.Headers {
		if !want[h] {
			rep.ExtraColumns = append(rep.ExtraColumns, h)
		}
	}
	sort.Strings(rep.MissingColumns)
	sort.Strings(rep.ExtraColumns)

	for _, row := range t.Rows {
		if !hasNumericContent(row[ColAmountKZT]) {
			rep.EmptyAmountCells++
		}
	}

	return rep
}

// CollapseWhitespace trims a header name and squeezes internal runs of
// whitespace (including line breaks from merged header cells) to single
// spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func namedHeaders(headers []string) []string {
	var out []string
	for _, h := range headers {
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

func rowEmpty(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func hasNumericContent(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
