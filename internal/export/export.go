// Package export writes annotated result workbooks: the filtered input
// rows with one trailing verdict column, plus summary statistics over
// the verdicts.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/offshore-radar/internal/classify"
	"github.com/dvloznov/offshore-radar/internal/ingest"
	"github.com/dvloznov/offshore-radar/internal/txn"
)

// ResultColumn is the verdict column appended to the source columns.
const ResultColumn = "Результат"

var sheetNames = map[txn.Direction]string{
	txn.Incoming: "Входящие операции",
	txn.Outgoing: "Исходящие операции",
}

// SheetName returns the output sheet name for a direction.
func SheetName(d txn.Direction) string {
	if name, ok := sheetNames[d]; ok {
		return name
	}
	return "Операции"
}

// ExportError reports a failed export: either a row/result length
// mismatch, which is a programming error upstream, or a write failure.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("export: %v", e.Err)
	}
	return fmt.Sprintf("export %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// FormatResult renders the verdict cell: translated label, confidence
// percentage and reasoning, pipe-delimited, with up to three source
// URLs and an error suffix when the result carries one.
func FormatResult(r classify.Result) string {
	conf := r.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Итог: %s | Уверенность: %d%% | Объяснение: %s", r.Label.Russian(), int(conf*100), r.Reasoning)

	if len(r.Sources) > 0 {
		shown := r.Sources
		if len(shown) > 3 {
			shown = shown[:3]
		}
		b.WriteString(" | Источники: " + strings.Join(shown, "; "))
		if extra := len(r.Sources) - 3; extra > 0 {
			fmt.Fprintf(&b, " (+%d ещё)", extra)
		}
	}

	if r.Err != "" {
		b.WriteString(" | ОШИБКА: " + r.Err)
	}

	return b.String()
}

// Write produces the annotated workbook at path. Rows and results must
// be the same length and in the same order; a mismatch means the
// orchestrator's coverage guarantee was broken upstream.
func Write(table *ingest.Table, results []classify.Result, path string) error {
	if len(table.Rows) != len(results) {
		return &ExportError{Path: path, Err: fmt.Errorf("row count %d does not match result count %d", len(table.Rows), len(results))}
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := SheetName(table.Direction)
	f.SetSheetName(f.GetSheetName(0), sheet)

	headers := make([]interface{}, 0, len(table.Headers)+1)
	for _, h := range table.Headers {
		headers = append(headers, h)
	}
	headers = append(headers, ResultColumn)
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return &ExportError{Path: path, Err: err}
	}

	for i, row := range table.Rows {
		cells := make([]interface{}, 0, len(headers))
		for _, h := range table.Headers {
			cells = append(cells, row[h])
		}
		cells = append(cells, FormatResult(results[i]))

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return &ExportError{Path: path, Err: err}
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return &ExportError{Path: path, Err: err}
		}
	}

	if err := styleResultColumn(f, sheet, len(table.Headers)+1, len(table.Rows)); err != nil {
		return &ExportError{Path: path, Err: err}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &ExportError{Path: path, Err: err}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	return nil
}

// styleResultColumn widens the verdict column and wraps its text so
// long reasonings stay readable.
func styleResultColumn(f *excelize.File, sheet string, col, rows int) error {
	name, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, name, name, 80); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return err
	}

	top, err := excelize.CoordinatesToCellName(col, 2)
	if err != nil {
		return err
	}
	bottom, err := excelize.CoordinatesToCellName(col, rows+1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, top, bottom, style)
}

// Summary is the label histogram over one file's results.
type Summary struct {
	Total   int                    `json:"total"`
	Labels  map[classify.Label]int `json:"labels"`
	Errored int                    `json:"errored"`
}

// Stats computes the verdict histogram and error count.
func Stats(results []classify.Result) Summary {
	s := Summary{
		Total:  len(results),
		Labels: make(map[classify.Label]int, 3),
	}
	for i := range results {
		s.Labels[results[i].Label]++
		if results[i].Errored() {
			s.Errored++
		}
	}
	return s
}

// OutputFilename builds a timestamped output path under basePath.
func OutputFilename(direction txn.Direction, basePath string) string {
	ts := time.Now().Format("2006-01-02T15-04-05")
	return filepath.Join(basePath, fmt.Sprintf("%s_transactions_processed_%s.xlsx", direction, ts))
}
