// Package normalize converts raw spreadsheet rows into canonical
// transaction records and applies the pre-classification filters.
// Every operation here is pure: filters return new tables and never
// write derived columns back into the source rows.
package normalize

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/offshore-radar/internal/ingest"
	"github.com/dvloznov/offshore-radar/internal/txn"
)

// CleanAmount parses a locale-punctuated amount cell. It strips spaces
// and non-breaking spaces, keeps digits, '.', '-' and ',' character by
// character so trailing currency markers like "KZT" are tolerated, then
// resolves commas: a Cyrillic-locale decimal comma becomes '.', grouping
// commas are dropped. Negative amounts come back as their absolute
// value. The second return is false when the cell holds no parseable
// number.
func CleanAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}

	s = strings.NewReplacer(" ", "", "\u00a0", "").Replace(s)

	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' || r == ',' {
			b.WriteRune(r)
		}
	}
	cleaned := decimalizeComma(b.String())
	if cleaned == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d.Abs(), true
}

// decimalizeComma resolves the locale-ambiguous comma: when no '.' is
// present and the final comma is followed by one or two digits, it is
// the decimal separator ("5000000,00" -> "5000000.00"); every other
// comma is a thousands separator ("1,234,567") and is dropped.
func decimalizeComma(s string) string {
	if i := strings.LastIndexByte(s, ','); i >= 0 && !strings.ContainsRune(s, '.') {
		frac := s[i+1:]
		if len(frac) >= 1 && len(frac) <= 2 && isDigits(frac) {
			s = s[:i] + "." + frac
		}
	}
	return strings.ReplaceAll(s, ",", "")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// FilterByThreshold returns a new table retaining only rows whose
// cleaned KZT amount is present and at least threshold. Amounts are
// recomputed from the source cell on every call, so filtering an
// already-filtered table by the same threshold is a no-op.
func FilterByThreshold(t *ingest.Table, threshold decimal.Decimal) *ingest.Table {
	out := &ingest.Table{Direction: t.Direction, Headers: t.Headers}
	for _, row := range t.Rows {
		amount, ok := CleanAmount(row[ingest.ColAmountKZT])
		if ok && amount.GreaterThanOrEqual(threshold) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Status markers indicating a payment that never went through. Rows
// carrying one of these are excluded from outgoing screening.
var rejectedStatusMarkers = []string{"отказ", "аннулир", "возврат"}

// FilterByPaymentStatus drops outgoing rows whose status marks the
// payment as rejected, cancelled or returned. Incoming tables pass
// through unchanged; the incoming report only contains settled credits.
func FilterByPaymentStatus(t *ingest.Table) *ingest.Table {
	if t.Direction != txn.Outgoing {
		return t
	}

	out := &ingest.Table{Direction: t.Direction, Headers: t.Headers}
	for _, row := range t.Rows {
		status := strings.ToLower(row[ingest.ColStatus])
		rejected := false
		for _, marker := range rejectedStatusMarkers {
			if strings.Contains(status, marker) {
				rejected = true
				break
			}
		}
		if !rejected {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Normalize maps one raw row onto the canonical record for its
// direction. Missing cells become empty strings; a missing row
// identifier becomes a synthetic one so downstream reconciliation can
// always key on Record.ID.
func Normalize(row ingest.Row, direction txn.Direction) txn.Record {
	amount, _ := CleanAmount(row[ingest.ColAmountKZT])

	rec := txn.Record{
		ID:          rowID(row),
		Direction:   direction,
		AmountKZT:   amount,
		CountryCode: row[ingest.ColCountryCode],
		City:        row[ingest.ColCity],
	}

	if direction == txn.Outgoing {
		rec.SwiftCode = row[ingest.ColRecipientBankSwift]
		rec.CountryName = row[ingest.ColRecipientCountry]
		rec.Counterparty = map[string]string{
			txn.FieldName:           row[ingest.ColRecipient],
			txn.FieldBank:           row[ingest.ColRecipientBank],
			txn.FieldBankAddress:    row[ingest.ColRecipientBankAddress],
			txn.FieldClientCategory: row[ingest.ColClientCategory],
			txn.FieldDetails:        row[ingest.ColPaymentDetails],
		}
		return rec
	}

	rec.SwiftCode = row[ingest.ColPayerBankSwift]
	rec.CountryName = row[ingest.ColPayerCountry]
	rec.Counterparty = map[string]string{
		txn.FieldName:           row[ingest.ColPayer],
		txn.FieldBank:           row[ingest.ColPayerBank],
		txn.FieldBankAddress:    row[ingest.ColPayerBankAddress],
		txn.FieldClientCategory: row[ingest.ColClientCategory],
	}
	return rec
}

// NormalizeTable normalizes every row of a filtered table, preserving
// row order.
func NormalizeTable(t *ingest.Table) []txn.Record {
	records := make([]txn.Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		records = append(records, Normalize(row, t.Direction))
	}
	return records
}

func rowID(row ingest.Row) string {
	if id := strings.TrimSpace(row[ingest.ColID]); id != "" {
		return id
	}
	// Synthetic fallback; unique within the run, never null.
	return "row-" + uuid.NewString()[:8]
}
