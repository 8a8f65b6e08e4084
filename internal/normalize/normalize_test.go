package normalize

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/offshore-radar/internal/ingest"
	"github.com/dvloznov/offshore-radar/internal/txn"
)

func TestCleanAmount(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"5 000 000,00 KZT", "5000000.00", true},
		{"12000000", "12000000", true},
		{"-100", "100", true},
		{"7 500 000.50", "7500000.50", true},
		{"1,234,567", "1234567", true},
		{"1 234,5", "1234.5", true},
		{"12,345", "12345", true},
		{"1,234.56", "1234.56", true},
		{"abc", "", false},
		{"", "", false},
		{"   ", "", false},
		{"KZT", "", false},
	}

	for _, tt := range tests {
		got, ok := CleanAmount(tt.in)
		if ok != tt.wantOK {
			t.Errorf("CleanAmount(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		want, err := decimal.NewFromString(tt.want)
		if err != nil {
			t.Fatalf("bad test fixture %q: %v", tt.want, err)
		}
		if !got.Equal(want) {
			t.Errorf("CleanAmount(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func incomingTable(amounts ...string) *ingest.Table {
	t := &ingest.Table{
		Direction: txn.Incoming,
		Headers:   []string{ingest.ColID, ingest.ColAmountKZT},
	}
	for i, a := range amounts {
		t.Rows = append(t.Rows, ingest.Row{
			ingest.ColID:        string(rune('1' + i)),
			ingest.ColAmountKZT: a,
		})
	}
	return t
}

func TestFilterByThreshold(t *testing.T) {
	table := incomingTable("5 000 000,00", "4 999 999", "12000000", "", "abc")
	threshold := decimal.NewFromInt(5_000_000)

	got := FilterByThreshold(table, threshold)

	if len(got.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(got.Rows))
	}
	if got.Rows[1][ingest.ColAmountKZT] != "12000000" {
		t.Errorf("second surviving row = %q, want 12000000", got.Rows[1][ingest.ColAmountKZT])
	}
	if len(table.Rows) != 5 {
		t.Errorf("source table mutated: %d rows, want 5", len(table.Rows))
	}
}

func TestFilterByThresholdIdempotent(t *testing.T) {
	table := incomingTable("6 000 000", "-7 000 000", "100")
	threshold := decimal.NewFromInt(5_000_000)

	once := FilterByThreshold(table, threshold)
	twice := FilterByThreshold(once, threshold)

	if len(once.Rows) != len(twice.Rows) {
		t.Errorf("filter not idempotent: %d then %d rows", len(once.Rows), len(twice.Rows))
	}
	// Negative amounts count by absolute value.
	if len(once.Rows) != 2 {
		t.Errorf("got %d rows, want 2 (negative amount passes by absolute value)", len(once.Rows))
	}
}

func TestFilterByPaymentStatus(t *testing.T) {
	table := &ingest.Table{
		Direction: txn.Outgoing,
		Headers:   []string{ingest.ColID, ingest.ColStatus},
		Rows: []ingest.Row{
			{ingest.ColID: "1", ingest.ColStatus: "Исполнен"},
			{ingest.ColID: "2", ingest.ColStatus: "Отказано банком"},
			{ingest.ColID: "3", ingest.ColStatus: "Аннулирован"},
			{ingest.ColID: "4", ingest.ColStatus: "Возврат средств"},
			{ingest.ColID: "5", ingest.ColStatus: ""},
		},
	}

	got := FilterByPaymentStatus(table)

	if len(got.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(got.Rows))
	}
	if got.Rows[0][ingest.ColID] != "1" || got.Rows[1][ingest.ColID] != "5" {
		t.Errorf("surviving ids = %q, %q, want 1 and 5", got.Rows[0][ingest.ColID], got.Rows[1][ingest.ColID])
	}
}

func TestFilterByPaymentStatusIncomingPassthrough(t *testing.T) {
	table := incomingTable("5000000")
	table.Rows[0][ingest.ColStatus] = "Отказано"

	if got := FilterByPaymentStatus(table); len(got.Rows) != 1 {
		t.Errorf("incoming table filtered: %d rows, want 1", len(got.Rows))
	}
}

func TestNormalizeIncoming(t *testing.T) {
	row := ingest.Row{
		ingest.ColID:               "42",
		ingest.ColAmountKZT:        "7 500 000,00",
		ingest.ColPayer:            "ACME TRADING LTD",
		ingest.ColPayerBankSwift:   "AAAAKYKX",
		ingest.ColPayerBank:        "CAYMAN NATIONAL BANK",
		ingest.ColPayerCountry:     "Каймановы острова",
		ingest.ColCountryCode:      "KY",
		ingest.ColCity:             "George Town",
		ingest.ColClientCategory:   "Юридическое лицо",
		ingest.ColPayerBankAddress: "68 Fort Street",
	}

	rec := Normalize(row, txn.Incoming)

	if rec.ID != "42" {
		t.Errorf("ID = %q, want 42", rec.ID)
	}
	if rec.Direction != txn.Incoming {
		t.Errorf("Direction = %q, want incoming", rec.Direction)
	}
	if !rec.AmountKZT.Equal(decimal.NewFromInt(7_500_000)) {
		t.Errorf("AmountKZT = %s, want 7500000", rec.AmountKZT)
	}
	if rec.SwiftCode != "AAAAKYKX" {
		t.Errorf("SwiftCode = %q, want AAAAKYKX", rec.SwiftCode)
	}
	if got := rec.Field(txn.FieldName); got != "ACME TRADING LTD" {
		t.Errorf("counterparty name = %q, want ACME TRADING LTD", got)
	}
	if got := rec.Field(txn.FieldBank); got != "CAYMAN NATIONAL BANK" {
		t.Errorf("counterparty bank = %q", got)
	}
	if rec.CountryName != "Каймановы острова" {
		t.Errorf("CountryName = %q", rec.CountryName)
	}
}

func TestNormalizeOutgoing(t *testing.T) {
	row := ingest.Row{
		ingest.ColID:                 "7",
		ingest.ColAmountKZT:          "9000000",
		ingest.ColRecipient:          "GLOBEX HOLDINGS SA",
		ingest.ColRecipientBankSwift: "BBBBPAPX",
		ingest.ColRecipientCountry:   "Панама",
		ingest.ColPaymentDetails:     "Оплата по контракту 17-К",
	}

	rec := Normalize(row, txn.Outgoing)

	if rec.SwiftCode != "BBBBPAPX" {
		t.Errorf("SwiftCode = %q, want recipient bank swift", rec.SwiftCode)
	}
	if got := rec.Field(txn.FieldName); got != "GLOBEX HOLDINGS SA" {
		t.Errorf("counterparty name = %q", got)
	}
	if got := rec.Field(txn.FieldDetails); got != "Оплата по контракту 17-К" {
		t.Errorf("details = %q", got)
	}
}

func TestNormalizeSyntheticID(t *testing.T) {
	rec := Normalize(ingest.Row{ingest.ColAmountKZT: "6000000"}, txn.Incoming)

	if !strings.HasPrefix(rec.ID, "row-") || len(rec.ID) <= len("row-") {
		t.Errorf("expected synthetic row id, got %q", rec.ID)
	}

	other := Normalize(ingest.Row{ingest.ColAmountKZT: "6000000"}, txn.Incoming)
	if rec.ID == other.ID {
		t.Errorf("synthetic ids collide: %q", rec.ID)
	}
}

func TestNormalizeTablePreservesOrder(t *testing.T) {
	table := incomingTable("6000000", "7000000", "8000000")

	records := NormalizeTable(table)

	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for i, rec := range records {
		want := table.Rows[i][ingest.ColID]
		if rec.ID != want {
			t.Errorf("record %d id = %q, want %q", i, rec.ID, want)
		}
	}
}
