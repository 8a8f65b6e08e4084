// Package classify sends screened transaction records to an LLM oracle
// in batches and turns the responses into validated, per-record results.
// The package guarantees exactly one result per input record in input
// order regardless of oracle behavior; records the oracle loses or
// mangles get a synthetic manual-review result instead of being dropped.
package classify

import (
	"github.com/shopspring/decimal"

	"github.com/dvloznov/offshore-radar/internal/txn"
)

// Label is the oracle's offshore risk verdict.
type Label string

const (
	LabelOffshoreYes     Label = "OFFSHORE_YES"
	LabelOffshoreSuspect Label = "OFFSHORE_SUSPECT"
	LabelOffshoreNo      Label = "OFFSHORE_NO"
)

// Valid reports whether l is one of the three known labels.
func (l Label) Valid() bool {
	switch l {
	case LabelOffshoreYes, LabelOffshoreSuspect, LabelOffshoreNo:
		return true
	}
	return false
}

var labelRU = map[Label]string{
	LabelOffshoreYes:     "ОФШОР: ДА",
	LabelOffshoreSuspect: "ОФШОР: ПОДОЗРЕНИЕ",
	LabelOffshoreNo:      "ОФШОР: НЕТ",
}

// Russian returns the report-facing Russian form of the label, or the
// raw label when unknown.
func (l Label) Russian() string {
	if ru, ok := labelRU[l]; ok {
		return ru
	}
	return string(l)
}

// Result is one classified transaction. Direction and AmountKZT are
// always taken from the local record during reconciliation, never from
// the oracle.
type Result struct {
	TransactionID string
	Direction     txn.Direction
	AmountKZT     decimal.Decimal

	Label      Label
	Confidence float64

	// Reasoning is the oracle's short Russian explanation.
	Reasoning string

	// Sources holds http(s) URLs the oracle cited; empty when none.
	Sources []string

	// Err carries an error note: the failure that forced a synthetic
	// fallback, or a warning the oracle attached to a real result.
	Err string
}

// Errored reports whether the result carries an error note and should
// be surfaced for manual review.
func (r *Result) Errored() bool { return r.Err != "" }
