// Package txn defines the canonical transaction record produced by
// normalization and consumed by the rest of the screening pipeline.
package txn

import (
	"github.com/shopspring/decimal"
)

// Direction identifies which side of the wire transfer our client is on.
type Direction string

const (
	// Incoming covers transfers received by our client.
	Incoming Direction = "incoming"
	// Outgoing covers transfers sent by our client.
	Outgoing Direction = "outgoing"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == Incoming || d == Outgoing
}

// Canonical counterparty field keys. Normalization maps the
// direction-specific source columns onto these so downstream code never
// branches on direction to read a counterparty field.
const (
	FieldName           = "name"
	FieldBank           = "bank"
	FieldBankAddress    = "bank_address"
	FieldClientCategory = "client_category"
	FieldDetails        = "details"
)

// Record is the canonical unit of work. Every field is concrete: missing
// source values become empty strings or zero, never a nil sentinel.
type Record struct {
	// ID is unique within one processing run. Rows without a source
	// identifier receive a synthetic one during normalization.
	ID string

	Direction Direction

	// AmountKZT is the cleaned tenge amount. Always non-negative;
	// negative source values are coerced to their absolute value.
	AmountKZT decimal.Decimal

	// SwiftCode is the counterparty bank identifier. May be empty.
	SwiftCode string

	// Counterparty holds the free-text name/bank/address fields under
	// the canonical Field* keys.
	Counterparty map[string]string

	CountryCode string
	CountryName string
	City        string

	// Signals is attached by the signal extractor; nil until then.
	Signals *SignalSet
}

// Field returns the canonical counterparty field, or "" if absent.
func (r *Record) Field(key string) string {
	if r.Counterparty == nil {
		return ""
	}
	return r.Counterparty[key]
}

// SwiftInfo is the jurisdiction embedded in a SWIFT/BIC code.
// Valid is false when the code fails the format check; the code fields
// are then empty.
type SwiftInfo struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	Valid       bool   `json:"valid"`
}

// MatchSignal is one fuzzy-match outcome against the offshore reference
// list. Score is a normalized similarity in [0,1]. A zero Value means no
// match cleared the threshold.
type MatchSignal struct {
	Value    string  `json:"value,omitempty"`
	Score    float64 `json:"score,omitempty"`
	Offshore bool    `json:"offshore"`
}

// NameMatch is one scored candidate from country-name matching.
type NameMatch struct {
	Code  string  `json:"code"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// SignalSet is the read-only aggregation of locally computed jurisdiction
// signals for a record. Computed once by the signal extractor.
type SignalSet struct {
	Swift           SwiftInfo   `json:"swift"`
	OffshoreBySwift bool        `json:"offshore_by_swift"`
	CountryCode     MatchSignal `json:"country_code_match"`
	CountryName     MatchSignal `json:"country_name_match"`
	City            MatchSignal `json:"city_match"`

	// TopNameMatches keeps at most the three best country-name
	// candidates, best first.
	TopNameMatches []NameMatch `json:"top_name_matches,omitempty"`

	// AnyOffshoreSignal ORs the SWIFT membership check and the three
	// fuzzy-match verdicts.
	AnyOffshoreSignal bool `json:"any_offshore_signal"`
}
