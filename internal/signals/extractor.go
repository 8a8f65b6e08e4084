package signals

import (
	"github.com/rs/zerolog"

	"github.com/dvloznov/offshore-radar/internal/txn"
)

// Extractor computes the full local signal set for records before they
// are sent to the classifier.
type Extractor struct {
	list    *List
	matcher *Matcher
	log     zerolog.Logger
}

// NewExtractor builds an extractor over the given list with the given
// fuzzy threshold.
func NewExtractor(list *List, threshold float64, log zerolog.Logger) *Extractor {
	return &Extractor{
		list:    list,
		matcher: NewMatcher(list, threshold),
		log:     log,
	}
}

// Extract computes the signal set for one record. The result is always
// non-nil; a record with no usable fields gets an all-zero set.
func (e *Extractor) Extract(rec *txn.Record) *txn.SignalSet {
	s := &txn.SignalSet{}

	s.Swift = DecodeSwift(rec.SwiftCode, e.list)
	if s.Swift.Valid {
		s.OffshoreBySwift = e.list.Contains(s.Swift.CountryCode)
	}

	s.CountryCode = e.matcher.MatchCountryCode(rec.CountryCode)
	s.CountryName, s.TopNameMatches = e.matcher.MatchCountryName(rec.CountryName)
	s.City = e.matcher.MatchCity(rec.City)

	s.AnyOffshoreSignal = s.OffshoreBySwift ||
		s.CountryCode.Offshore ||
		s.CountryName.Offshore ||
		s.City.Offshore

	if s.AnyOffshoreSignal {
		e.log.Debug().
			Str("transaction_id", rec.ID).
			Bool("offshore_by_swift", s.OffshoreBySwift).
			Str("country_code_match", s.CountryCode.Value).
			Str("country_name_match", s.CountryName.Value).
			Str("city_match", s.City.Value).
			Msg("offshore signal detected")
	}

	return s
}

// ExtractAll attaches signal sets to every record in place and returns
// how many records carry at least one offshore signal.
func (e *Extractor) ExtractAll(records []txn.Record) int {
	flagged := 0
	for i := range records {
		records[i].Signals = e.Extract(&records[i])
		if records[i].Signals.AnyOffshoreSignal {
			flagged++
		}
	}
	return flagged
}
