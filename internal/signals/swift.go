package signals

import (
	"strings"

	"github.com/dvloznov/offshore-radar/internal/txn"
)

// DecodeSwift extracts the jurisdiction from a SWIFT/BIC code. The
// format is BANK(4) + COUNTRY(2) + LOCATION(2) + optional BRANCH(3), so
// a valid code is 8 or 11 characters with letters in the first six
// positions. Invalid codes produce a zero SwiftInfo with Valid false.
// The country name is resolved against the offshore list; codes outside
// the list keep the bare country code as the name.
func DecodeSwift(code string, list *List) txn.SwiftInfo {
	cleaned := strings.ToUpper(strings.TrimSpace(code))
	cleaned = strings.NewReplacer(" ", "", "-", "").Replace(cleaned)

	if len(cleaned) != 8 && len(cleaned) != 11 {
		return txn.SwiftInfo{}
	}
	if !isAlpha(cleaned[:4]) {
		return txn.SwiftInfo{}
	}

	country := cleaned[4:6]
	if !isAlpha(country) {
		return txn.SwiftInfo{}
	}

	return txn.SwiftInfo{
		CountryCode: country,
		CountryName: list.NameEN(country),
		Valid:       true,
	}
}
