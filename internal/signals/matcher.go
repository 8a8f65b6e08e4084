package signals

import (
	"fmt"
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/dvloznov/offshore-radar/internal/txn"
)

// Free-text values shorter than this take part in Levenshtein matching;
// longer values only match as substrings, since edit distance on long
// address-style strings produces noise.
const maxFuzzyLen = 20

// Names shorter than this never match at all.
const minMatchLen = 3

// Matcher runs fuzzy matches against one offshore list with a fixed
// similarity threshold.
type Matcher struct {
	list      *List
	threshold float64
}

// NewMatcher builds a matcher. Threshold is the minimum similarity in
// (0,1] a candidate needs to count as a match.
func NewMatcher(list *List, threshold float64) *Matcher {
	return &Matcher{list: list, threshold: threshold}
}

// NormalizeText lowercases, trims and squeezes inner whitespace for
// comparison.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Similarity is the Levenshtein ratio of the normalized strings, in
// [0,1]. Empty inputs score 0.
func Similarity(a, b string) float64 {
	an := NormalizeText(a)
	bn := NormalizeText(b)
	if an == "" || bn == "" {
		return 0
	}
	return levenshtein.RatioForStrings([]rune(an), []rune(bn), levenshtein.DefaultOptions)
}

// MatchCountryCode checks a country code for exact offshore list
// membership. Extended codes reduce to their base form first; there is
// no fuzzy variant for codes.
func (m *Matcher) MatchCountryCode(code string) txn.MatchSignal {
	base := BaseCountryCode(code)
	if base == "" || !m.list.Contains(base) {
		return txn.MatchSignal{}
	}
	return txn.MatchSignal{Value: base, Score: 1.0, Offshore: true}
}

// MatchCountryName fuzzy-matches a country name against both the
// Russian and English names of every listed jurisdiction. A substring
// containment in either direction scores 1.0; otherwise short names use
// the Levenshtein ratio. Returns the best match plus up to three scored
// candidates, best first, ties kept in list order.
func (m *Matcher) MatchCountryName(name string) (txn.MatchSignal, []txn.NameMatch) {
	norm := NormalizeText(name)
	if len([]rune(norm)) < minMatchLen {
		return txn.MatchSignal{}, nil
	}

	var matches []txn.NameMatch
	for _, e := range m.list.Entries() {
		for _, candidate := range []string{e.NameRU, e.NameEN} {
			if candidate == "" {
				continue
			}
			score := m.score(norm, candidate)
			if score >= m.threshold {
				matches = append(matches, txn.NameMatch{Code: e.Code, Name: candidate, Score: score})
			}
		}
	}
	if len(matches) == 0 {
		return txn.MatchSignal{}, nil
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > 3 {
		matches = matches[:3]
	}

	best := matches[0]
	signal := txn.MatchSignal{
		Value:    fmt.Sprintf("%s (%s)", best.Name, best.Code),
		Score:    best.Score,
		Offshore: true,
	}
	return signal, matches
}

// MatchCity checks a city against the listed jurisdiction names, so
// cells like "George Town, Cayman Islands" still register. Substring
// containment scores 1.0; short cities fall back to the Levenshtein
// ratio. First listed jurisdiction to clear the threshold wins.
func (m *Matcher) MatchCity(city string) txn.MatchSignal {
	norm := NormalizeText(city)
	if len([]rune(norm)) < minMatchLen {
		return txn.MatchSignal{}
	}

	for _, e := range m.list.Entries() {
		for _, candidate := range []string{e.NameEN, e.NameRU} {
			if candidate == "" {
				continue
			}
			score := m.score(norm, candidate)
			if score >= m.threshold {
				return txn.MatchSignal{Value: candidate, Score: score, Offshore: true}
			}
		}
	}
	return txn.MatchSignal{}
}

// score compares an already-normalized input against a raw candidate.
func (m *Matcher) score(norm, candidate string) float64 {
	cn := NormalizeText(candidate)
	if cn == "" {
		return 0
	}
	if strings.Contains(cn, norm) || strings.Contains(norm, cn) {
		return 1.0
	}
	if len([]rune(norm)) < maxFuzzyLen {
		return levenshtein.RatioForStrings([]rune(norm), []rune(cn), levenshtein.DefaultOptions)
	}
	return 0
}
