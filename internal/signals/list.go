// Package signals computes local jurisdiction signals for a transaction
// record: the country decoded from the counterparty bank's SWIFT code
// and fuzzy matches of country codes, country names and cities against
// the offshore jurisdiction reference list.
package signals

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed data/offshore_countries.md
var defaultListMarkdown string

// Entry is one offshore jurisdiction with bilingual names. Code is the
// base two-letter code; extended source codes like ES-CN or US-WY are
// reduced to their base during parsing.
type Entry struct {
	Code   string
	NameRU string
	NameEN string
}

// List is the offshore jurisdiction reference list. Entries keep source
// order so match ties resolve deterministically.
type List struct {
	entries []Entry
	byCode  map[string]Entry
	table   string
}

// NewList builds a list from entries, dropping duplicates by code while
// keeping the first occurrence.
func NewList(entries []Entry) *List {
	l := &List{byCode: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		e.Code = strings.ToUpper(strings.TrimSpace(e.Code))
		if e.Code == "" {
			continue
		}
		if _, seen := l.byCode[e.Code]; seen {
			continue
		}
		l.byCode[e.Code] = e
		l.entries = append(l.entries, e)
	}
	return l
}

// DefaultList returns the list parsed from the embedded reference table.
func DefaultList() *List {
	l, err := ParseList(strings.NewReader(defaultListMarkdown))
	if err != nil {
		// The embedded table is part of the build; a parse failure here
		// is a programming error.
		panic(fmt.Sprintf("signals: embedded offshore list: %v", err))
	}
	return l
}

// ParseListFile reads an offshore jurisdiction table from a markdown
// file on disk, for deployments that override the embedded list.
func ParseListFile(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ParseListFile: open %s: %w", path, err)
	}
	defer f.Close()

	l, err := ParseList(f)
	if err != nil {
		return nil, fmt.Errorf("ParseListFile: %s: %w", path, err)
	}
	return l, nil
}

// ParseList reads a markdown pipe table of the form
// | RU name | code | EN name | and returns the parsed list. Non-table
// lines and the separator row are skipped.
func ParseList(r io.Reader) (*List, error) {
	var entries []Entry
	var tableLines []string

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !strings.Contains(line, "|") {
			continue
		}
		tableLines = append(tableLines, line)

		e, ok := parseTableLine(line)
		if !ok {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ParseList: read: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("ParseList: no jurisdiction rows found")
	}

	l := NewList(entries)
	l.table = strings.Join(tableLines, "\n")
	return l, nil
}

func parseTableLine(line string) (Entry, bool) {
	if strings.HasPrefix(line, "|:-") || strings.HasPrefix(line, "|-") {
		return Entry{}, false
	}

	parts := strings.Split(line, "|")
	if len(parts) < 4 {
		return Entry{}, false
	}

	nameRU := strings.TrimSpace(parts[1])
	code := BaseCountryCode(strings.TrimSpace(parts[2]))
	nameEN := strings.TrimSpace(parts[3])

	if code == "" || nameRU == "" || nameEN == "" {
		return Entry{}, false
	}
	return Entry{Code: code, NameRU: nameRU, NameEN: nameEN}, true
}

// BaseCountryCode reduces an extended jurisdiction code to its base
// two-letter country code: ES-CN becomes ES, US-WY becomes US, HK stays
// HK. Returns "" when the input is not a country code; non-latin text,
// including Cyrillic header fragments from malformed source tables,
// fails the letter check.
func BaseCountryCode(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if i := strings.IndexByte(c, '-'); i >= 0 {
		c = c[:i]
	}
	if len(c) != 2 || !isAlpha(c) {
		return ""
	}
	return c
}

// Contains reports whether the base form of code is in the list.
func (l *List) Contains(code string) bool {
	_, ok := l.byCode[BaseCountryCode(code)]
	return ok
}

// Entries returns the jurisdictions in source order. The caller must not
// modify the returned slice.
func (l *List) Entries() []Entry { return l.entries }

// Len returns the number of jurisdictions.
func (l *List) Len() int { return len(l.entries) }

// NameRU returns the Russian name for a code, or the code itself when
// unknown.
func (l *List) NameRU(code string) string {
	if e, ok := l.byCode[BaseCountryCode(code)]; ok {
		return e.NameRU
	}
	return code
}

// NameEN returns the English name for a code, or the code itself when
// unknown.
func (l *List) NameEN(code string) string {
	if e, ok := l.byCode[BaseCountryCode(code)]; ok {
		return e.NameEN
	}
	return code
}

// MarkdownTable returns the raw pipe-table text the list was parsed
// from, used verbatim when embedding the list into the oracle policy.
func (l *List) MarkdownTable() string {
	if l.table != "" {
		return l.table
	}
	var b strings.Builder
	b.WriteString("| Название | Код | English Name |\n|:---|:---|:---|\n")
	for _, e := range l.entries {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", e.NameRU, e.Code, e.NameEN)
	}
	return strings.TrimRight(b.String(), "\n")
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return len(s) > 0
}
