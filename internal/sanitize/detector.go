package sanitize

import (
	"regexp"
	"sort"

	"github.com/gonkalabs/shardguard/internal/vault"
)

// Span describes a sensitive substring detected within a text.
type Span struct {
	Start    int    // byte offset of the first character (UTF-8)
	End      int    // byte offset one past the last character
	Label    string // detector name, becomes the token label, e.g. "password"
	Category string // e.g. "credential", "contact", "address"
}

// Detector finds sensitive spans in a text. Detectors are plain data
// matchers: they must be pure and safe for concurrent use.
type Detector interface {
	Name() string
	Category() string
	Detect(text string) []Span
}

// PatternDetector matches a regular expression. When the pattern has a
// capture group named "value" only that group is masked; otherwise the first
// capture group is used if there is one, and the whole match if not.
type PatternDetector struct {
	name     string
	category string
	re       *regexp.Regexp
	group    int
}

// NewPatternDetector builds a PatternDetector.
func NewPatternDetector(name, category string, re *regexp.Regexp) *PatternDetector {
	group := 0
	if i := re.SubexpIndex("value"); i > 0 {
		group = i
	} else if re.NumSubexp() > 0 {
		group = 1
	}
	return &PatternDetector{name: name, category: category, re: re, group: group}
}

func (d *PatternDetector) Name() string     { return d.name }
func (d *PatternDetector) Category() string { return d.category }

// Pattern returns the source expression.
func (d *PatternDetector) Pattern() string { return d.re.String() }

func (d *PatternDetector) Detect(text string) []Span {
	var spans []Span
	for _, m := range d.re.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2*d.group], m[2*d.group+1]
		if start < 0 || start >= end {
			continue
		}
		spans = append(spans, Span{Start: start, End: end, Label: d.name, Category: d.category})
	}
	return spans
}

// reservedDetector claims placeholder-shaped text that is already present in
// the raw input, so a literal "[PASSWORD_1]" typed by the user is masked like
// any other value instead of colliding with a minted token.
type reservedDetector struct{}

const reservedName = "reserved"

func (reservedDetector) Name() string     { return reservedName }
func (reservedDetector) Category() string { return reservedName }

func (reservedDetector) Detect(text string) []Span {
	locs := vault.TokenSpans(text)
	spans := make([]Span, 0, len(locs))
	for _, l := range locs {
		spans = append(spans, Span{Start: l[0], End: l[1], Label: reservedName, Category: reservedName})
	}
	return spans
}

func sortSpansAsc(spans []Span) {
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
}

func overlaps(a, b Span) bool {
	return a.Start < b.End && b.Start < a.End
}

func overlapsAny(claimed []Span, sp Span) bool {
	for _, c := range claimed {
		if overlaps(c, sp) {
			return true
		}
	}
	return false
}
