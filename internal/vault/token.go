package vault

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// placeholderRe matches opaque tokens such as [PASSWORD_1] or [API_KEY_12].
// A trailing _<digits> is required, so ordinary brackets like [NOTE] or [1]
// never match.
var placeholderRe = regexp.MustCompile(`\[[A-Z][A-Z0-9_]*_[0-9]+\]`)

// IsToken reports whether s is exactly one placeholder token.
func IsToken(s string) bool {
	loc := placeholderRe.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// FindTokens returns the distinct placeholder tokens in text, in order of
// first occurrence.
func FindTokens(text string) []string {
	matches := placeholderRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// TokenSpans returns the byte offsets of every placeholder token in text.
func TokenSpans(text string) [][2]int {
	locs := placeholderRe.FindAllStringIndex(text, -1)
	out := make([][2]int, len(locs))
	for i, l := range locs {
		out[i] = [2]int{l[0], l[1]}
	}
	return out
}

// Label turns a detector name into the label used inside tokens:
// "api-key" becomes "API_KEY".
func Label(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(unicode.ToUpper(r))
			lastUnderscore = false
		case !lastUnderscore && b.Len() > 0:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	label := strings.TrimRight(b.String(), "_")
	if label == "" {
		return "VALUE"
	}
	if label[0] < 'A' || label[0] > 'Z' {
		label = "V" + label
	}
	return label
}

// FormatToken renders the n-th token for label.
func FormatToken(label string, n int) string {
	return "[" + label + "_" + strconv.Itoa(n) + "]"
}

// Minter hands out tokens for a single request. Numbering is per label and
// starts at 1; a Minter must not be shared between requests.
type Minter struct {
	next  map[string]int
	taken func(token string) bool
}

// NewMinter returns a Minter that skips any token for which taken reports
// true (typically tokens already present in the raw input). taken may be nil.
func NewMinter(taken func(token string) bool) *Minter {
	return &Minter{next: make(map[string]int), taken: taken}
}

// Mint returns the next unused token for the detector named name.
func (m *Minter) Mint(name string) string {
	label := Label(name)
	for {
		m.next[label]++
		tok := FormatToken(label, m.next[label])
		if m.taken == nil || !m.taken(tok) {
			return tok
		}
	}
}
