// Package sanitize masks sensitive literals in a raw prompt before it is
// shown to the planning model. Each detected value is replaced with an
// opaque placeholder token and recorded in a per-request vault.Store, so
// the trusted side can restore it later for exactly the step that needs it.
//
// Usage:
//
//	s := sanitize.New(detectors, sanitize.Options{MinLength: 3})
//	text, store := s.Sanitize(raw)
//	// text is safe to send to the planner
package sanitize

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/gonkalabs/shardguard/internal/vault"
)

// DefaultMinLength is the shortest literal (in runes) that is masked.
const DefaultMinLength = 3

// Options tune a Sanitizer.
type Options struct {
	// MinLength is the minimum literal length in runes. Shorter detections
	// are left in place. Zero means DefaultMinLength.
	MinLength int
}

// Sanitizer is immutable after construction and safe for concurrent use.
// Every call to Sanitize works on its own store and token counter.
type Sanitizer struct {
	detectors []Detector
	minLength int
}

// New creates a Sanitizer that applies detectors in the given order.
// Earlier detectors win when spans overlap.
func New(detectors []Detector, opts Options) *Sanitizer {
	minLen := opts.MinLength
	if minLen <= 0 {
		minLen = DefaultMinLength
	}
	all := make([]Detector, 0, len(detectors)+1)
	all = append(all, reservedDetector{})
	all = append(all, detectors...)
	return &Sanitizer{detectors: all, minLength: minLen}
}

// Detectors returns the registered detectors in order, including the
// built-in reserved-placeholder detector.
func (s *Sanitizer) Detectors() []Detector {
	out := make([]Detector, len(s.detectors))
	copy(out, s.detectors)
	return out
}

// MinLength reports the effective masking threshold.
func (s *Sanitizer) MinLength() int { return s.minLength }

// Sanitize replaces every detected literal in raw with a placeholder token
// and returns the rewritten text with a fresh store holding the mapping.
// Equal literals share one token. Without detections the (NFC-normalized)
// input is returned unchanged with an empty store.
func (s *Sanitizer) Sanitize(raw string) (string, *vault.Store) {
	text := norm.NFC.String(raw)
	store := vault.New()

	claims := s.claim(text)
	if len(claims) == 0 {
		return text, store
	}
	claims = s.sweep(text, claims)

	minter := vault.NewMinter(func(tok string) bool { return strings.Contains(text, tok) })
	assigned := make(map[string]string, len(claims))

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, sp := range claims {
		literal := text[sp.Start:sp.End]
		tok, ok := assigned[literal]
		if !ok {
			tok = minter.Mint(sp.Label)
			assigned[literal] = tok
			mustAdd(store, vault.OpaqueValue{Token: tok, Category: sp.Category, Value: literal})
			slog.Debug("sanitize: masked", "label", sp.Label, "category", sp.Category, "token", tok)
		}
		b.WriteString(text[last:sp.Start])
		b.WriteString(tok)
		last = sp.End
	}
	b.WriteString(text[last:])
	return b.String(), store
}

// mustAdd registers a freshly minted token. The minter only produces
// well-formed tokens, unique within the request, so a rejection means that
// invariant is broken.
func mustAdd(store *vault.Store, v vault.OpaqueValue) {
	if err := store.Add(v); err != nil {
		panic("sanitize: store rejected minted token: " + err.Error())
	}
}

// claim runs detectors in registration order and keeps, left to right, every
// valid span that does not overlap one claimed before it. The result is
// sorted by offset.
func (s *Sanitizer) claim(text string) []Span {
	var claimed []Span
	for _, d := range s.detectors {
		spans := d.Detect(text)
		sortSpansAsc(spans)
		for _, sp := range spans {
			if sp.Label == "" {
				sp.Label = d.Name()
			}
			if sp.Category == "" {
				sp.Category = d.Category()
			}
			if !s.valid(text, sp) || overlapsAny(claimed, sp) {
				continue
			}
			claimed = append(claimed, sp)
		}
	}
	sortSpansAsc(claimed)
	return claimed
}

// sweep masks further occurrences of already-claimed literals that no
// detector reported (for example a password repeated without its keyword),
// so no claimed literal survives in the output.
func (s *Sanitizer) sweep(text string, claims []Span) []Span {
	out := claims
	seen := make(map[string]bool, len(claims))
	for _, c := range claims {
		literal := text[c.Start:c.End]
		if seen[literal] {
			continue
		}
		seen[literal] = true
		for off := 0; off < len(text); {
			i := strings.Index(text[off:], literal)
			if i < 0 {
				break
			}
			sp := Span{Start: off + i, End: off + i + len(literal), Label: c.Label, Category: c.Category}
			if !overlapsAny(out, sp) {
				out = append(out, sp)
			}
			off = sp.Start + 1
		}
	}
	if len(out) != len(claims) {
		sortSpansAsc(out)
	}
	return out
}

// valid filters out spans with invalid offsets, spans that split a rune and
// spans shorter than the masking threshold.
func (s *Sanitizer) valid(text string, sp Span) bool {
	if sp.Start < 0 || sp.End > len(text) || sp.Start >= sp.End {
		return false
	}
	if !isRuneBoundary(text, sp.Start) || !isRuneBoundary(text, sp.End) {
		return false
	}
	if sp.Category == reservedName {
		return true
	}
	return utf8.RuneCountInString(text[sp.Start:sp.End]) >= s.minLength
}

func isRuneBoundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}
