package sanitize

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Defaults for EntropyDetector.
const (
	DefaultEntropyMinLength = 16
	DefaultEntropyThreshold = 4.5
)

// EntropyDetector flags long random-looking words (keys, tokens) that no
// pattern covers.
type EntropyDetector struct {
	MinLength int     // bytes; values below DefaultEntropyMinLength are raised to it
	Threshold float64 // bits per rune
}

func (d EntropyDetector) Name() string     { return "secret" }
func (d EntropyDetector) Category() string { return "credential" }

func (d EntropyDetector) Detect(text string) []Span {
	minLen := d.MinLength
	if minLen < DefaultEntropyMinLength {
		minLen = DefaultEntropyMinLength
	}
	threshold := d.Threshold
	if threshold <= 0 {
		threshold = DefaultEntropyThreshold
	}

	var spans []Span
	for _, w := range words(text) {
		word := text[w[0]:w[1]]
		trimmed := strings.TrimRight(word, ".!?:")
		end := w[0] + len(trimmed)
		if len(trimmed) < minLen {
			continue
		}
		if shannonEntropy(trimmed) > threshold {
			spans = append(spans, Span{Start: w[0], End: end, Label: d.Name(), Category: d.Category()})
		}
	}
	return spans
}

// words returns the byte ranges of runs of non-delimiter bytes.
func words(text string) [][2]int {
	var out [][2]int
	start := -1
	for i := 0; i < len(text); i++ {
		if isWordBoundaryByte(text[i]) {
			if start >= 0 {
				out = append(out, [2]int{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, [2]int{start, len(text)})
	}
	return out
}

func shannonEntropy(s string) float64 {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	freq := make(map[rune]int)
	for _, r := range s {
		freq[r]++
	}
	var h float64
	for _, c := range freq {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	return h
}

// wordBoundaryBytes are bytes that delimit words.
var wordBoundaryBytes = func() [256]bool {
	var t [256]bool
	for _, b := range []byte(" \t\n\r<>(),;[]{}\"'`") {
		t[b] = true
	}
	return t
}()

func isWordBoundaryByte(b byte) bool { return wordBoundaryBytes[b] }
