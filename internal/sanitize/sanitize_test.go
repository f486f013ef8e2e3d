package sanitize

import (
	"regexp"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/shardguard/internal/vault"
)

func passwordDetector() Detector {
	return NewPatternDetector("password", "credential",
		regexp.MustCompile(`(?i)\bpassword\b\s*[:=]?\s*(?P<value>[^\s,;]+)`))
}

func emailDetector() Detector {
	return NewPatternDetector("email", "contact",
		regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`))
}

func TestSanitizeScenario(t *testing.T) {
	s := New([]Detector{passwordDetector()}, Options{})

	out, store := s.Sanitize("Setup server with password secret123")

	assert.Equal(t, "Setup server with password [PASSWORD_1]", out)
	require.Equal(t, 1, store.Len())
	v, ok := store.Lookup("[PASSWORD_1]")
	require.True(t, ok)
	assert.Equal(t, "credential", v.Category)
	assert.Equal(t, "secret123", v.Value)
}

func TestSanitizeNoMatches(t *testing.T) {
	s := New([]Detector{passwordDetector(), emailDetector()}, Options{})
	out, store := s.Sanitize("just plan a trip to Lisbon")
	assert.Equal(t, "just plan a trip to Lisbon", out)
	assert.Equal(t, 0, store.Len())
}

func TestSanitizeEarlierDetectorWins(t *testing.T) {
	// Both detectors match the address; the first registered one claims it.
	broad := NewPatternDetector("secret", "credential", regexp.MustCompile(`\S+@\S+`))
	s := New([]Detector{broad, emailDetector()}, Options{})

	out, store := s.Sanitize("mail ops@example.com now")

	assert.Equal(t, "mail [SECRET_1] now", out)
	assert.Equal(t, map[string]int{"credential": 1}, store.Categories())
}

func TestSanitizeOverlapWithinOneDetector(t *testing.T) {
	d := NewPatternDetector("num", "identifier", regexp.MustCompile(`\d{4}`))
	s := New([]Detector{d, NewPatternDetector("wide", "identifier", regexp.MustCompile(`12345678`))}, Options{})

	out, store := s.Sanitize("id 12345678")

	assert.Equal(t, "id [NUM_1][NUM_2]", out)
	assert.Equal(t, 2, store.Len())
}

func TestSanitizeEqualLiteralsShareToken(t *testing.T) {
	s := New([]Detector{emailDetector()}, Options{})
	out, store := s.Sanitize("cc a@b.io and again a@b.io, plus c@d.io")
	assert.Equal(t, "cc [EMAIL_1] and again [EMAIL_1], plus [EMAIL_2]", out)
	assert.Equal(t, 2, store.Len())
}

func TestSanitizeSweepsRepeatedLiteral(t *testing.T) {
	s := New([]Detector{passwordDetector()}, Options{})
	out, store := s.Sanitize("password hunter2, and remember hunter2 for later")
	assert.NotContains(t, out, "hunter2")
	assert.Equal(t, "password [PASSWORD_1], and remember [PASSWORD_1] for later", out)
	assert.Equal(t, 1, store.Len())
}

func TestSanitizeMinLength(t *testing.T) {
	s := New([]Detector{passwordDetector()}, Options{MinLength: 6})

	out, store := s.Sanitize("password abc")
	assert.Equal(t, "password abc", out, "short literal is below the threshold")
	assert.Equal(t, 0, store.Len())

	out, _ = s.Sanitize("password abcdef")
	assert.Equal(t, "password [PASSWORD_1]", out)
}

func TestSanitizeReservedPlaceholderInInput(t *testing.T) {
	s := New([]Detector{passwordDetector()}, Options{})

	out, store := s.Sanitize("keep [PASSWORD_1] literally, password s3cr3t!")

	assert.Equal(t, "keep [RESERVED_1] literally, password [PASSWORD_2]", out)
	v, ok := store.Lookup("[RESERVED_1]")
	require.True(t, ok)
	assert.Equal(t, "[PASSWORD_1]", v.Value)
	v, ok = store.Lookup("[PASSWORD_2]")
	require.True(t, ok)
	assert.Equal(t, "s3cr3t!", v.Value)
}

func TestSanitizeNormalizesToNFC(t *testing.T) {
	d := NewPatternDetector("name", "identifier", regexp.MustCompile(`Jos\x{00E9}`))
	s := New([]Detector{d}, Options{})

	out, store := s.Sanitize("ask Jose\u0301 today")

	assert.Equal(t, "ask [NAME_1] today", out)
	v, _ := store.Lookup("[NAME_1]")
	assert.Equal(t, "Jos\u00e9", v.Value)
}

func TestSanitizeDropsSpansSplittingRunes(t *testing.T) {
	bad := detectorFunc(func(text string) []Span {
		return []Span{{Start: 1, End: 4}} // inside "é"
	})
	s := New([]Detector{bad}, Options{MinLength: 1})
	out, store := s.Sanitize("éééé")
	assert.Equal(t, "éééé", out)
	assert.Equal(t, 0, store.Len())
}

func TestSanitizeFreshStorePerCall(t *testing.T) {
	s := New([]Detector{passwordDetector(), emailDetector()}, Options{})
	raw := "password topsecret to ops@example.com"

	_, a := s.Sanitize(raw)
	_, b := s.Sanitize(raw)

	require.NotSame(t, a, b)
	assert.Equal(t, values(a), values(b))
	assert.Equal(t, a.Categories(), b.Categories())
}

func TestSanitizeNeverLeaksMaskedLiterals(t *testing.T) {
	s := New([]Detector{passwordDetector(), emailDetector(), EntropyDetector{}}, Options{})
	inputs := []string{
		"password hunter22 then hunter22 again",
		"ops@example.com,ops@example.com;ops@example.com",
		"key AbC9xQ2mZ7pL4vR8tY1wE6 and password=AbC9xQ2mZ7pL4vR8tY1wE6",
		"password: pa55word. Done",
	}
	for _, in := range inputs {
		out, store := s.Sanitize(in)
		for _, tok := range store.Tokens() {
			v, _ := store.Lookup(tok)
			if len(v.Value) >= s.MinLength() && strings.Contains(out, v.Value) {
				t.Errorf("Sanitize(%q) = %q still contains %s literal", in, out, v.Category)
			}
		}
	}
}

func TestEntropyDetector(t *testing.T) {
	d := EntropyDetector{}
	text := "use token Zx8Qp2Lm9Rt4Vb7Nc1KdWy3H and aaaaaaaaaaaaaaaaaaaa please."
	spans := d.Detect(text)
	require.Len(t, spans, 1)
	assert.Equal(t, "Zx8Qp2Lm9Rt4Vb7Nc1KdWy3H", text[spans[0].Start:spans[0].End])
	assert.Equal(t, "credential", spans[0].Category)
}

func TestPatternDetectorGroups(t *testing.T) {
	tests := []struct {
		pattern string
		text    string
		want    []string
	}{
		{`user=(\w+)`, "user=alice user=bob", []string{"alice", "bob"}},
		{`(?:user)=(?P<value>\w+)`, "user=carol", []string{"carol"}},
		{`\d{3}-\d{2}-\d{4}`, "ssn 123-45-6789", []string{"123-45-6789"}},
		{`key=(\w*)`, "key= empty", nil},
	}
	for _, tt := range tests {
		d := NewPatternDetector("x", "y", regexp.MustCompile(tt.pattern))
		var got []string
		for _, sp := range d.Detect(tt.text) {
			got = append(got, tt.text[sp.Start:sp.End])
		}
		assert.Equal(t, tt.want, got, "pattern %s", tt.pattern)
	}
}

func TestDetectorsIncludesReservedFirst(t *testing.T) {
	s := New([]Detector{passwordDetector()}, Options{})
	ds := s.Detectors()
	require.Len(t, ds, 2)
	assert.Equal(t, "reserved", ds[0].Name())
	assert.Equal(t, "password", ds[1].Name())
}

type detectorFunc func(text string) []Span

func (f detectorFunc) Name() string             { return "func" }
func (f detectorFunc) Category() string         { return "test" }
func (f detectorFunc) Detect(text string) []Span { return f(text) }

func values(s *vault.Store) []string {
	var out []string
	for _, tok := range s.Tokens() {
		v, _ := s.Lookup(tok)
		out = append(out, v.Category+":"+v.Value)
	}
	sort.Strings(out)
	return out
}

func TestSanitizeLabelCollisionKeepsTokensUnique(t *testing.T) {
	s := New([]Detector{
		NewPatternDetector("api-key", "credential", regexp.MustCompile(`ak_[a-z0-9]+`)),
		NewPatternDetector("API KEY", "credential", regexp.MustCompile(`sk_[a-z0-9]+`)),
	}, Options{})

	var out string
	var store *vault.Store
	require.NotPanics(t, func() { out, store = s.Sanitize("use ak_one1 then sk_two2") })
	assert.Equal(t, "use [API_KEY_1] then [API_KEY_2]", out)
	assert.Equal(t, 2, store.Len())
}

func TestMustAddPanicsOnRejectedToken(t *testing.T) {
	store := vault.New()
	mustAdd(store, vault.OpaqueValue{Token: "[PASSWORD_1]", Value: "secret123"})

	assert.PanicsWithValue(t,
		"sanitize: store rejected minted token: vault: duplicate token [PASSWORD_1]",
		func() { mustAdd(store, vault.OpaqueValue{Token: "[PASSWORD_1]", Value: "other"}) })
	assert.Panics(t, func() { mustAdd(store, vault.OpaqueValue{Token: "PASSWORD", Value: "x"}) })
}
