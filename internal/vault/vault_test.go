package vault

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsToken(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"[PASSWORD_1]", true},
		{"[API_KEY_12]", true},
		{"[NOTE]", false},
		{"[1]", false},
		{"[password_1]", false},
		{"x[PASSWORD_1]", false},
		{"[PASSWORD_1] ", false},
		{"[_1]", false},
	}
	for _, tt := range tests {
		if got := IsToken(tt.in); got != tt.want {
			t.Errorf("IsToken(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFindTokensOrderAndDedup(t *testing.T) {
	got := FindTokens("use [B_1] then [A_1], again [B_1] and [not a token]")
	assert.Equal(t, []string{"[B_1]", "[A_1]"}, got)
	assert.Nil(t, FindTokens("nothing here [1] [X]"))
}

func TestLabel(t *testing.T) {
	tests := map[string]string{
		"password":      "PASSWORD",
		"api-key":       "API_KEY",
		"credit card":   "CREDIT_CARD",
		"  email  ":     "EMAIL",
		"2fa":           "V2FA",
		"":              "VALUE",
		"ключ":          "VALUE",
		"aws__secret--": "AWS_SECRET",
	}
	for in, want := range tests {
		if got := Label(in); got != want {
			t.Errorf("Label(%q) = %q, want %q", in, got, want)
		}
		require.True(t, IsToken(FormatToken(Label(in), 1)), "label %q must form a valid token", in)
	}
}

func TestMinterPerLabelCounters(t *testing.T) {
	m := NewMinter(nil)
	assert.Equal(t, "[PASSWORD_1]", m.Mint("password"))
	assert.Equal(t, "[EMAIL_1]", m.Mint("email"))
	assert.Equal(t, "[PASSWORD_2]", m.Mint("password"))
}

func TestMinterSkipsTakenTokens(t *testing.T) {
	raw := "literal [PASSWORD_1] typed by the user"
	m := NewMinter(func(tok string) bool { return strings.Contains(raw, tok) })
	assert.Equal(t, "[PASSWORD_2]", m.Mint("password"))
}

func TestMintersAreIndependent(t *testing.T) {
	a, b := NewMinter(nil), NewMinter(nil)
	a.Mint("password")
	a.Mint("password")
	assert.Equal(t, "[PASSWORD_1]", b.Mint("password"))
}

func TestStoreAddAndLookup(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(OpaqueValue{Token: "[PASSWORD_1]", Category: "credential", Value: "secret123"}))
	require.Error(t, s.Add(OpaqueValue{Token: "[PASSWORD_1]", Category: "credential", Value: "other"}))
	require.Error(t, s.Add(OpaqueValue{Token: "PASSWORD_1", Category: "credential", Value: "x"}))

	v, ok := s.Lookup("[PASSWORD_1]")
	require.True(t, ok)
	assert.Equal(t, "secret123", v.Value)
	assert.Equal(t, 1, s.Len())
	assert.False(t, s.Contains("[PASSWORD_2]"))
}

func TestStoreSubsetPrunes(t *testing.T) {
	s := New()
	for i, val := range []string{"a1", "b2", "c3"} {
		require.NoError(t, s.Add(OpaqueValue{Token: FormatToken("K", i+1), Category: "c", Value: val}))
	}
	sub := s.Subset([]string{"[K_3]", "[K_1]", "[K_9]"})
	assert.Equal(t, []string{"[K_1]", "[K_3]"}, sub.Tokens())
	assert.False(t, sub.Contains("[K_2]"))
	assert.Equal(t, 3, s.Len(), "subset must not modify the source")
}

func TestSubstituteOnlyScopedTokens(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(OpaqueValue{Token: "[PASSWORD_1]", Category: "credential", Value: "secret123"}))
	require.NoError(t, s.Add(OpaqueValue{Token: "[EMAIL_1]", Category: "contact", Value: "a@b.io"}))

	got := s.Substitute("login [PASSWORD_1] mail [EMAIL_1]", []string{"[PASSWORD_1]"})
	assert.Equal(t, "login secret123 mail [EMAIL_1]", got)
}

func TestSubstituteIsSinglePass(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(OpaqueValue{Token: "[A_1]", Category: "c", Value: "[B_1]"}))
	require.NoError(t, s.Add(OpaqueValue{Token: "[B_1]", Category: "c", Value: "deep"}))
	assert.Equal(t, "[B_1]", s.Substitute("[A_1]", []string{"[A_1]", "[B_1]"}))
}

func TestDiscard(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(OpaqueValue{Token: "[PASSWORD_1]", Category: "credential", Value: "secret123"}))
	s.Discard()
	assert.True(t, s.Discarded())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "[PASSWORD_1]", s.Substitute("[PASSWORD_1]", []string{"[PASSWORD_1]"}))
	assert.Error(t, s.Add(OpaqueValue{Token: "[PASSWORD_2]", Category: "credential", Value: "x"}))
}

func TestOpaqueValueNeverFormatsValue(t *testing.T) {
	v := OpaqueValue{Token: "[PASSWORD_1]", Category: "credential", Value: "secret123"}
	assert.NotContains(t, fmt.Sprint(v), "secret123")
	assert.NotContains(t, fmt.Sprintf("%v", v), "secret123")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("masked", "value", v)
	assert.NotContains(t, buf.String(), "secret123")
	assert.Contains(t, buf.String(), "[PASSWORD_1]")
}

func TestConcurrentReaders(t *testing.T) {
	s := New()
	for i := 1; i <= 20; i++ {
		require.NoError(t, s.Add(OpaqueValue{Token: FormatToken("K", i), Category: "c", Value: fmt.Sprintf("v%d", i)}))
	}
	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok := FormatToken("K", i)
			if got := s.Substitute(tok, []string{tok}); got != fmt.Sprintf("v%d", i) {
				t.Errorf("Substitute(%s) = %q", tok, got)
			}
		}(i)
	}
	wg.Wait()
}
