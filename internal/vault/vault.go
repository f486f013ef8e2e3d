// Package vault holds the opaque value store for one request: the mapping
// between placeholder tokens shown to the planning model and the sensitive
// literals they stand for.
//
// A Store is filled once by the sanitizer and is read-only afterwards.
// Readers only ever substitute tokens they were explicitly given, see
// Store.Substitute.
package vault

import (
	"fmt"
	"log/slog"
	"sync"
)

// OpaqueValue is one masked literal.
type OpaqueValue struct {
	Token    string
	Category string
	Value    string
}

// String never includes the value.
func (v OpaqueValue) String() string {
	return fmt.Sprintf("%s(%s)", v.Token, v.Category)
}

// LogValue keeps the value out of structured logs.
func (v OpaqueValue) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("token", v.Token),
		slog.String("category", v.Category),
	)
}

// Store maps tokens to opaque values for a single request.
// It is safe for concurrent readers.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]OpaqueValue
	order     []string
	discarded bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]OpaqueValue)}
}

// Add registers v. Tokens must be well-formed and unique within the store.
func (s *Store) Add(v OpaqueValue) error {
	if !IsToken(v.Token) {
		return fmt.Errorf("vault: malformed token %q", v.Token)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discarded {
		return fmt.Errorf("vault: store discarded")
	}
	if _, ok := s.entries[v.Token]; ok {
		return fmt.Errorf("vault: duplicate token %s", v.Token)
	}
	s.entries[v.Token] = v
	s.order = append(s.order, v.Token)
	return nil
}

// Lookup returns the entry for token.
func (s *Store) Lookup(token string) (OpaqueValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[token]
	return v, ok
}

// Contains reports whether token is registered.
func (s *Store) Contains(token string) bool {
	_, ok := s.Lookup(token)
	return ok
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Tokens returns all tokens in registration order.
func (s *Store) Tokens() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Categories counts entries per category. Safe to log.
func (s *Store) Categories() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, v := range s.entries {
		out[v.Category]++
	}
	return out
}

// Subset returns a new Store holding only the listed tokens that exist in s,
// in the original registration order.
func (s *Store) Subset(tokens []string) *Store {
	keep := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		keep[t] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := New()
	for _, tok := range s.order {
		if keep[tok] {
			out.entries[tok] = s.entries[tok]
			out.order = append(out.order, tok)
		}
	}
	return out
}

// Scoped returns token → value for the listed tokens only.
func (s *Store) Scoped(tokens []string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		if v, ok := s.entries[tok]; ok {
			out[tok] = v.Value
		}
	}
	return out
}

// Substitute replaces every token of scope found in text with its value.
// Tokens outside scope are left as they are. Substitution is a single pass,
// so a value that itself looks like a token is never expanded again.
func (s *Store) Substitute(text string, scope []string) string {
	values := s.Scoped(scope)
	if len(values) == 0 {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(tok string) string {
		if v, ok := values[tok]; ok {
			return v
		}
		return tok
	})
}

// Discard drops every value. The store stays usable for Len and Contains,
// which both report nothing.
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		delete(s.entries, k)
	}
	s.order = nil
	s.discarded = true
}

// Discarded reports whether Discard has been called.
func (s *Store) Discarded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.discarded
}
