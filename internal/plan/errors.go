package plan

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a pipeline failure.
type ErrorKind int

const (
	// ProviderUnavailable means the planning model could not be invoked
	// (transport failure, bad status, timeout, cancellation). Callers may
	// retry with backoff.
	ProviderUnavailable ErrorKind = iota + 1
	// MalformedOutput means the model answered but the answer is not an
	// ordered list of textual steps.
	MalformedOutput
	EmptyPlan
	// DanglingReference means a step mentions a token the sanitizer never
	// minted.
	DanglingReference
	// TokenAliasing means one token is referenced by more than one step.
	TokenAliasing
	// ScopeViolation means a rehydration asked for a token outside the
	// step's required tokens, or for a step that does not exist.
	ScopeViolation
)

var kindNames = map[ErrorKind]string{
	ProviderUnavailable: "provider unavailable",
	MalformedOutput:     "malformed output",
	EmptyPlan:           "empty plan",
	DanglingReference:   "dangling reference",
	TokenAliasing:       "token aliasing",
	ScopeViolation:      "scope violation",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Error is the typed failure returned by every pipeline stage. Its message
// names the kind, the step and the token involved; it never carries an
// original sensitive value.
type Error struct {
	Kind  ErrorKind
	Step  int    // 1-based sub-prompt id, 0 if not applicable
	Token string // placeholder token, empty if not applicable
	Err   error  // underlying cause, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Step > 0 {
		fmt.Fprintf(&b, ": step %d", e.Step)
	}
	if e.Token != "" {
		fmt.Fprintf(&b, ": token %s", e.Token)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the bare sentinels below by kind, so
// errors.Is(err, plan.ErrScopeViolation) works for any scope violation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Step == 0 && t.Token == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrProviderUnavailable = &Error{Kind: ProviderUnavailable}
	ErrMalformedOutput     = &Error{Kind: MalformedOutput}
	ErrEmptyPlan           = &Error{Kind: EmptyPlan}
	ErrDanglingReference   = &Error{Kind: DanglingReference}
	ErrTokenAliasing       = &Error{Kind: TokenAliasing}
	ErrScopeViolation      = &Error{Kind: ScopeViolation}
)

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// Unavailable wraps a transport-level failure. Errors that already carry a
// kind are returned unchanged.
func Unavailable(err error) error {
	if KindOf(err) != 0 {
		return err
	}
	return &Error{Kind: ProviderUnavailable, Err: err}
}

// Malformed reports an unparseable model answer.
func Malformed(format string, args ...any) error {
	return &Error{Kind: MalformedOutput, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k ErrorKind) bool { return KindOf(err) == k }
