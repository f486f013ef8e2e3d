// Package plan holds the decomposition data model: the raw step list a
// planner returns, the validated Plan, scoped rehydration and the result
// artifact handed to CLI and API callers.
package plan

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gonkalabs/shardguard/internal/vault"
)

// RawStep is one step as returned by a planner, before validation.
type RawStep struct {
	Content        string   `json:"content"`
	SuggestedTools []string `json:"suggested_tools,omitempty"`
}

// RawDecomposition is the ordered step list returned by a planner.
type RawDecomposition []RawStep

// SubPrompt is a validated step.
type SubPrompt struct {
	ID             int
	Content        string
	RequiredTokens []string // tokens present in Content, in order of first occurrence
	SuggestedTools []string // catalogue tools the planner routed the step to
}

// Plan is the validated result of one request. It owns the request's
// (pruned) opaque value store.
type Plan struct {
	RequestID      string
	OriginalPrompt string // sanitized prompt, as seen by the planner
	SubPrompts     []SubPrompt

	store *vault.Store
}

// Step returns the sub-prompt with the given 1-based id.
func (p *Plan) Step(id int) (SubPrompt, bool) {
	if id < 1 || id > len(p.SubPrompts) {
		return SubPrompt{}, false
	}
	return p.SubPrompts[id-1], true
}

// Tokens lists every token the plan still holds a value for.
func (p *Plan) Tokens() []string { return p.store.Tokens() }

// Categories counts held values per category.
func (p *Plan) Categories() map[string]int { return p.store.Categories() }

// Category returns the category of a held token.
func (p *Plan) Category(token string) (string, bool) {
	v, ok := p.store.Lookup(token)
	return v.Category, ok
}

// Discard drops every held value. Rehydration fails afterwards.
func (p *Plan) Discard() { p.store.Discard() }

// Discarded reports whether Discard has been called.
func (p *Plan) Discarded() bool { return p.store.Discarded() }

// Rehydrate returns the content of step id with its own required tokens
// substituted back to their original values.
func (p *Plan) Rehydrate(id int) (string, error) {
	step, ok := p.Step(id)
	if !ok {
		return "", &Error{Kind: ScopeViolation, Step: id, Err: errors.New("no such step")}
	}
	return p.RehydrateText(id, step.Content)
}

// RehydrateText substitutes tokens in text on behalf of step id, for example
// tool arguments produced while executing that step. Every token in text
// must belong to the step's required tokens.
func (p *Plan) RehydrateText(id int, text string) (string, error) {
	step, ok := p.Step(id)
	if !ok {
		return "", &Error{Kind: ScopeViolation, Step: id, Err: errors.New("no such step")}
	}
	if p.store.Discarded() {
		return "", &Error{Kind: ScopeViolation, Step: id, Err: errors.New("plan discarded")}
	}
	scope := make(map[string]bool, len(step.RequiredTokens))
	for _, tok := range step.RequiredTokens {
		scope[tok] = true
	}
	for _, tok := range vault.FindTokens(text) {
		if !scope[tok] {
			return "", &Error{Kind: ScopeViolation, Step: id, Token: tok}
		}
	}
	return p.store.Substitute(text, step.RequiredTokens), nil
}

// LogValue reports plan shape only.
func (p *Plan) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("request_id", p.RequestID),
		slog.Int("steps", len(p.SubPrompts)),
		slog.Int("tokens", p.store.Len()),
	)
}

// Artifact is the externally consumable form of a plan. Each step carries
// only its own scoped values.
type Artifact struct {
	RequestID      string         `json:"request_id,omitempty"`
	OriginalPrompt string         `json:"original_prompt"`
	SubPrompts     []ArtifactStep `json:"sub_prompts"`
}

// ArtifactStep is one step of an Artifact.
type ArtifactStep struct {
	ID             int               `json:"id"`
	Content        string            `json:"content"`
	OpaqueValues   map[string]string `json:"opaque_values"`
	SuggestedTools []string          `json:"suggested_tools,omitempty"`
}

// Artifact builds the result document.
func (p *Plan) Artifact() Artifact {
	a := Artifact{
		RequestID:      p.RequestID,
		OriginalPrompt: p.OriginalPrompt,
		SubPrompts:     make([]ArtifactStep, 0, len(p.SubPrompts)),
	}
	for _, sp := range p.SubPrompts {
		a.SubPrompts = append(a.SubPrompts, ArtifactStep{
			ID:             sp.ID,
			Content:        sp.Content,
			OpaqueValues:   p.store.Scoped(sp.RequiredTokens),
			SuggestedTools: sp.SuggestedTools,
		})
	}
	return a
}

// MarshalJSON encodes the plan as its Artifact.
func (p *Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Artifact())
}
