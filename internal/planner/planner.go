// Package planner turns a sanitized prompt into an ordered list of steps.
//
// A Planner is the only component that talks to the untrusted decomposition
// model. It only ever receives sanitized text; placeholder tokens travel
// through it verbatim and are checked afterwards by plan.Validate.
package planner

import (
	"context"
	"strings"

	"github.com/gonkalabs/shardguard/internal/plan"
)

// Planner decomposes sanitized text. Implementations report failures as
// *plan.Error of kind ProviderUnavailable or MalformedOutput.
type Planner interface {
	Decompose(ctx context.Context, sanitized string) (plan.RawDecomposition, error)
}

// Generator is a text-in, text-out model backend.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMPlanner asks a Generator to split the prompt using the planning
// template and parses the answer.
type LLMPlanner struct {
	gen   Generator
	tools plan.Catalog
}

// Option configures an LLMPlanner.
type Option func(*LLMPlanner)

// WithTools lists the tool catalogue in the planning prompt.
func WithTools(c plan.Catalog) Option {
	return func(p *LLMPlanner) { p.tools = c }
}

// New wraps gen.
func New(gen Generator, opts ...Option) *LLMPlanner {
	p := &LLMPlanner{gen: gen}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Decompose implements Planner.
func (p *LLMPlanner) Decompose(ctx context.Context, sanitized string) (plan.RawDecomposition, error) {
	if err := ctx.Err(); err != nil {
		return nil, plan.Unavailable(err)
	}
	out, err := p.gen.Generate(ctx, BuildPrompt(sanitized, p.tools))
	if err != nil {
		return nil, plan.Unavailable(err)
	}
	// A backend that ignores cancellation must not let a late answer through.
	if err := ctx.Err(); err != nil {
		return nil, plan.Unavailable(err)
	}
	return ParseDecomposition(out)
}

// Passthrough returns the whole prompt as a single step. It needs no model
// and is used when no backend is configured.
type Passthrough struct{}

// Decompose implements Planner.
func (Passthrough) Decompose(ctx context.Context, sanitized string) (plan.RawDecomposition, error) {
	if err := ctx.Err(); err != nil {
		return nil, plan.Unavailable(err)
	}
	if strings.TrimSpace(sanitized) == "" {
		return nil, nil
	}
	return plan.RawDecomposition{{Content: sanitized}}, nil
}
