package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gonkalabs/shardguard/internal/plan"
)

// Rehydrator restores one step's values. *coord.Service implements it.
type Rehydrator interface {
	Rehydrate(p *plan.Plan, id int) (string, error)
}

// StepArgs is the body sent to the tool for each step.
type StepArgs struct {
	Step    int      `json:"step"`
	Content string   `json:"content"`
	Tools   []string `json:"suggested_tools,omitempty"`
}

// Result is the tool output for one step.
type Result struct {
	Step   int             `json:"step"`
	Tool   string          `json:"tool"`
	Output json.RawMessage `json:"output"`
}

// Dispatcher runs the steps of a plan. A step goes to its first suggested
// tool, or to the default tool when it has none.
type Dispatcher struct {
	rehydrator Rehydrator
	invoker    Invoker
	tool       string
}

// New creates a Dispatcher with tool as the default.
func New(r Rehydrator, inv Invoker, tool string) *Dispatcher {
	return &Dispatcher{rehydrator: r, invoker: inv, tool: tool}
}

// Run executes the steps in order and stops at the first failure, returning
// the results gathered so far. The plan's values are discarded when Run
// returns, whatever the outcome.
func (d *Dispatcher) Run(ctx context.Context, p *plan.Plan) ([]Result, error) {
	defer p.Discard()

	results := make([]Result, 0, len(p.SubPrompts))
	for _, sp := range p.SubPrompts {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		content, err := d.rehydrator.Rehydrate(p, sp.ID)
		if err != nil {
			return results, fmt.Errorf("dispatch: step %d: %w", sp.ID, err)
		}
		tool := d.toolFor(sp)
		out, err := d.invoker.Invoke(ctx, tool, StepArgs{Step: sp.ID, Content: content, Tools: sp.SuggestedTools})
		if err != nil {
			return results, fmt.Errorf("dispatch: step %d: %w", sp.ID, err)
		}
		slog.Debug("dispatch: step done", "request_id", p.RequestID, "step", sp.ID, "tool", tool)
		results = append(results, Result{Step: sp.ID, Tool: tool, Output: out})
	}
	return results, nil
}

func (d *Dispatcher) toolFor(sp plan.SubPrompt) string {
	if len(sp.SuggestedTools) > 0 {
		return sp.SuggestedTools[0]
	}
	return d.tool
}
