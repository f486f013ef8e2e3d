// Package gonka is a planner backend that runs the decomposition model on
// the Gonka network through the signed upstream transport.
package gonka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gonkalabs/shardguard/internal/plan"
	"github.com/gonkalabs/shardguard/internal/planner/openai"
)

const DefaultModel = "Qwen/Qwen3-235B-A22B-Instruct-2507-FP8"

// Doer sends one signed request. *upstream.Client implements it.
type Doer interface {
	Do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error)
}

// Generator implements planner.Generator over a Doer.
type Generator struct {
	doer  Doer
	model string
}

// New creates a Generator. An empty model selects DefaultModel.
func New(doer Doer, model string) *Generator {
	if model == "" {
		model = DefaultModel
	}
	return &Generator{doer: doer, model: model}
}

// Generate implements planner.Generator.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(openai.NewRequest(g.model, prompt))
	if err != nil {
		return "", plan.Unavailable(fmt.Errorf("gonka: marshal: %w", err))
	}

	slog.Debug("gonka: generating", "model", g.model, "prompt_len", len(prompt))
	raw, status, err := g.doer.Do(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return "", plan.Unavailable(fmt.Errorf("gonka: %w", err))
	}
	if status >= http.StatusBadRequest {
		return "", plan.Unavailable(fmt.Errorf("gonka: status %d", status))
	}
	return openai.DecodeResponse(raw)
}
