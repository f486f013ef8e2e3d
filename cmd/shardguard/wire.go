package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gonkalabs/shardguard/internal/config"
	"github.com/gonkalabs/shardguard/internal/dispatch"
	"github.com/gonkalabs/shardguard/internal/plan"
	"github.com/gonkalabs/shardguard/internal/planner"
	"github.com/gonkalabs/shardguard/internal/planner/gonka"
	"github.com/gonkalabs/shardguard/internal/planner/ollama"
	"github.com/gonkalabs/shardguard/internal/planner/openai"
	"github.com/gonkalabs/shardguard/internal/upstream"
	"github.com/gonkalabs/shardguard/internal/wallet"
)

const (
	discoveryTimeout = 30 * time.Second
	catalogTimeout   = 10 * time.Second
)

// loadTools fetches the tool catalogue from the dispatch server. Without a
// dispatch URL, or when the server publishes none, it returns nil.
func loadTools(ctx context.Context, cfg *config.Cfg) (plan.Catalog, error) {
	if cfg.Dispatch.URL == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, catalogTimeout)
	defer cancel()
	return dispatch.NewHTTPInvoker(cfg.Dispatch.URL, catalogTimeout).Tools(ctx)
}

// buildPlanner returns the planner for the configured backend. A non-nil
// catalogue is offered to model backends.
func buildPlanner(ctx context.Context, cfg *config.Cfg, tools plan.Catalog) (planner.Planner, error) {
	opts := []planner.Option{planner.WithTools(tools)}
	switch cfg.Backend {
	case config.BackendNone:
		return planner.Passthrough{}, nil
	case config.BackendOllama:
		return planner.New(ollama.New(ollama.Config{
			BaseURL: cfg.Ollama.URL,
			Model:   cfg.Model,
			Timeout: cfg.PlanTimeout,
		}), opts...), nil
	case config.BackendOpenAI:
		return planner.New(openai.New(cfg.OpenAI.BaseURL, cfg.Model, cfg.OpenAI.APIKey, cfg.PlanTimeout), opts...), nil
	case config.BackendGonka:
		creds := make([]wallet.Credential, 0, len(cfg.Gonka.Wallets))
		for _, w := range cfg.Gonka.Wallets {
			creds = append(creds, wallet.Credential{PrivateKey: w.PrivateKey, Address: w.Address})
		}
		pool, err := wallet.FromCredentials(creds)
		if err != nil {
			return nil, err
		}
		client := upstream.New(cfg.Gonka.SourceURL, pool, upstream.Options{Timeout: cfg.PlanTimeout})

		dctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
		defer cancel()
		if err := client.DiscoverEndpoints(dctx); err != nil {
			return nil, fmt.Errorf("gonka: %w", err)
		}
		slog.Info("gonka backend ready", "wallets", pool.Len(), "endpoints", len(client.Endpoints()))
		return planner.New(gonka.New(client, cfg.Model), opts...), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
