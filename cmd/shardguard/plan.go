package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gonkalabs/shardguard/internal/config"
	"github.com/gonkalabs/shardguard/internal/coord"
	"github.com/gonkalabs/shardguard/internal/dispatch"
	"github.com/gonkalabs/shardguard/internal/plan"
)

type planOptions struct {
	backend   string
	model     string
	ollamaURL string
	timeout   time.Duration
	jsonOut   bool
	dispatch  bool
}

func newPlanCmd(a *app) *cobra.Command {
	var o planOptions
	cmd := &cobra.Command{
		Use:   "plan [prompt]",
		Short: "Sanitize a prompt and split it into sub-prompts",
		Long: `Sanitize a prompt and split it into sub-prompts.

The prompt is read from standard input when no argument is given. Sensitive
values are replaced with placeholder tokens before the planning model sees the
prompt. With --json the result artifact, including each step's scoped values,
is printed; otherwise only tokens and their categories are shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPlan(cmd, o, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.backend, "backend", "", "planner backend: none, ollama, openai, gonka")
	f.StringVar(&o.model, "model", "", "planning model (Ollama default llama3.2)")
	f.StringVar(&o.ollamaURL, "ollama-url", "", "Ollama base URL (default http://localhost:11434)")
	f.DurationVar(&o.timeout, "timeout", 0, "planner timeout (default 2m)")
	f.BoolVar(&o.jsonOut, "json", false, "print the result artifact as JSON")
	f.BoolVar(&o.dispatch, "dispatch", false, "run each step through the configured tool server, routed to its suggested tool")
	return cmd
}

// apply overrides cfg with the flags that were set.
func (o planOptions) apply(cfg *config.Cfg) error {
	if o.backend != "" {
		cfg.Backend = strings.ToLower(o.backend)
	}
	if o.model != "" {
		cfg.Model = o.model
	}
	if o.ollamaURL != "" {
		cfg.Ollama.URL = o.ollamaURL
	}
	if o.timeout > 0 {
		cfg.PlanTimeout = o.timeout
	}
	if o.dispatch && cfg.Dispatch.URL == "" {
		return errors.New("--dispatch needs SHARDGUARD_DISPATCH_URL or dispatch.url")
	}
	return cfg.Validate()
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	var prompt string
	if len(args) == 1 {
		prompt = args[0]
	} else {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		prompt = string(b)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("empty prompt")
	}
	return prompt, nil
}

func (a *app) runPlan(cmd *cobra.Command, o planOptions, args []string) error {
	prompt, err := readPrompt(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if err := o.apply(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, closeAudit, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAudit()

	p, err := svc.Handle(ctx, prompt)
	if err != nil {
		return err
	}
	defer p.Discard()

	out := cmd.OutOrStdout()
	// The artifact must be taken before dispatch discards the plan's values.
	artifact := p.Artifact()
	if !o.jsonOut {
		renderPlan(out, p)
	}

	var results []dispatch.Result
	if o.dispatch {
		d := dispatch.New(svc, dispatch.NewHTTPInvoker(cfg.Dispatch.URL, 0), cfg.Dispatch.Tool)
		results, err = d.Run(ctx, p)
		if err != nil {
			return err
		}
		if !o.jsonOut {
			renderResults(out, results)
		}
	}

	if o.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if o.dispatch {
			return enc.Encode(struct {
				Plan    plan.Artifact     `json:"plan"`
				Results []dispatch.Result `json:"results"`
			}{artifact, results})
		}
		return enc.Encode(artifact)
	}
	return nil
}

// newService builds the coordination service for cfg. The returned func
// closes the audit log.
func newService(ctx context.Context, cfg *config.Cfg) (*coord.Service, func() error, error) {
	san, err := cfg.NewSanitizer()
	if err != nil {
		return nil, nil, err
	}
	tools, err := loadTools(ctx, cfg)
	if err != nil {
		slog.Warn("tool catalogue unavailable, planning without it", "err", err)
		tools = nil
	}
	pl, err := buildPlanner(ctx, cfg, tools)
	if err != nil {
		return nil, nil, err
	}
	audit, closeAudit, err := openAudit(cfg.AuditLog)
	if err != nil {
		return nil, nil, err
	}
	return coord.New(san, pl, coord.Options{
		PlanTimeout: cfg.PlanTimeout,
		Audit:       audit,
		Tools:       tools,
	}), closeAudit, nil
}
