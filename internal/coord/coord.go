// Package coord wires the pipeline together: sanitize, decompose, validate,
// and later rehydrate one step at a time on the trusted side.
package coord

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gonkalabs/shardguard/internal/plan"
	"github.com/gonkalabs/shardguard/internal/planner"
	"github.com/gonkalabs/shardguard/internal/sanitize"
	"github.com/gonkalabs/shardguard/internal/vault"
)

const DefaultPlanTimeout = 2 * time.Minute

// sanitizeRequest is the masking step of Handle.
var sanitizeRequest = (*sanitize.Sanitizer).Sanitize

// Options tune a Service.
type Options struct {
	// PlanTimeout bounds the planner call. Zero means DefaultPlanTimeout.
	PlanTimeout time.Duration
	// Audit receives one record per request and per rehydration. Nil
	// means slog.Default().
	Audit *slog.Logger
	// Tools is the catalogue steps may be routed to. Suggested tools outside
	// it fail validation; a nil catalogue drops suggestions.
	Tools plan.Catalog
}

// Service is the coordination service. It is safe for concurrent use; the
// only state shared between requests is the immutable sanitizer, which can
// be swapped atomically.
type Service struct {
	sanitizer atomic.Pointer[sanitize.Sanitizer]
	planner   planner.Planner
	timeout   time.Duration
	audit     *slog.Logger
	tools     plan.Catalog
}

// New creates a Service.
func New(s *sanitize.Sanitizer, p planner.Planner, opts Options) *Service {
	if opts.PlanTimeout <= 0 {
		opts.PlanTimeout = DefaultPlanTimeout
	}
	if opts.Audit == nil {
		opts.Audit = slog.Default()
	}
	svc := &Service{planner: p, timeout: opts.PlanTimeout, audit: opts.Audit, tools: opts.Tools}
	svc.sanitizer.Store(s)
	return svc
}

// Tools returns the tool catalogue, or nil.
func (s *Service) Tools() plan.Catalog { return s.tools }

// Sanitizer returns the sanitizer used for new requests.
func (s *Service) Sanitizer() *sanitize.Sanitizer { return s.sanitizer.Load() }

// SetSanitizer replaces the sanitizer for subsequent requests. Requests
// already in flight keep the one they started with.
func (s *Service) SetSanitizer(san *sanitize.Sanitizer) {
	s.sanitizer.Store(san)
	s.audit.Info("sanitizer replaced", "detectors", len(san.Detectors()))
}

// Handle runs one request through the pipeline. On success the returned
// plan holds only the values its steps reference. On any failure, including
// cancellation, every value captured for the request is discarded and no
// plan is returned.
func (s *Service) Handle(ctx context.Context, raw string) (*plan.Plan, error) {
	id := uuid.NewString()
	start := time.Now()

	text, store := sanitizeRequest(s.sanitizer.Load(), raw)
	// The plan keeps a pruned copy; the full store is never needed again.
	defer store.Discard()

	p, err := s.plan(ctx, text, store)
	if err != nil {
		s.auditFailure(id, err, time.Since(start))
		return nil, err
	}
	p.RequestID = id
	p.OriginalPrompt = text

	s.audit.Info("plan created",
		"request_id", id,
		"steps", len(p.SubPrompts),
		"masked", store.Len(),
		"tokens", len(p.Tokens()),
		"categories", p.Categories(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return p, nil
}

func (s *Service) plan(ctx context.Context, text string, store *vault.Store) (*plan.Plan, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.planner.Decompose(ctx, text)
	if err != nil {
		return nil, plan.Unavailable(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, plan.Unavailable(err)
	}
	return plan.ValidateCatalog(raw, store, s.tools)
}

func (s *Service) auditFailure(id string, err error, elapsed time.Duration) {
	attrs := []any{"request_id", id, "duration_ms", elapsed.Milliseconds()}
	var pe *plan.Error
	if errors.As(err, &pe) {
		attrs = append(attrs, "kind", pe.Kind.String())
		if pe.Step > 0 {
			attrs = append(attrs, "step", pe.Step)
		}
		if pe.Token != "" {
			attrs = append(attrs, "token", pe.Token)
		}
	}
	attrs = append(attrs, "err", err)
	s.audit.Warn("plan rejected", attrs...)
}

// Rehydrate returns step id of p with its required tokens restored.
func (s *Service) Rehydrate(p *plan.Plan, id int) (string, error) {
	out, err := p.Rehydrate(id)
	s.auditRehydrate(p, id, err)
	return out, err
}

// RehydrateText restores tokens in text produced while executing step id,
// such as tool arguments. Tokens outside the step's scope are refused.
func (s *Service) RehydrateText(p *plan.Plan, id int, text string) (string, error) {
	out, err := p.RehydrateText(id, text)
	s.auditRehydrate(p, id, err)
	return out, err
}

func (s *Service) auditRehydrate(p *plan.Plan, id int, err error) {
	if err != nil {
		var pe *plan.Error
		token := ""
		if errors.As(err, &pe) {
			token = pe.Token
		}
		s.audit.Warn("scope violation", "request_id", p.RequestID, "step", id, "token", token, "err", err)
		return
	}
	step, _ := p.Step(id)
	s.audit.Info("step rehydrated", "request_id", p.RequestID, "step", id, "tokens", len(step.RequiredTokens))
}
