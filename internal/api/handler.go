package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gonkalabs/shardguard/internal/coord"
	"github.com/gonkalabs/shardguard/internal/plan"
)

const maxRequestBytes = 1 << 20

// Handler implements all HTTP endpoints.
type Handler struct {
	svc *coord.Service
}

// New creates a Handler over svc.
func New(svc *coord.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts routes on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /v1/detectors", h.listDetectors)
	mux.HandleFunc("GET /v1/tools", h.listTools)
	mux.HandleFunc("POST /v1/plans", h.createPlan)
}

// ---------- endpoints ----------

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type detectorEntry struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Pattern  string `json:"pattern,omitempty"`
}

func (h *Handler) listDetectors(w http.ResponseWriter, _ *http.Request) {
	san := h.svc.Sanitizer()
	entries := make([]detectorEntry, 0, len(san.Detectors()))
	for _, d := range san.Detectors() {
		e := detectorEntry{Name: d.Name(), Category: d.Category()}
		if p, ok := d.(interface{ Pattern() string }); ok {
			e.Pattern = p.Pattern()
		}
		entries = append(entries, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"min_length": san.MinLength(),
		"detectors":  entries,
	})
}

func (h *Handler) listTools(w http.ResponseWriter, _ *http.Request) {
	tools := h.svc.Tools()
	if tools == nil {
		tools = plan.Catalog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

type planRequest struct {
	Prompt string `json:"prompt"`
}

func (h *Handler) createPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeErr(w, http.StatusBadRequest, "prompt is required")
		return
	}

	p, err := h.svc.Handle(r.Context(), req.Prompt)
	if err != nil {
		status := statusFor(err)
		slog.Warn("plan failed", "http_request_id", RequestID(r.Context()), "status", status, "err", err)
		writePlanErr(w, status, err)
		return
	}
	// Plans are not retained; the artifact carries each step's values.
	defer p.Discard()

	slog.Info("plan served", "http_request_id", RequestID(r.Context()), "plan", p)
	writeJSON(w, http.StatusOK, p.Artifact())
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	switch plan.KindOf(err) {
	case plan.ProviderUnavailable:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case plan.MalformedOutput, plan.EmptyPlan, plan.DanglingReference, plan.TokenAliasing:
		return http.StatusUnprocessableEntity
	case plan.ScopeViolation:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type planErrBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Step  int    `json:"step,omitempty"`
	Token string `json:"token,omitempty"`
}

func writePlanErr(w http.ResponseWriter, status int, err error) {
	body := planErrBody{Error: err.Error()}
	var pe *plan.Error
	if errors.As(err, &pe) {
		body.Kind = pe.Kind.String()
		body.Step = pe.Step
		body.Token = pe.Token
	}
	writeJSON(w, status, body)
}
