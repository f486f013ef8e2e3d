// Package ollama is a planner backend for a local Ollama server
// (POST /api/chat, non-streaming).
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gonkalabs/shardguard/internal/plan"
)

// Defaults match the stock Ollama install.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"
	DefaultTimeout = 120 * time.Second

	maxBodyBytes = 4 << 20
)

// Config holds the Ollama client settings.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls Ollama's chat endpoint.
type Client struct {
	url   string
	model string
	http  *http.Client
}

// New creates a Client. Zero fields in cfg fall back to the defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		url:   strings.TrimRight(cfg.BaseURL, "/") + "/api/chat",
		model: cfg.Model,
		http:  &http.Client{Timeout: cfg.Timeout},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error"`
}

// Generate sends prompt as a single user message and returns the reply.
// Every failure is a plan.ProviderUnavailable error.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []message{{Role: "user", Content: prompt}},
		Stream:   false,
		Format:   "json",
		Options:  map[string]any{"temperature": 0},
	})
	if err != nil {
		return "", plan.Unavailable(fmt.Errorf("ollama: marshal: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", plan.Unavailable(fmt.Errorf("ollama: request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("ollama: generating", "url", c.url, "model", c.model, "prompt_len", len(prompt))
	resp, err := c.http.Do(req)
	if err != nil {
		return "", plan.Unavailable(fmt.Errorf("ollama: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", plan.Unavailable(fmt.Errorf("ollama: read body: %w", err))
	}

	var result chatResponse
	decodeErr := json.Unmarshal(raw, &result)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", plan.Unavailable(fmt.Errorf("ollama: model %q not found", c.model))
	case resp.StatusCode != http.StatusOK:
		if decodeErr == nil && result.Error != "" {
			return "", plan.Unavailable(fmt.Errorf("ollama: status %d: %s", resp.StatusCode, result.Error))
		}
		return "", plan.Unavailable(fmt.Errorf("ollama: status %d", resp.StatusCode))
	case decodeErr != nil:
		return "", plan.Unavailable(fmt.Errorf("ollama: decode: %w", decodeErr))
	case result.Error != "":
		return "", plan.Unavailable(fmt.Errorf("ollama: %s", result.Error))
	}
	return result.Message.Content, nil
}
