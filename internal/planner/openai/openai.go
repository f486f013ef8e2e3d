// Package openai is a planner backend for any OpenAI-compatible chat
// completions endpoint (OpenAI, vLLM, llama.cpp server, Ollama's /v1 API).
//
// The request and response types are shared with the gonka backend, which
// speaks the same format over signed transport.
package openai

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

const (
	DefaultTimeout = 120 * time.Second

	systemPrompt = "You split user requests into sub-tasks and answer with JSON only."
	maxBodyBytes = 4 << 20
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the chat completions request body.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// ChatResponse is the subset of the chat completions response we read.
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			Reasoning        string `json:"reasoning"`         // Qwen3 via Ollama
			ReasoningContent string `json:"reasoning_content"` // Qwen3 direct API
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewRequest builds the planning request for prompt.
func NewRequest(model, prompt string) ChatRequest {
	return ChatRequest{
		Model: model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   4096,
	}
}

// DecodeResponse extracts the assistant text from a chat completions body.
// When content is empty (the model spent its budget thinking) the reasoning
// field is used instead; the planner's parser digs the JSON out of it.
func DecodeResponse(body []byte) (string, error) {
	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", plan.Unavailable(fmt.Errorf("decode response: %w", err))
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return "", plan.Unavailable(fmt.Errorf("provider error: %s", resp.Error.Message))
	}
	if len(resp.Choices) == 0 {
		return "", plan.Malformed("response has no choices")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		slog.Warn("openai: response truncated by token limit")
	}
	msg := choice.Message
	out := strings.TrimSpace(msg.Content)
	if out == "" {
		out = strings.TrimSpace(msg.Reasoning)
	}
	if out == "" {
		out = strings.TrimSpace(msg.ReasoningContent)
	}
	return out, nil
}

// Client calls a chat completions endpoint directly.
type Client struct {
	url    string
	model  string
	apiKey string
	http   *http.Client
}

// New creates a Client. baseURL may be given with or without the /v1 suffix,
// e.g. "https://api.openai.com" or "http://ollama:11434/v1".
func New(baseURL, model, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return &Client{
		url:    base + "/chat/completions",
		model:  model,
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

// Generate implements planner.Generator.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(NewRequest(c.model, prompt))
	if err != nil {
		return "", plan.Unavailable(fmt.Errorf("openai: marshal: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", plan.Unavailable(fmt.Errorf("openai: request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	slog.Debug("openai: generating", "url", c.url, "model", c.model, "prompt_len", len(prompt))
	resp, err := c.http.Do(req)
	if err != nil {
		return "", plan.Unavailable(fmt.Errorf("openai: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", plan.Unavailable(fmt.Errorf("openai: read body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", plan.Unavailable(fmt.Errorf("openai: status %d", resp.StatusCode))
	}
	return DecodeResponse(raw)
}
