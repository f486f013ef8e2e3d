package planner

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gonkalabs/shardguard/internal/plan"
)

// Limits applied to model answers.
const (
	MaxResponseBytes = 1 << 20
	MaxSteps         = 50

	// maxJSONCandidates bounds how many bracket positions are tried.
	maxJSONCandidates = 64
)

// stepListKeys are the object fields accepted as the step list, in order.
var stepListKeys = []string{"sub_prompts", "steps", "subtasks"}

// ParseDecomposition extracts the ordered step list from a model answer.
// Accepted shapes: {"sub_prompts":[{"content":...}]}, a bare array of such
// objects, or a bare array of strings. Reasoning blocks, code fences and
// prose around the JSON are ignored, as are extra fields such as ids.
// Steps may name tools in "suggested_tools". Anything else is a
// MalformedOutput error. An empty list is returned as is.
func ParseDecomposition(response string) (plan.RawDecomposition, error) {
	if len(response) > MaxResponseBytes {
		return nil, plan.Malformed("response exceeds %d bytes", MaxResponseBytes)
	}
	s := stripCodeFence(stripThinkBlock(response))
	if s == "" {
		return nil, plan.Malformed("empty response")
	}

	// Prose may contain bracketed text such as a placeholder token, so every
	// top-level JSON value is tried in turn. The first non-empty step list
	// wins; otherwise the first decoding error is reported.
	var (
		firstErr error
		sawEmpty bool
	)
	for off, tries := 0, 0; off < len(s) && tries < maxJSONCandidates; tries++ {
		i := strings.IndexAny(s[off:], "{[")
		if i < 0 {
			break
		}
		start := off + i
		doc, n, ok := decodeValue(s[start:])
		if !ok {
			off = start + 1
			continue
		}
		off = start + n

		steps, err := parseDocument(doc)
		switch {
		case err != nil:
			if firstErr == nil {
				firstErr = err
			}
		case len(steps) == 0:
			sawEmpty = true
		default:
			return steps, nil
		}
	}
	if sawEmpty {
		return plan.RawDecomposition{}, nil
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, plan.Malformed("no JSON document in response")
}

// decodeValue reads one JSON value from the start of s and reports how many
// bytes it spans.
func decodeValue(s string) (json.RawMessage, int, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	var doc json.RawMessage
	if err := dec.Decode(&doc); err != nil {
		return nil, 0, false
	}
	return doc, int(dec.InputOffset()), true
}

func parseDocument(doc json.RawMessage) (plan.RawDecomposition, error) {
	var items []json.RawMessage
	if doc[0] == '[' {
		if err := json.Unmarshal(doc, &items); err != nil {
			return nil, plan.Malformed("decode step list: %v", err)
		}
	} else {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(doc, &obj); err != nil {
			return nil, plan.Malformed("decode response object: %v", err)
		}
		raw, ok := lookupStepList(obj)
		if !ok {
			return nil, plan.Malformed("response has no sub_prompts list")
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, plan.Malformed("sub_prompts is not a list")
		}
	}

	if len(items) > MaxSteps {
		return nil, plan.Malformed("too many steps: %d (max %d)", len(items), MaxSteps)
	}

	out := make(plan.RawDecomposition, 0, len(items))
	for i, item := range items {
		step, err := parseStep(item)
		if err != nil {
			return nil, plan.Malformed("step %d: %v", i+1, err)
		}
		out = append(out, step)
	}
	return out, nil
}

func lookupStepList(obj map[string]json.RawMessage) (json.RawMessage, bool) {
	for _, k := range stepListKeys {
		if raw, ok := obj[k]; ok {
			return raw, true
		}
	}
	return nil, false
}

func parseStep(item json.RawMessage) (plan.RawStep, error) {
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return plan.RawStep{}, errors.New("empty content")
		}
		return plan.RawStep{Content: s}, nil
	}
	var obj struct {
		Content        *string         `json:"content"`
		SuggestedTools json.RawMessage `json:"suggested_tools"`
	}
	if err := json.Unmarshal(item, &obj); err != nil || obj.Content == nil {
		return plan.RawStep{}, errors.New("missing content")
	}
	c := strings.TrimSpace(*obj.Content)
	if c == "" {
		return plan.RawStep{}, errors.New("empty content")
	}
	tools, err := parseToolNames(obj.SuggestedTools)
	if err != nil {
		return plan.RawStep{}, err
	}
	return plan.RawStep{Content: c, SuggestedTools: tools}, nil
}

// parseToolNames accepts a list of names or null. Blank names are dropped.
func parseToolNames(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, errors.New("suggested_tools is not a list of names")
	}
	var out []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out, nil
}

// stripThinkBlock removes a <think>...</think> reasoning block that some
// models emit before the answer.
func stripThinkBlock(s string) string {
	const open, close = "<think>", "</think>"
	start := strings.Index(s, open)
	if start < 0 {
		return strings.TrimSpace(s)
	}
	end := strings.Index(s, close)
	if end < 0 {
		// Unclosed block - drop everything from <think> onwards.
		return strings.TrimSpace(s[:start])
	}
	return strings.TrimSpace(s[:start] + s[end+len(close):])
}

// stripCodeFence removes ```json ... ``` or ``` ... ``` wrappers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
