package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/shardguard/internal/plan"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "plan this", req.Messages[1].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"[\"a\",\"b\"]"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL, "gpt-4o-mini", "sk-test", 0).Generate(context.Background(), "plan this")
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, got)
}

func TestNewNormalizesBaseURL(t *testing.T) {
	for _, base := range []string{"http://h:1", "http://h:1/", "http://h:1/v1", "http://h:1/v1/"} {
		assert.Equal(t, "http://h:1/v1/chat/completions", New(base, "m", "", 0).url, base)
	}
}

func TestGenerateNoAuthHeaderWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "m", "", 0).Generate(context.Background(), "x")
	require.NoError(t, err)
}

func TestGenerateBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "m", "", 0).Generate(context.Background(), "x")
	assert.True(t, errors.Is(err, plan.ErrProviderUnavailable))
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		kind plan.ErrorKind
	}{
		{"content", `{"choices":[{"message":{"content":" hi "}}]}`, "hi", 0},
		{"reasoning fallback", `{"choices":[{"message":{"content":"","reasoning":"[\"x\"]"}}]}`, `["x"]`, 0},
		{"reasoning_content fallback", `{"choices":[{"message":{"reasoning_content":"y"}}]}`, "y", 0},
		{"no choices", `{"choices":[]}`, "", plan.MalformedOutput},
		{"provider error", `{"error":{"message":"boom"}}`, "", plan.ProviderUnavailable},
		{"not json", `<html>`, "", plan.ProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeResponse([]byte(tt.body))
			if tt.kind != 0 {
				assert.Equal(t, tt.kind, plan.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
