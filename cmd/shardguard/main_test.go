package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/shardguard/internal/dispatch"
	"github.com/gonkalabs/shardguard/internal/plan"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SHARDGUARD_CONFIG", "SHARDGUARD_BACKEND", "SHARDGUARD_MODEL", "SHARDGUARD_RULES",
		"SHARDGUARD_AUDIT_LOG", "SHARDGUARD_MIN_LENGTH", "SHARDGUARD_ENTROPY",
		"SHARDGUARD_DISPATCH_URL", "SHARDGUARD_DISPATCH_TOOL", "GONKA_WALLETS", "GONKA_PRIVATE_KEY",
		"OLLAMA_URL",
	} {
		t.Setenv(k, "")
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPlanJSON(t *testing.T) {
	isolateEnv(t)
	out, err := run(t, "", "plan", "--json", "Setup server with password secret123")
	require.NoError(t, err)

	var a plan.Artifact
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	assert.Equal(t, "Setup server with password [PASSWORD_1]", a.OriginalPrompt)
	require.Len(t, a.SubPrompts, 1)
	assert.Equal(t, map[string]string{"[PASSWORD_1]": "secret123"}, a.SubPrompts[0].OpaqueValues)
}

func TestPlanHumanOutputHidesValues(t *testing.T) {
	isolateEnv(t)
	out, err := run(t, "Setup server with password secret123\n", "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "[PASSWORD_1]")
	assert.Contains(t, out, "credential")
	assert.NotContains(t, out, "secret123")
}

func TestPlanErrors(t *testing.T) {
	isolateEnv(t)
	_, err := run(t, "   ", "plan")
	assert.EqualError(t, err, "empty prompt")

	_, err = run(t, "", "plan", "--backend", "nope", "hi there")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")

	_, err = run(t, "", "plan", "--dispatch", "hi there")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--dispatch")
}

func TestPlanDispatch(t *testing.T) {
	isolateEnv(t)
	var got []dispatch.StepArgs
	tools := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "/tools/runner", r.URL.Path)
		var args dispatch.StepArgs
		require.NoError(t, json.NewDecoder(r.Body).Decode(&args))
		got = append(got, args)
		_, _ = w.Write([]byte(`{"done":true}`))
	}))
	defer tools.Close()
	t.Setenv("SHARDGUARD_DISPATCH_URL", tools.URL)
	t.Setenv("SHARDGUARD_DISPATCH_TOOL", "runner")

	out, err := run(t, "", "plan", "--json", "--dispatch", "log in with password hunter22")
	require.NoError(t, err)
	assert.Equal(t, []dispatch.StepArgs{{Step: 1, Content: "log in with password hunter22"}}, got)

	var res struct {
		Plan    plan.Artifact     `json:"plan"`
		Results []dispatch.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "log in with password [PASSWORD_1]", res.Plan.OriginalPrompt)
	require.Len(t, res.Results, 1)
	assert.JSONEq(t, `{"done":true}`, string(res.Results[0].Output))
}

func TestPlanWritesAuditLog(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	t.Setenv("SHARDGUARD_AUDIT_LOG", path)

	_, err := run(t, "", "plan", "password hunter22")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"plan created"`)
	assert.NotContains(t, string(data), "hunter22")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

// toolServer publishes a two-tool catalogue and records which tool each
// step was sent to.
func toolServer(t *testing.T, calls *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/tools" {
			_, _ = w.Write([]byte(`{"tools":[{"name":"shell","description":"run a command"},{"name":"mail"}]}`))
			return
		}
		*calls = append(*calls, strings.TrimPrefix(r.URL.Path, "/tools/"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func ollamaServer(t *testing.T, answer string, prompts *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*prompts = append(*prompts, req.Messages[0].Content)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": answer},
			"done":    true,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPlanRoutesStepsToSuggestedTools(t *testing.T) {
	isolateEnv(t)
	var calls, prompts []string
	t.Setenv("SHARDGUARD_DISPATCH_URL", toolServer(t, &calls).URL)
	t.Setenv("SHARDGUARD_BACKEND", "ollama")
	t.Setenv("OLLAMA_URL", ollamaServer(t, `I kept [EMAIL_1] apart:
{"sub_prompts":[{"content":"Provision a server","suggested_tools":["shell"]},{"content":"Notify [EMAIL_1]","suggested_tools":["mail"]}]}`, &prompts).URL)

	out, err := run(t, "", "plan", "--json", "--dispatch", "Provision a server and notify ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"shell", "mail"}, calls)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "- shell: run a command")
	assert.NotContains(t, prompts[0], "ops@example.com")

	var res struct {
		Plan    plan.Artifact     `json:"plan"`
		Results []dispatch.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"mail"}, res.Plan.SubPrompts[1].SuggestedTools)
	assert.Equal(t, "mail", res.Results[1].Tool)
}

func TestPlanRejectsToolOutsideCatalogue(t *testing.T) {
	isolateEnv(t)
	var calls, prompts []string
	t.Setenv("SHARDGUARD_DISPATCH_URL", toolServer(t, &calls).URL)
	t.Setenv("SHARDGUARD_BACKEND", "ollama")
	t.Setenv("OLLAMA_URL", ollamaServer(t,
		`[{"content":"Wipe the disk","suggested_tools":["rm"]}]`, &prompts).URL)

	_, err := run(t, "", "plan", "--dispatch", "Wipe the disk")
	require.Error(t, err)
	assert.True(t, plan.IsKind(err, plan.MalformedOutput))
	assert.Empty(t, calls)
}

func TestTools(t *testing.T) {
	isolateEnv(t)
	var calls []string
	t.Setenv("SHARDGUARD_DISPATCH_URL", toolServer(t, &calls).URL)

	out, err := run(t, "", "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "shell")
	assert.Contains(t, out, "run a command")
	assert.Contains(t, out, "execute")

	out, err = run(t, "", "tools", "--json")
	require.NoError(t, err)
	var got struct {
		Default string       `json:"default"`
		Tools   plan.Catalog `json:"tools"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "execute", got.Default)
	assert.Equal(t, []string{"shell", "mail"}, got.Tools.Names())
	assert.Empty(t, calls)
}

func TestToolsNeedsDispatchURL(t *testing.T) {
	isolateEnv(t)
	_, err := run(t, "", "tools")
	assert.ErrorContains(t, err, "SHARDGUARD_DISPATCH_URL")
}

func TestDetectors(t *testing.T) {
	isolateEnv(t)
	out, err := run(t, "", "detectors")
	require.NoError(t, err)
	for _, name := range []string{"reserved", "private_key", "password", "email", "iban"} {
		assert.Contains(t, out, name)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}
