// Package upstream is the signed transport to the Gonka inference network.
// It discovers transfer-agent endpoints from a source node and sends each
// request, signed with the next pool wallet, to a random endpoint.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gonkalabs/shardguard/internal/wallet"
)

// Endpoint represents a Gonka network node with its transfer address.
type Endpoint struct {
	URL     string // e.g. http://node2.gonka.ai:8000/v1
	Address string // bech32 address of this host
}

// defaultTransferAgents is the allowlist of nodes that support the Transfer
// Agent feature. Only these endpoints accept proxied inference requests.
var defaultTransferAgents = []string{
	"gonka1y2a9p56kv044327uycmqdexl7zs82fs5ryv5le",
	"gonka1dkl4mah5erqggvhqkpc8j3qs5tyuetgdy552cp",
	"gonka1kx9mca3xm8u8ypzfuhmxey66u0ufxhs7nm6wc5",
	"gonka1ddswmmmn38esxegjf6qw36mt4aqyw6etvysy5x",
	"gonka10fynmy2npvdvew0vj2288gz8ljfvmjs35lat8n",
	"gonka1v8gk5z7gcv72447yfcd2y8g78qk05yc4f3nk4w",
	"gonka1gndhek2h2y5849wf6tmw6gnw9qn4vysgljed0u",
}

const maxBodyBytes = 4 << 20

// Options tune a Client.
type Options struct {
	AllowedAgents []string      // nil means the built-in allowlist
	Timeout       time.Duration // per request, default 120s
	Attempts      int           // endpoints tried per request, default 3
}

// Client talks to the Gonka API with signed requests.
type Client struct {
	sourceURL string
	pool      *wallet.Pool
	allowed   map[string]bool
	attempts  int

	mu        sync.RWMutex
	endpoints []Endpoint

	http *http.Client
}

// New creates a Client. sourceURL is a bare node URL
// (e.g. http://node2.gonka.ai:8000) used to discover participants.
func New(sourceURL string, pool *wallet.Pool, opts Options) *Client {
	agents := opts.AllowedAgents
	if agents == nil {
		agents = defaultTransferAgents
	}
	allowed := make(map[string]bool, len(agents))
	for _, a := range agents {
		allowed[a] = true
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	return &Client{
		sourceURL: strings.TrimSuffix(strings.TrimRight(sourceURL, "/"), "/v1"),
		pool:      pool,
		allowed:   allowed,
		attempts:  opts.Attempts,
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// DiscoverEndpoints fetches the active participant list from the source
// node and keeps the allowlisted transfer agents.
func (c *Client) DiscoverEndpoints(ctx context.Context) error {
	url := c.sourceURL + "/v1/epochs/current/participants"
	slog.Info("discovering endpoints", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discover: status %d", resp.StatusCode)
	}

	var result struct {
		ActiveParticipants struct {
			Participants []struct {
				Index        string `json:"index"`
				InferenceURL string `json:"inference_url"`
			} `json:"participants"`
		} `json:"active_participants"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&result); err != nil {
		return fmt.Errorf("discover: decode: %w", err)
	}

	var eps []Endpoint
	for _, p := range result.ActiveParticipants.Participants {
		if p.InferenceURL == "" || p.Index == "" || !c.allowed[p.Index] {
			continue
		}
		eps = append(eps, Endpoint{URL: strings.TrimRight(p.InferenceURL, "/") + "/v1", Address: p.Index})
	}
	if len(eps) == 0 {
		return fmt.Errorf("discover: no allowlisted transfer-agent endpoints among active participants")
	}

	c.mu.Lock()
	c.endpoints = eps
	c.mu.Unlock()

	slog.Info("endpoints discovered", "count", len(eps), "allowlisted", len(c.allowed))
	return nil
}

// Endpoints returns the currently known endpoints.
func (c *Client) Endpoints() []Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Endpoint, len(c.endpoints))
	copy(out, c.endpoints)
	return out
}

// pickEndpointExcluding returns a random endpoint not in the excluded set,
// or any endpoint once all have been tried.
func (c *Client) pickEndpointExcluding(exclude map[string]bool) (Endpoint, error) {
	eps := c.Endpoints()
	if len(eps) == 0 {
		return Endpoint{}, fmt.Errorf("no endpoints available")
	}
	var candidates []Endpoint
	for _, ep := range eps {
		if !exclude[ep.Address] {
			candidates = append(candidates, ep)
		}
	}
	if len(candidates) == 0 {
		return eps[rand.IntN(len(eps))], nil
	}
	return candidates[rand.IntN(len(candidates))], nil
}

// Do sends a signed request and returns the response body and status. When
// an endpoint cannot be reached the next attempt goes to a different one;
// any HTTP response, whatever its status, ends the call.
func (c *Client) Do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var lastErr error
	tried := map[string]bool{}
	for attempt := 0; attempt < c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		ep, err := c.pickEndpointExcluding(tried)
		if err != nil {
			return nil, 0, err
		}
		tried[ep.Address] = true

		resp, err := c.doWith(ctx, ep, c.pool.Next(), method, path, payload)
		if err != nil {
			slog.Warn("upstream: endpoint failed, trying another", "attempt", attempt+1, "endpoint_addr", ep.Address, "err", err)
			lastErr = err
			continue
		}
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		return b, resp.StatusCode, err
	}
	return nil, 0, lastErr
}

// doWith executes a signed request against one endpoint using wallet w.
func (c *Client) doWith(ctx context.Context, ep Endpoint, w *wallet.Wallet, method, path string, payload []byte) (*http.Response, error) {
	url := ep.URL + path
	sig, ts := w.Signer.Sign(payload, ep.Address)

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", sig)
	req.Header.Set("X-Requester-Address", w.Address)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))

	slog.Debug("upstream request", "method", method, "url", url, "endpoint_addr", ep.Address, "wallet", w.Address)
	return c.http.Do(req)
}
