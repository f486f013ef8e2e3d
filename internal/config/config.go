package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Backends accepted for Cfg.Backend.
const (
	BackendNone   = "none"
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendGonka  = "gonka"
)

// WalletCfg holds the credentials for a single Gonka wallet.
type WalletCfg struct {
	PrivateKey string `toml:"private_key"` // hex secp256k1 private key (with or without 0x)
	Address    string `toml:"address"`     // bech32 requester address
}

// Cfg holds all runtime configuration. Values come from defaults, then the
// TOML file, then environment variables.
type Cfg struct {
	Backend string `toml:"backend"`

	// Model names the planning model. Empty selects the backend's default
	// (llama3.2 on Ollama); the openai backend requires it.
	Model       string        `toml:"model"`
	PlanTimeout time.Duration `toml:"plan_timeout"`

	Sanitize SanitizeCfg `toml:"sanitize"`
	Ollama   OllamaCfg   `toml:"ollama"`
	OpenAI   OpenAICfg   `toml:"openai"`
	Gonka    GonkaCfg    `toml:"gonka"`
	Server   ServerCfg   `toml:"server"`
	Dispatch DispatchCfg `toml:"dispatch"`

	// AuditLog is the file receiving JSON audit records. Empty means the
	// default logger.
	AuditLog string `toml:"audit_log"`
}

type SanitizeCfg struct {
	RulesFile string `toml:"rules_file"` // empty means the built-in rule set
	MinLength int    `toml:"min_length"`

	// High-entropy token detector, appended after the rules.
	Entropy          bool    `toml:"entropy"`
	EntropyMinLength int     `toml:"entropy_min_length"`
	EntropyThreshold float64 `toml:"entropy_threshold"`
}

type OllamaCfg struct {
	URL string `toml:"url"`
}

type OpenAICfg struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

type GonkaCfg struct {
	// SourceURL is the node used to discover active participants.
	SourceURL string      `toml:"source_url"` // e.g. http://node2.gonka.ai:8000
	Wallets   []WalletCfg `toml:"wallets"`
}

type ServerCfg struct {
	Port      int     `toml:"port"`
	RateLimit float64 `toml:"rate_limit"` // requests per second, 0 disables
	RateBurst int     `toml:"rate_burst"`
}

type DispatchCfg struct {
	URL  string `toml:"url"` // tool server base URL, empty disables dispatch
	Tool string `toml:"tool"`
}

// ListenAddr returns the server listen address, e.g. ":8080".
func (c *Cfg) ListenAddr() string { return ":" + strconv.Itoa(c.Server.Port) }

// Default returns the configuration used when nothing is set.
func Default() *Cfg {
	return &Cfg{
		Backend:     BackendNone,
		PlanTimeout: 2 * time.Minute,
		Sanitize: SanitizeCfg{
			MinLength:        3,
			EntropyMinLength: 16,
			EntropyThreshold: 4.5,
		},
		Ollama: OllamaCfg{URL: "http://localhost:11434"},
		OpenAI: OpenAICfg{BaseURL: "https://api.openai.com"},
		Gonka:  GonkaCfg{SourceURL: "http://node2.gonka.ai:8000"},
		Server: ServerCfg{
			Port:      8080,
			RateLimit: 5,
			RateBurst: 10,
		},
		Dispatch: DispatchCfg{Tool: "execute"},
	}
}

// Load reads .env (if present), then the TOML file at path (or
// SHARDGUARD_CONFIG when path is empty), then environment variables, and
// validates the result.
func Load(path string) (*Cfg, error) {
	// Best-effort: load .env from current directory
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = strings.TrimSpace(os.Getenv("SHARDGUARD_CONFIG"))
	}
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides cfg with any environment variables that are set.
func (c *Cfg) applyEnv() error {
	var errs ValidationErrors

	setString(&c.Backend, "SHARDGUARD_BACKEND")
	c.Backend = strings.ToLower(c.Backend)
	setString(&c.Model, "SHARDGUARD_MODEL")
	setString(&c.AuditLog, "SHARDGUARD_AUDIT_LOG")
	errs.add(setDuration(&c.PlanTimeout, "SHARDGUARD_PLAN_TIMEOUT"))

	setString(&c.Sanitize.RulesFile, "SHARDGUARD_RULES")
	errs.add(setInt(&c.Sanitize.MinLength, "SHARDGUARD_MIN_LENGTH"))
	setBool(&c.Sanitize.Entropy, "SHARDGUARD_ENTROPY")
	errs.add(setInt(&c.Sanitize.EntropyMinLength, "SHARDGUARD_ENTROPY_MIN_LENGTH"))
	errs.add(setFloat(&c.Sanitize.EntropyThreshold, "SHARDGUARD_ENTROPY_THRESHOLD"))

	setString(&c.Ollama.URL, "OLLAMA_URL")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")

	// Source URL: prefer GONKA_SOURCE_URL, fall back to GONKA_ENDPOINT
	setString(&c.Gonka.SourceURL, "GONKA_ENDPOINT")
	setString(&c.Gonka.SourceURL, "GONKA_SOURCE_URL")
	c.Gonka.SourceURL = strings.TrimSuffix(strings.TrimRight(c.Gonka.SourceURL, "/"), "/v1")
	wallets, err := loadWallets()
	if err != nil {
		errs.add(err)
	} else if wallets != nil {
		c.Gonka.Wallets = wallets
	}

	errs.add(setInt(&c.Server.Port, "PORT"))
	errs.add(setFloat(&c.Server.RateLimit, "SHARDGUARD_RATE_LIMIT"))
	errs.add(setInt(&c.Server.RateBurst, "SHARDGUARD_RATE_BURST"))

	setString(&c.Dispatch.URL, "SHARDGUARD_DISPATCH_URL")
	setString(&c.Dispatch.Tool, "SHARDGUARD_DISPATCH_TOOL")

	return errs.orNil()
}

// Validate checks every field and reports all problems at once.
func (c *Cfg) Validate() error {
	var errs ValidationErrors
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch c.Backend {
	case BackendNone, BackendOllama, BackendOpenAI:
	case BackendGonka:
		if len(c.Gonka.Wallets) == 0 {
			fail("gonka backend needs GONKA_WALLETS or GONKA_PRIVATE_KEY")
		}
		for i, w := range c.Gonka.Wallets {
			if w.PrivateKey == "" || w.Address == "" {
				fail("gonka wallet %d needs a private key and an address", i+1)
			}
		}
		if c.Gonka.SourceURL == "" {
			fail("gonka backend needs a source URL")
		}
	default:
		fail("backend %q is not one of none, ollama, openai, gonka", c.Backend)
	}
	if c.Backend == BackendOllama && c.Ollama.URL == "" {
		fail("ollama backend needs a URL")
	}
	if c.Backend == BackendOpenAI {
		if c.OpenAI.BaseURL == "" {
			fail("openai backend needs a base URL")
		}
		if c.Model == "" {
			fail("openai backend needs a model")
		}
	}
	if c.PlanTimeout <= 0 {
		fail("plan_timeout must be positive")
	}
	if c.Sanitize.MinLength < 1 {
		fail("sanitize.min_length must be at least 1")
	}
	if c.Sanitize.Entropy {
		if c.Sanitize.EntropyMinLength < 1 {
			fail("sanitize.entropy_min_length must be at least 1")
		}
		if c.Sanitize.EntropyThreshold <= 0 {
			fail("sanitize.entropy_threshold must be positive")
		}
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		fail("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		fail("server.rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		fail("server.rate_burst must be at least 1 when rate limiting")
	}
	if c.Dispatch.URL != "" && c.Dispatch.Tool == "" {
		fail("dispatch.tool is required when dispatch.url is set")
	}
	return errs.orNil()
}

// ValidationErrors collects configuration problems.
type ValidationErrors []error

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, err := range v {
		msgs[i] = err.Error()
	}
	return "config: " + strings.Join(msgs, "; ")
}

func (v ValidationErrors) Unwrap() []error { return v }

func (v *ValidationErrors) add(err error) {
	if err == nil {
		return
	}
	var nested ValidationErrors
	if errors.As(err, &nested) {
		*v = append(*v, nested...)
		return
	}
	*v = append(*v, err)
}

func (v ValidationErrors) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", key, v)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %q is not a number", key, v)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not a duration", key, v)
	}
	*dst = d
	return nil
}

// loadWallets builds the wallet list from environment variables. It returns
// nil when neither variable is set.
//
// Multi-wallet format (GONKA_WALLETS):
//
//	GONKA_WALLETS=privkey1:addr1,privkey2:addr2
//
// Single-wallet form:
//
//	GONKA_PRIVATE_KEY=... GONKA_ADDRESS=...
func loadWallets() ([]WalletCfg, error) {
	multi := strings.TrimSpace(os.Getenv("GONKA_WALLETS"))
	if multi != "" {
		return parseMultiWallets(multi)
	}

	pk := strings.TrimSpace(os.Getenv("GONKA_PRIVATE_KEY"))
	if pk == "" {
		return nil, nil
	}
	addr := strings.TrimSpace(os.Getenv("GONKA_ADDRESS"))
	return []WalletCfg{{PrivateKey: pk, Address: addr}}, nil
}

// parseMultiWallets parses "key1:addr1,key2:addr2" into WalletCfg slices.
func parseMultiWallets(raw string) ([]WalletCfg, error) {
	parts := strings.Split(raw, ",")
	var wallets []WalletCfg
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		// Split on first colon only (private keys may have 0x prefix but no colons)
		var pk, addr string
		if idx := strings.Index(part, ":"); idx >= 0 {
			pk = strings.TrimSpace(part[:idx])
			addr = strings.TrimSpace(part[idx+1:])
		} else {
			pk = part
		}
		if pk == "" {
			return nil, fmt.Errorf("wallet entry %d has empty private key", i+1)
		}
		wallets = append(wallets, WalletCfg{PrivateKey: pk, Address: addr})
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("GONKA_WALLETS is set but contains no valid entries")
	}
	return wallets, nil
}
