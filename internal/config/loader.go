package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/toolhub/internal/mcp"
)

// Defaults filled in by [ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultHubTimeout     = 30 * time.Second
	DefaultMaxConcurrency = 16
	DefaultStatsWindow    = 100
	DefaultHumanWait      = 5 * time.Minute
	DefaultHealthInterval = 10 * time.Second
	DefaultTopK           = 10
	DefaultCodeMaxSteps   = 10_000_000
)

// KnownEmbeddingProviders lists the embedding backends that ship with the
// server. Used by [Validate] to warn about typos.
var KnownEmbeddingProviders = []string{"openai", "hashing"}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// from the environment, fills in defaults and validates the result.
// Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(expandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces ${VAR} with the variable's value. Unset variables
// expand to the empty string; a bare $ is left alone.
func expandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(m []byte) []byte {
		return []byte(os.Getenv(string(m[2 : len(m)-1])))
	})
}

// ApplyDefaults fills zero values with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if cfg.Hub.DefaultTimeout == 0 {
		cfg.Hub.DefaultTimeout = DefaultHubTimeout
	}
	if cfg.Hub.MaxConcurrency == 0 {
		cfg.Hub.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.Hub.StatsWindow == 0 {
		cfg.Hub.StatsWindow = DefaultStatsWindow
	}
	if cfg.Operator.HumanWait == 0 {
		cfg.Operator.HumanWait = DefaultHumanWait
	}
	if cfg.Health.Interval == 0 {
		cfg.Health.Interval = DefaultHealthInterval
	}

	if cfg.Code.MaxSteps == 0 {
		cfg.Code.MaxSteps = DefaultCodeMaxSteps
	}

	hs := &cfg.HybridSearch
	if hs.TopK == 0 {
		hs.TopK = DefaultTopK
	}
	if hs.Semantic.Backend == "postgres" && hs.Semantic.Table == "" {
		hs.Semantic.Table = "documents"
	}
	if hs.Relational.Backend != "" {
		if hs.Relational.Table == "" {
			hs.Relational.Table = "records"
		}
		if hs.Relational.IDColumn == "" {
			hs.Relational.IDColumn = "id"
		}
	}

	for i := range cfg.Tools {
		t := &cfg.Tools[i]
		switch t.Kind {
		case ToolHTTP:
			if t.Method == "" {
				t.Method = "POST"
			}
			t.Method = strings.ToUpper(t.Method)
		case ToolMCP:
			if t.Transport == "" {
				if t.Command != "" {
					t.Transport = mcp.TransportStdio
				} else {
					t.Transport = mcp.TransportStreamableHTTP
				}
			}
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if cfg.Server.OTLPEndpoint != "" {
		if err := validateURL(cfg.Server.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("server.otlp_endpoint: %w", err))
		}
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %v must be within [0, 1]", r))
	}

	// Hub
	if cfg.Hub.DefaultTimeout < 0 {
		errs = append(errs, fmt.Errorf("hub.default_timeout %s must not be negative", cfg.Hub.DefaultTimeout))
	}
	if cfg.Hub.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("hub.max_concurrency %d must not be negative", cfg.Hub.MaxConcurrency))
	}
	if cfg.Hub.StatsWindow < 0 {
		errs = append(errs, fmt.Errorf("hub.stats_window %d must not be negative", cfg.Hub.StatsWindow))
	}
	if cfg.Operator.HumanWait < 0 {
		errs = append(errs, fmt.Errorf("operator.human_wait %s must not be negative", cfg.Operator.HumanWait))
	}
	if cfg.Health.Interval < 0 {
		errs = append(errs, fmt.Errorf("health.interval %s must not be negative", cfg.Health.Interval))
	}

	// Embeddings
	emb := cfg.Embeddings
	if emb.Provider != "" && !slices.Contains(KnownEmbeddingProviders, emb.Provider) {
		slog.Warn("unknown embeddings provider; may be a typo or third-party provider",
			"name", emb.Provider, "known", KnownEmbeddingProviders)
	}
	if emb.Provider == "hashing" && emb.Dimensions <= 0 {
		errs = append(errs, errors.New("embeddings.dimensions is required for the hashing provider"))
	}
	if emb.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("embeddings.dimensions %d must not be negative", emb.Dimensions))
	}

	errs = append(errs, validateHybridSearch(cfg)...)

	// Tools
	seen := make(map[string]int, len(cfg.Tools))
	for i, t := range cfg.Tools {
		prefix := fmt.Sprintf("tools[%d]", i)
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[t.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of tools[%d]", prefix, t.Name, prev))
			}
			seen[t.Name] = i
		}
		errs = append(errs, validateTool(prefix, t)...)
	}

	return errors.Join(errs...)
}

func validateHybridSearch(cfg *Config) []error {
	var errs []error
	hs := cfg.HybridSearch
	if hs.TopK < 0 {
		errs = append(errs, fmt.Errorf("hybrid_search.top_k %d must not be negative", hs.TopK))
	}
	if hs.MinScore < -1 || hs.MinScore > 1 {
		errs = append(errs, fmt.Errorf("hybrid_search.min_score %.2f is out of range [-1, 1]", hs.MinScore))
	}

	switch hs.Semantic.Backend {
	case "":
	case "file":
		if hs.Semantic.Path == "" {
			errs = append(errs, errors.New("hybrid_search.semantic.path is required for the file backend"))
		}
	case "postgres":
		if hs.Semantic.DSN == "" {
			errs = append(errs, errors.New("hybrid_search.semantic.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("hybrid_search.semantic.backend %q is invalid; valid values: file, postgres", hs.Semantic.Backend))
	}

	switch hs.Relational.Backend {
	case "":
	case "sqlite":
		if hs.Relational.Path == "" {
			errs = append(errs, errors.New("hybrid_search.relational.path is required for the sqlite backend"))
		}
	case "postgres":
		if hs.Relational.DSN == "" {
			errs = append(errs, errors.New("hybrid_search.relational.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("hybrid_search.relational.backend %q is invalid; valid values: sqlite, postgres", hs.Relational.Backend))
	}

	if (hs.Semantic.Backend == "") != (hs.Relational.Backend == "") {
		errs = append(errs, errors.New("hybrid_search needs both a semantic and a relational store"))
	}
	if hs.Enabled() && cfg.Embeddings.Provider == "" {
		errs = append(errs, errors.New("hybrid_search requires embeddings.provider"))
	}
	return errs
}

func validateTool(prefix string, t ToolConfig) []error {
	var errs []error
	switch t.Kind {
	case ToolBuiltin:
	case ToolSubprocess:
		switch {
		case t.Address == "" && t.Command == "":
			errs = append(errs, fmt.Errorf("%s: subprocess tools need an address or a command", prefix))
		case t.Address != "" && t.Command != "":
			errs = append(errs, fmt.Errorf("%s: address and command are mutually exclusive", prefix))
		case t.Command != "" && (t.Port <= 0 || t.Port > 65535):
			errs = append(errs, fmt.Errorf("%s.port %d must be in 1..65535 when command is set", prefix, t.Port))
		}
		if t.CallTimeout < 0 {
			errs = append(errs, fmt.Errorf("%s.call_timeout %s must not be negative", prefix, t.CallTimeout))
		}
	case ToolHTTP:
		if err := validateURL(t.URL); err != nil {
			errs = append(errs, fmt.Errorf("%s.url: %w", prefix, err))
		}
		if t.Method != "" && t.Method != "GET" && t.Method != "POST" && t.Method != "PUT" {
			errs = append(errs, fmt.Errorf("%s.method %q is invalid; valid values: GET, POST, PUT", prefix, t.Method))
		}
		if t.Name != "" {
			if err := t.Descriptor().Validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
			}
		}
	case ToolMCP:
		if !t.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, t.Transport))
		}
		if t.Transport == mcp.TransportStdio && t.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if t.Transport == mcp.TransportStreamableHTTP {
			if err := validateURL(t.URL); err != nil {
				errs = append(errs, fmt.Errorf("%s.url: %w", prefix, err))
			}
		}
	case "":
		errs = append(errs, fmt.Errorf("%s.kind is required", prefix))
	default:
		errs = append(errs, fmt.Errorf("%s.kind %q is invalid; valid values: builtin, subprocess, http, mcp", prefix, t.Kind))
	}
	if t.DefaultTimeout < 0 {
		errs = append(errs, fmt.Errorf("%s.default_timeout %s must not be negative", prefix, t.DefaultTimeout))
	}
	return errs
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}
