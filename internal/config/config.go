// Package config provides the configuration schema, loader, watcher and
// backend registry for the toolhub server.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/toolhub/internal/mcp"
	"github.com/MrWong99/toolhub/pkg/types"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto a slog level. Unknown and empty levels map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised format.
func (f LogFormat) IsValid() bool { return f == LogFormatText || f == LogFormatJSON }

// ToolKind selects the adapter behind a configured tool.
type ToolKind string

const (
	// ToolBuiltin runs a catalog tool inside the hub process.
	ToolBuiltin ToolKind = "builtin"

	// ToolSubprocess reaches a tool process over gRPC. With Command set the
	// hub launches the process itself; otherwise Address must point at a
	// running one.
	ToolSubprocess ToolKind = "subprocess"

	// ToolHTTP proxies a third-party HTTP API.
	ToolHTTP ToolKind = "http"

	// ToolMCP imports every tool an external MCP server offers.
	ToolMCP ToolKind = "mcp"
)

// IsValid reports whether k is a recognised tool kind.
func (k ToolKind) IsValid() bool {
	switch k {
	case ToolBuiltin, ToolSubprocess, ToolHTTP, ToolMCP:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Hub          HubConfig          `yaml:"hub"`
	Operator     OperatorConfig     `yaml:"operator"`
	Health       HealthConfig       `yaml:"health"`
	Embeddings   EmbeddingsConfig   `yaml:"embeddings"`
	HybridSearch HybridSearchConfig `yaml:"hybrid_search"`
	Files        FilesConfig        `yaml:"files"`
	Code         CodeConfig         `yaml:"code_interpreter"`
	Tools        []ToolConfig       `yaml:"tools"`
}

// ServerConfig holds network and logging settings for the HTTP gateway.
type ServerConfig struct {
	// ListenAddr is the TCP address the gateway listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is the one setting applied live when
	// the file changes.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects "text" (default) or "json" output.
	LogFormat LogFormat `yaml:"log_format"`

	// CORSOrigins lists browser origins allowed to call the gateway.
	CORSOrigins []string `yaml:"cors_origins"`

	// JWTSecret enables HS256 bearer auth when set. Supports ${VAR}.
	JWTSecret string `yaml:"jwt_secret"`

	// OTLPEndpoint, when set, exports traces over OTLP/HTTP to this URL
	// (e.g. "http://localhost:4318"). Empty keeps spans in-process.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// TraceSampleRatio samples root spans in [0,1]. Zero means sample all.
	// Spans continuing an incoming trace follow the caller's decision.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// HubConfig tunes dispatch.
type HubConfig struct {
	// DefaultTimeout applies when neither the caller nor the tool names a
	// deadline. Default 30s.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// MaxConcurrency bounds calls in flight. Default 16.
	MaxConcurrency int `yaml:"max_concurrency"`

	// StatsWindow is the number of recent calls kept per tool for latency
	// percentiles. Default 100.
	StatsWindow int `yaml:"stats_window"`
}

// OperatorConfig selects the surfaces through which a human answers
// human_input prompts.
type OperatorConfig struct {
	// Console reads answers from the server's stdin.
	Console bool `yaml:"console"`

	// WebSocket mounts /operator/ws.
	WebSocket bool `yaml:"websocket"`

	// Origins restricts websocket upgrades. Empty means same-origin only.
	Origins []string `yaml:"origins"`

	// HumanWait is how long human_input waits when the caller does not say.
	// Default 5m.
	HumanWait time.Duration `yaml:"human_wait"`
}

// HealthConfig tunes the subprocess liveness monitor.
type HealthConfig struct {
	// Interval between probes. Default 10s.
	Interval time.Duration `yaml:"interval"`
}

// EmbeddingsConfig selects the text-embedding backend used by
// hybrid_search.
type EmbeddingsConfig struct {
	// Provider is a name registered in the [Registry] ("openai", "hashing").
	Provider string `yaml:"provider"`

	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	// Dimensions fixes the vector length. Required for "hashing"; optional
	// for models that support shortening.
	Dimensions int `yaml:"dimensions"`
}

// HybridSearchConfig wires the two stores behind hybrid_search. The tool is
// only registered when both stores are configured.
type HybridSearchConfig struct {
	Semantic   SemanticStoreConfig   `yaml:"semantic"`
	Relational RelationalStoreConfig `yaml:"relational"`

	// TopK caps results when the caller does not. Default 10.
	TopK int `yaml:"top_k"`

	// MinScore drops weaker matches when the caller does not. Default 0.
	MinScore float64 `yaml:"min_score"`
}

// Enabled reports whether both stores are configured.
func (c HybridSearchConfig) Enabled() bool {
	return c.Semantic.Backend != "" && c.Relational.Backend != ""
}

// SemanticStoreConfig selects the document store.
type SemanticStoreConfig struct {
	// Backend is "file" (JSON document file) or "postgres" (pgvector).
	Backend string `yaml:"backend"`

	// Path is the document file (file backend).
	Path string `yaml:"path"`

	// DSN is the connection string (postgres backend). Supports ${VAR}.
	DSN string `yaml:"dsn"`

	// Table defaults to "documents" (postgres backend).
	Table string `yaml:"table"`
}

// RelationalStoreConfig selects the record table.
type RelationalStoreConfig struct {
	// Backend is "sqlite" or "postgres".
	Backend string `yaml:"backend"`

	// Path is the database file (sqlite backend).
	Path string `yaml:"path"`

	// DSN is the connection string (postgres backend). Supports ${VAR}.
	DSN string `yaml:"dsn"`

	// Table defaults to "records".
	Table string `yaml:"table"`

	// IDColumn joins rows to documents. Default "id".
	IDColumn string `yaml:"id_column"`
}

// FilesConfig roots the file tools.
type FilesConfig struct {
	// Root is the directory read_file, write_file, list_directory and
	// db_querier are confined to. Empty disables those tools.
	Root string `yaml:"root"`
}

// CodeConfig tunes code_interpreter.
type CodeConfig struct {
	// MaxSteps bounds interpreter steps per run, so abandoned programs
	// eventually give their worker slot back. Default 10,000,000.
	MaxSteps uint64 `yaml:"max_steps"`

	// Timeout is the tool's default deadline.
	Timeout time.Duration `yaml:"timeout"`
}

// ToolConfig registers one tool (or, for kind mcp, one server's tools).
type ToolConfig struct {
	// Name is the registered tool name. For kind mcp it labels the server;
	// the imported tools keep their own names.
	Name string `yaml:"name"`

	Kind ToolKind `yaml:"kind"`

	// Builtin names the catalog tool (builtin kind). Defaults to Name.
	Builtin string `yaml:"builtin"`

	// Address is host:port of a running subprocess (subprocess kind).
	Address string `yaml:"address"`

	// Command launches the process (subprocess kind, mcp stdio transport).
	// It is split on whitespace.
	Command string `yaml:"command"`

	// Env is appended to the launched process environment.
	Env map[string]string `yaml:"env"`

	// Port is where a launched subprocess listens on 127.0.0.1.
	Port int `yaml:"port"`

	// CallTimeout caps one RPC on top of the hub deadline (subprocess kind).
	CallTimeout time.Duration `yaml:"call_timeout"`

	// DefaultTimeout is the tool's default deadline (subprocess, http).
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// URL is the endpoint (http kind, mcp streamable-http transport).
	URL string `yaml:"url"`

	// Method is the HTTP method (http kind). Default POST.
	Method string `yaml:"method"`

	// Transport selects the MCP transport (mcp kind).
	Transport mcp.Transport `yaml:"transport"`

	// Headers are sent with every request (http kind). Values support
	// ${VAR}.
	Headers map[string]string `yaml:"headers"`

	// Description and Parameters declare the descriptor of an http tool;
	// remote APIs are not asked for one.
	Description string            `yaml:"description"`
	Parameters  []ParameterConfig `yaml:"parameters"`
}

// ParameterConfig declares one parameter of an http tool.
type ParameterConfig struct {
	Name        string          `yaml:"name"`
	Type        types.ParamType `yaml:"type"`
	Description string          `yaml:"description"`
	Required    bool            `yaml:"required"`
}

// Descriptor builds the declared descriptor of an http tool.
func (t ToolConfig) Descriptor() types.ToolDescriptor {
	ps := make(types.Parameters, 0, len(t.Parameters))
	for _, p := range t.Parameters {
		typ := p.Type
		if typ == "" {
			typ = types.TypeAny
		}
		ps = append(ps, types.Parameter{Name: p.Name, Type: typ, Description: p.Description, Required: p.Required})
	}
	return types.ToolDescriptor{Name: t.Name, Description: t.Description, Parameters: ps}
}

// BuiltinName returns Builtin, or Name when Builtin is empty.
func (t ToolConfig) BuiltinName() string {
	if t.Builtin != "" {
		return t.Builtin
	}
	return t.Name
}
