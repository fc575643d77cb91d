package rpc

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultMaxWorkers bounds concurrent calls inside one subprocess.
const DefaultMaxWorkers = 8

// ServerConfig is the static configuration of a tool subprocess. It is read
// once at startup; any problem with it is fatal.
type ServerConfig struct {
	// Host defaults to 127.0.0.1.
	Host string `yaml:"host"`

	// Port is required.
	Port int `yaml:"port"`

	// Tool names the built-in tool this process hosts.
	Tool string `yaml:"tool"`

	// MaxWorkers bounds concurrent calls. Default 8.
	MaxWorkers int `yaml:"max_workers"`

	// Settings optionally points to a hub configuration file whose tool
	// sections (files, hybrid_search, ...) configure the hosted tool.
	Settings string `yaml:"settings"`
}

// Address returns host:port.
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *ServerConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
}

// Validate reports every problem at once.
func (c ServerConfig) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port: must be in 1..65535, got %d", c.Port))
	}
	if c.Tool == "" {
		errs = append(errs, errors.New("tool: is required"))
	}
	if c.MaxWorkers < 0 {
		errs = append(errs, fmt.Errorf("max_workers: must not be negative, got %d", c.MaxWorkers))
	}
	return errors.Join(errs...)
}

// LoadServerConfig reads a YAML (or JSON) server config from path.
func LoadServerConfig(path string) (ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("rpc: read server config: %w", err)
	}
	return ParseServerConfig(data)
}

// ParseServerConfig decodes and validates a server config. Unknown keys are
// rejected.
func ParseServerConfig(data []byte) (ServerConfig, error) {
	var cfg ServerConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("rpc: parse server config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, fmt.Errorf("rpc: invalid server config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// ClientConfig describes how the hub reaches one tool subprocess.
type ClientConfig struct {
	// Address is host:port of the subprocess.
	Address string

	// CallTimeout caps a single Run call on top of the hub deadline. Zero
	// leaves the hub deadline in charge.
	CallTimeout time.Duration

	// DefaultTimeout is reported to the hub as this tool's default deadline.
	DefaultTimeout time.Duration

	// ProbeTimeout bounds one health check. Default 2s.
	ProbeTimeout time.Duration
}
