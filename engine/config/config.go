package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Carmen-Shannon/oxy-threedom/engine/cache"
	"github.com/Carmen-Shannon/oxy-threedom/engine/capability"
	"github.com/Carmen-Shannon/oxy-threedom/engine/sandbox"

	"github.com/pelletier/go-toml/v2"
)

// Transport names accepted by [context] transport.
const (
	TransportWorker    = "worker"
	TransportWebSocket = "websocket"
)

var errInvalidConfig = errors.New("invalid config")

// Duration is a time.Duration written as a string such as "10s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config is the file configuration of hosts, sandbox servers and the CLI.
type Config struct {
	Cache   Cache   `toml:"cache"`
	Context Context `toml:"context"`
	Sandbox Sandbox `toml:"sandbox"`
	Log     Log     `toml:"log"`
}

type Cache struct {
	EvictionThreshold int `toml:"eviction_threshold"`
}

type Context struct {
	// Capabilities is a comma separated list such as "messaging,material-properties".
	Capabilities    string   `toml:"capabilities"`
	MutationTimeout Duration `toml:"mutation_timeout"`
	Transport       string   `toml:"transport"`
	SandboxURL      string   `toml:"sandbox_url"`
	GrantSecret     string   `toml:"grant_secret"`
	GrantTTL        Duration `toml:"grant_ttl"`
}

type Sandbox struct {
	ListenAddr    string   `toml:"listen_addr"`
	StartupScript string   `toml:"startup_script"`
	FetchTimeout  Duration `toml:"fetch_timeout"`
}

type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the configuration used for every key a file leaves out.
//
// Returns:
//   - Config: the defaults
func Default() Config {
	return Config{
		Cache: Cache{EvictionThreshold: cache.DefaultEvictionThreshold},
		Context: Context{
			MutationTimeout: Duration(sandbox.DefaultMutationTimeout),
			Transport:       TransportWorker,
			GrantTTL:        Duration(time.Hour),
		},
		Sandbox: Sandbox{
			ListenAddr:   "127.0.0.1:8787",
			FetchTimeout: Duration(30 * time.Second),
		},
	}
}

// Load reads a TOML file over the defaults. An empty path yields the defaults.
//
// Parameters:
//   - path: the file path, or ""
//
// Returns:
//   - Config: the configuration
//   - error: error if the file cannot be read, has unknown keys or fails validation
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML text over the defaults.
//
// Parameters:
//   - data: the TOML text
//
// Returns:
//   - Config: the configuration
//   - error: error if the text is malformed, has unknown keys or fails validation
func Parse(data []byte) (Config, error) {
	cfg := Default()
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the decoder cannot.
func (c Config) Validate() error {
	if c.Cache.EvictionThreshold < 0 {
		return fmt.Errorf("%w: cache.eviction_threshold must not be negative", errInvalidConfig)
	}
	if _, err := c.CapabilitySet(); err != nil {
		return fmt.Errorf("%w: context.capabilities: %v", errInvalidConfig, err)
	}
	switch c.Context.Transport {
	case TransportWorker:
	case TransportWebSocket:
		if c.Context.SandboxURL == "" || c.Context.GrantSecret == "" {
			return fmt.Errorf("%w: websocket transport needs context.sandbox_url and context.grant_secret", errInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", errInvalidConfig, c.Context.Transport)
	}
	return nil
}

// CapabilitySet parses Context.Capabilities.
func (c Config) CapabilitySet() (capability.Set, error) {
	return capability.Parse(c.Context.Capabilities)
}

// Encode writes the configuration as TOML.
func (c Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
