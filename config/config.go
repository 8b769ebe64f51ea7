// Package config loads and validates txnkvd's startup configuration, with
// the usual three-step precedence: defaults, then an optional YAML file,
// then environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration tree for txnkvd.
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Compression CompressionConfig `yaml:"compression"`
}

// EngineConfig tunes the transactional core.
type EngineConfig struct {
	NSlots           int           `yaml:"n_slots" env:"TXNKV_ENGINE_N_SLOTS"`
	MaxTxns          int           `yaml:"max_txns" env:"TXNKV_ENGINE_MAX_TXNS"`
	MaxWrites        int           `yaml:"max_writes" env:"TXNKV_ENGINE_MAX_WRITES"`
	KeyLen           int           `yaml:"key_len" env:"TXNKV_ENGINE_KEY_LEN"`
	WaitPollInterval time.Duration `yaml:"wait_poll_interval" env:"TXNKV_ENGINE_WAIT_POLL_INTERVAL"`
}

// ServerConfig controls the client-facing listener.
type ServerConfig struct {
	Network        string        `yaml:"network" env:"TXNKV_SERVER_NETWORK"` // "unix" or "tcp"
	Address        string        `yaml:"address" env:"TXNKV_SERVER_ADDRESS"`
	SessionTimeout time.Duration `yaml:"session_timeout" env:"TXNKV_SERVER_SESSION_TIMEOUT"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"TXNKV_LOG_LEVEL"`
	Format string `yaml:"format" env:"TXNKV_LOG_FORMAT"` // "json" or "text"
	Output string `yaml:"output" env:"TXNKV_LOG_OUTPUT"` // "stdout", "stderr", or a file path
}

// CompressionConfig controls the value codec the KV map stores through.
type CompressionConfig struct {
	Algorithm string `yaml:"algorithm" env:"TXNKV_COMPRESSION_ALGORITHM"` // "none", "snappy", "lz4", "zstd"
	MinSize   int    `yaml:"min_size" env:"TXNKV_COMPRESSION_MIN_SIZE"`
}

// DefaultConfig returns the stock configuration a fresh checkout starts
// from before any file or environment override is applied.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			NSlots:           128,
			MaxTxns:          32,
			MaxWrites:        64,
			KeyLen:           64,
			WaitPollInterval: 200 * time.Millisecond,
		},
		Server: ServerConfig{
			Network:        "unix",
			Address:        "/tmp/txnkvd.sock",
			SessionTimeout: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Compression: CompressionConfig{
			Algorithm: "none",
			MinSize:   256,
		},
	}
}

// Load builds a Config by layering a YAML file (if path is non-empty and
// exists) over the defaults, then applying environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// loadEnv applies TXNKV_* environment overrides on top of whatever the
// defaults/file already set.
func (c *Config) loadEnv() error {
	if v := os.Getenv("TXNKV_ENGINE_N_SLOTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: TXNKV_ENGINE_N_SLOTS: %w", err)
		}
		c.Engine.NSlots = n
	}
	if v := os.Getenv("TXNKV_ENGINE_MAX_TXNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: TXNKV_ENGINE_MAX_TXNS: %w", err)
		}
		c.Engine.MaxTxns = n
	}
	if v := os.Getenv("TXNKV_ENGINE_MAX_WRITES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: TXNKV_ENGINE_MAX_WRITES: %w", err)
		}
		c.Engine.MaxWrites = n
	}
	if v := os.Getenv("TXNKV_ENGINE_KEY_LEN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: TXNKV_ENGINE_KEY_LEN: %w", err)
		}
		c.Engine.KeyLen = n
	}
	if v := os.Getenv("TXNKV_ENGINE_WAIT_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: TXNKV_ENGINE_WAIT_POLL_INTERVAL: %w", err)
		}
		c.Engine.WaitPollInterval = d
	}

	if v := os.Getenv("TXNKV_SERVER_NETWORK"); v != "" {
		c.Server.Network = v
	}
	if v := os.Getenv("TXNKV_SERVER_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("TXNKV_SERVER_SESSION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: TXNKV_SERVER_SESSION_TIMEOUT: %w", err)
		}
		c.Server.SessionTimeout = d
	}

	if v := os.Getenv("TXNKV_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TXNKV_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("TXNKV_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}

	if v := os.Getenv("TXNKV_COMPRESSION_ALGORITHM"); v != "" {
		c.Compression.Algorithm = v
	}
	if v := os.Getenv("TXNKV_COMPRESSION_MIN_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: TXNKV_COMPRESSION_MIN_SIZE: %w", err)
		}
		c.Compression.MinSize = n
	}

	return nil
}

// Validate rejects configurations that would make the engine or server
// unusable before a single connection is accepted.
func (c *Config) Validate() error {
	if c.Engine.NSlots <= 0 {
		return fmt.Errorf("config: engine.n_slots must be positive")
	}
	if c.Engine.MaxTxns <= 0 {
		return fmt.Errorf("config: engine.max_txns must be positive")
	}
	if c.Engine.MaxWrites <= 0 {
		return fmt.Errorf("config: engine.max_writes must be positive")
	}
	if c.Engine.KeyLen <= 0 {
		return fmt.Errorf("config: engine.key_len must be positive")
	}
	if c.Engine.WaitPollInterval <= 0 {
		return fmt.Errorf("config: engine.wait_poll_interval must be positive")
	}

	switch c.Server.Network {
	case "unix", "tcp":
	default:
		return fmt.Errorf("config: server.network must be \"unix\" or \"tcp\", got %q", c.Server.Network)
	}
	if c.Server.Address == "" {
		return fmt.Errorf("config: server.address cannot be empty")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("config: logging.format must be \"json\" or \"text\", got %q", c.Logging.Format)
	}

	switch strings.ToLower(c.Compression.Algorithm) {
	case "none", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("config: compression.algorithm must be one of none/snappy/lz4/zstd, got %q", c.Compression.Algorithm)
	}
	if c.Compression.MinSize < 0 {
		return fmt.Errorf("config: compression.min_size cannot be negative")
	}

	return nil
}
