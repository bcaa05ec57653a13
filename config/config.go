package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Table sources.
const (
	SourceSHM    = "shm"
	SourceReplay = "replay"
)

// Config represents the complete hub configuration
type Config struct {
	Listen     string           `json:"listen" yaml:"listen"`
	Tick       string           `json:"tick" yaml:"tick"` // e.g. "100ms"
	Formulas   string           `json:"formulas" yaml:"formulas"`
	Table      TableConfig      `json:"table" yaml:"table"`
	Handshake  HandshakeConfig  `json:"handshake" yaml:"handshake"`
	Subscriber SubscriberConfig `json:"subscriber" yaml:"subscriber"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// TableConfig selects where base quotes come from
type TableConfig struct {
	Source         string `json:"source" yaml:"source"` // "shm" or "replay"
	SHMPath        string `json:"shm_path,omitempty" yaml:"shm_path,omitempty"`
	ReplayFile     string `json:"replay_file,omitempty" yaml:"replay_file,omitempty"`
	ReplayInterval string `json:"replay_interval,omitempty" yaml:"replay_interval,omitempty"`
	Loop           bool   `json:"loop,omitempty" yaml:"loop,omitempty"`
}

// HandshakeConfig holds the login exchange texts
type HandshakeConfig struct {
	Banner         string `json:"banner" yaml:"banner"`
	PasswordPrompt string `json:"password_prompt" yaml:"password_prompt"`
	Granted        string `json:"granted" yaml:"granted"`
	Timeout        string `json:"timeout" yaml:"timeout"` // empty or 0 uses the server default
}

// SubscriberConfig bounds per-connection writes
type SubscriberConfig struct {
	WriteTimeout string `json:"write_timeout" yaml:"write_timeout"`
}

// JournalConfig contains session journaling parameters. An empty DBPath
// disables the journal.
type JournalConfig struct {
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "json" or "console"
}

// TickInterval converts the tick string to time.Duration
func (c *Config) TickInterval() (time.Duration, error) {
	return parseDuration(c.Tick)
}

func (t TableConfig) ReplayEvery() (time.Duration, error) {
	return parseDuration(t.ReplayInterval)
}

func (h HandshakeConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration(h.Timeout)
}

func (s SubscriberConfig) WriteTimeoutDuration() (time.Duration, error) {
	return parseDuration(s.WriteTimeout)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// LoadFromFile loads configuration from a file (YAML or JSON). Fields the
// file leaves out keep their Default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	tick, err := c.TickInterval()
	if err != nil {
		return fmt.Errorf("tick: %w", err)
	}
	if tick <= 0 {
		return fmt.Errorf("tick must be positive")
	}
	if c.Formulas == "" {
		return fmt.Errorf("formulas is required")
	}

	switch c.Table.Source {
	case SourceSHM:
		if c.Table.SHMPath == "" {
			return fmt.Errorf("table.shm_path required for shm source")
		}
	case SourceReplay:
		if c.Table.ReplayFile == "" {
			return fmt.Errorf("table.replay_file required for replay source")
		}
	default:
		return fmt.Errorf("table.source must be 'shm' or 'replay'")
	}
	every, err := c.Table.ReplayEvery()
	if err != nil || every < 0 {
		return fmt.Errorf("table.replay_interval must be a non-negative duration")
	}
	if c.Table.Loop && every == 0 {
		return fmt.Errorf("table.replay_interval must be positive when table.loop is set")
	}

	if d, err := c.Handshake.TimeoutDuration(); err != nil || d < 0 {
		return fmt.Errorf("handshake.timeout must be a non-negative duration")
	}
	if d, err := c.Subscriber.WriteTimeoutDuration(); err != nil || d <= 0 {
		return fmt.Errorf("subscriber.write_timeout must be a positive duration")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be 'json' or 'console'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Listen:   ":2222",
		Tick:     "100ms",
		Formulas: "formulas.cfg",
		Table: TableConfig{
			Source:         SourceSHM,
			SHMPath:        "/dev/shm/market_prices",
			ReplayInterval: "250ms",
		},
		Handshake: HandshakeConfig{
			Banner:         "Fake HFT DDE Server 1.0\nLogin:\n",
			PasswordPrompt: "Password:\n",
			Granted:        "> Access granted\n",
			Timeout:        "30s",
		},
		Subscriber: SubscriberConfig{
			WriteTimeout: "50ms",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
