package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)
	assert.Equal(t, ":2222", cfg.Listen)
	assert.Equal(t, SourceSHM, cfg.Table.Source)
	assert.Equal(t, "/dev/shm/market_prices", cfg.Table.SHMPath)
	assert.Equal(t, "Fake HFT DDE Server 1.0\nLogin:\n", cfg.Handshake.Banner)
	assert.NoError(t, cfg.Validate())

	tick, err := cfg.TickInterval()
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, tick)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing listen",
			mutate:  func(c *Config) { c.Listen = "" },
			wantErr: true,
			errMsg:  "listen is required",
		},
		{
			name:    "bad tick",
			mutate:  func(c *Config) { c.Tick = "fast" },
			wantErr: true,
			errMsg:  "tick",
		},
		{
			name:    "zero tick",
			mutate:  func(c *Config) { c.Tick = "0s" },
			wantErr: true,
			errMsg:  "tick must be positive",
		},
		{
			name:    "missing formulas",
			mutate:  func(c *Config) { c.Formulas = "" },
			wantErr: true,
			errMsg:  "formulas is required",
		},
		{
			name:    "unknown source",
			mutate:  func(c *Config) { c.Table.Source = "kafka" },
			wantErr: true,
			errMsg:  "table.source",
		},
		{
			name:    "shm without path",
			mutate:  func(c *Config) { c.Table.SHMPath = "" },
			wantErr: true,
			errMsg:  "table.shm_path",
		},
		{
			name:    "replay without file",
			mutate:  func(c *Config) { c.Table.Source = SourceReplay },
			wantErr: true,
			errMsg:  "table.replay_file",
		},
		{
			name: "replay with file",
			mutate: func(c *Config) {
				c.Table.Source = SourceReplay
				c.Table.ReplayFile = "ticks.csv"
			},
		},
		{
			name: "loop without interval",
			mutate: func(c *Config) {
				c.Table.Loop = true
				c.Table.ReplayInterval = ""
			},
			wantErr: true,
			errMsg:  "table.loop",
		},
		{
			name:    "negative write timeout",
			mutate:  func(c *Config) { c.Subscriber.WriteTimeout = "-1s" },
			wantErr: true,
			errMsg:  "subscriber.write_timeout",
		},
		{
			name:    "zero write timeout",
			mutate:  func(c *Config) { c.Subscriber.WriteTimeout = "0s" },
			wantErr: true,
			errMsg:  "subscriber.write_timeout must be a positive duration",
		},
		{
			name:    "missing write timeout",
			mutate:  func(c *Config) { c.Subscriber.WriteTimeout = "" },
			wantErr: true,
			errMsg:  "subscriber.write_timeout",
		},
		{
			name:    "bad handshake timeout",
			mutate:  func(c *Config) { c.Handshake.Timeout = "soon" },
			wantErr: true,
			errMsg:  "handshake.timeout",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: true,
			errMsg:  "log.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
			errMsg:  "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveAndLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricehub.yaml")

	cfg := Default()
	cfg.Listen = "127.0.0.1:9000"
	cfg.Journal.DBPath = "sessions.db"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveAndLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricehub.json")

	cfg := Default()
	cfg.Metrics.Addr = ":9102"
	require.NoError(t, cfg.SaveToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"metrics"`)

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricehub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":3333\"\ntable:\n  source: shm\n  shm_path: /tmp/prices\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":3333", cfg.Listen)
	assert.Equal(t, "/tmp/prices", cfg.Table.SHMPath)
	assert.Equal(t, "100ms", cfg.Tick)
	assert.Equal(t, "> Access granted\n", cfg.Handshake.Granted)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("listen: [unclosed\n"), 0644))
	_, err = LoadFromFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("tick: 0s\n"), 0644))
	_, err = LoadFromFile(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
