package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	hubconfig "github.com/rustyeddy/pricehub/config"
	"github.com/rustyeddy/pricehub/pkg/logging"
)

// RootConfig carries the persistent flags shared by every subcommand.
type RootConfig struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

// Load reads the config file, or the defaults when none was given, and
// applies the logging flag overrides.
func (rc *RootConfig) Load() (*hubconfig.Config, error) {
	cfg := hubconfig.Default()
	if rc.ConfigPath != "" {
		loaded, err := hubconfig.LoadFromFile(rc.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if rc.LogLevel != "" {
		cfg.Log.Level = rc.LogLevel
	}
	if rc.LogFormat != "" {
		cfg.Log.Format = rc.LogFormat
	}
	return cfg, nil
}

// Logger builds the logger described by cfg.Log.
func (rc *RootConfig) Logger(cfg *hubconfig.Config) (*zap.Logger, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return log, nil
}

// Setup is Load followed by Logger, for commands that need both.
func (rc *RootConfig) Setup(cmd *cobra.Command) (*hubconfig.Config, *zap.Logger, error) {
	cfg, err := rc.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := rc.Logger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log.With(zap.String("cmd", cmd.Name())), nil
}
