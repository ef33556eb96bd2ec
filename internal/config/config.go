// Package config loads the tool configuration from dstoolkit.yaml and
// DSTOOLKIT_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all tool configuration
type Config struct {
	Backend   string          `mapstructure:"backend"`
	Timezone  string          `mapstructure:"timezone"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Emulation EmulationConfig `mapstructure:"emulation"`
	Log       LogConfig       `mapstructure:"log"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type EmulationConfig struct {
	// MaxRows bounds in-memory filtering. Zero removes the ceiling.
	MaxRows int `mapstructure:"max_rows"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// GetDefaults returns a Config with all default values
func GetDefaults() *Config {
	return &Config{
		Backend:   "memory",
		Timezone:  "UTC",
		Emulation: EmulationConfig{MaxRows: 10000},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads configuration. An explicit path must exist; otherwise
// dstoolkit.yaml is looked up in the current directory then in the user
// config directory, and a missing file means defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	d := GetDefaults()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("timezone", d.Timezone)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("emulation.max_rows", d.Emulation.MaxRows)
	v.SetDefault("log.level", d.Log.Level)

	v.SetEnvPrefix("DSTOOLKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dstoolkit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if configDir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(configDir, "dstoolkit"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated and parsed values.
func (c *Config) Validate() error {
	switch c.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("backend must be memory or sqlite, got %q", c.Backend)
	}
	if c.Emulation.MaxRows < 0 {
		return fmt.Errorf("emulation.max_rows must not be negative, got %d", c.Emulation.MaxRows)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// Location returns the default timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// LogLevel parses log.level (debug, info, warn, error).
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return level, nil
}
