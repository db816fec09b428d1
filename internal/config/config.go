// Package config loads the settings of the fowl command.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const EnvPrefix = "FOWL_"

type Config struct {
	// Engine is bolt, badger or memory.
	Engine string `mapstructure:"engine"`
	// Path is the Bolt file or the Badger directory.
	Path string `mapstructure:"path"`
	// Output is json or yaml.
	Output  string `mapstructure:"output"`
	Verbose bool   `mapstructure:"verbose"`

	Index IndexConfig `mapstructure:"index"`
	Log   LogConfig   `mapstructure:"log"`
}

type IndexConfig struct {
	Cleanup bool `mapstructure:"cleanup"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine", "bolt")
	v.SetDefault("path", "fowl.db")
	v.SetDefault("output", "json")
	v.SetDefault("verbose", false)
	v.SetDefault("index.cleanup", false)
	v.SetDefault("log.level", "warning")
	v.SetDefault("log.format", "text")
}

// Load reads the config file at path, or fowl.yaml in the current directory
// if path is empty and such a file exists, then applies FOWL_* environment
// variables on top: FOWL_INDEX_CLEANUP sets index.cleanup.
func Load(path string) (*Config, error) {
	return load(path, os.Environ())
}

func load(path string, environ []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("fowl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	for _, envStr := range environ {
		key, value, ok := strings.Cut(envStr, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		// FOWL_LOG_LEVEL -> log.level
		propKey := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(key, EnvPrefix), "_", "."))
		v.Set(propKey, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Output {
	case "json", "yaml":
	default:
		return fmt.Errorf("invalid output %q, want json or yaml", c.Output)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, want text or json", c.Log.Format)
	}
	return nil
}

// Logger builds the logger described by the log settings.
func (c *Config) Logger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if lvl, err := logrus.ParseLevel(c.Log.Level); err == nil {
		l.SetLevel(lvl)
	}
	if c.Verbose && l.GetLevel() < logrus.DebugLevel {
		l.SetLevel(logrus.DebugLevel)
	}
	if c.Log.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}
