// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads hookevents configuration with koanf.
//
// Sources are layered, later ones winning: built-in defaults, an optional
// YAML file, then command-line flags that were explicitly set.
package config

import (
	"net"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/hookevents/internal/logging"
	"github.com/holomush/hookevents/pkg/hook"
)

// CodeInvalidConfig is the error code for configuration that fails to load
// or validate.
const CodeInvalidConfig = "INVALID_CONFIG"

// Config is the resolved hookevents configuration.
type Config struct {
	// Prefix is prepended to every event name the CLI dispatches.
	Prefix string `koanf:"prefix"`
	// PluginsDir holds subscriber plugins. Empty disables plugin loading.
	PluginsDir string `koanf:"plugins_dir"`
	// LogFormat is "json" or "text".
	LogFormat string `koanf:"log_format"`
	// LogLevel is debug, info, warn, or error.
	LogLevel string `koanf:"log_level"`
	// MetricsAddr serves /metrics and health probes. Empty disables it.
	MetricsAddr string `koanf:"metrics_addr"`
	// DefaultPriority is the registry's priority for subscriptions that
	// omit one.
	DefaultPriority int `koanf:"default_priority"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		LogFormat:       logging.FormatJSON,
		LogLevel:        "info",
		DefaultPriority: hook.DefaultPriority,
	}
}

// RegisterFlags adds a flag for every configuration key to fs. Flag names
// use dashes where keys use underscores.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("prefix", d.Prefix, "prefix applied to event names")
	fs.String("plugins-dir", d.PluginsDir, "directory of subscriber plugins")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("metrics-addr", d.MetricsAddr, "metrics and health listen address (empty = disabled)")
	fs.Int("default-priority", d.DefaultPriority, "priority for subscriptions that omit one")
}

// Load resolves configuration from defaults, the YAML file at path (when
// path is not empty), and flags that were set on fs (when fs is not nil).
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	d := Defaults()
	for key, val := range map[string]any{
		"prefix":           d.Prefix,
		"plugins_dir":      d.PluginsDir,
		"log_format":       d.LogFormat,
		"log_level":        d.LogLevel,
		"metrics_addr":     d.MetricsAddr,
		"default_priority": d.DefaultPriority,
	} {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code(CodeInvalidConfig).With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeInvalidConfig).
				With("path", path).
				Hint("check that the config file exists and is valid YAML").
				Wrapf(err, "load config file")
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(CodeInvalidConfig).Wrapf(err, "load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code(CodeInvalidConfig).Wrapf(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.LogFormat != logging.FormatJSON && c.LogFormat != logging.FormatText {
		return oops.Code(CodeInvalidConfig).
			With("log_format", c.LogFormat).
			Errorf("log_format must be %q or %q, got %q", logging.FormatJSON, logging.FormatText, c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return oops.Code(CodeInvalidConfig).
			With("log_level", c.LogLevel).
			Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return oops.Code(CodeInvalidConfig).
				With("metrics_addr", c.MetricsAddr).
				Wrapf(err, "metrics_addr must be host:port")
		}
	}
	return nil
}
