// Package config loads dirlock CLI settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is read from the working directory when no config path is
// given.
const DefaultFileName = ".dirlock.yaml"

// Log formats.
const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config holds CLI settings. Zero fields in a file keep their defaults.
type Config struct {
	// LogLevel is a zerolog level name.
	LogLevel string `yaml:"log_level"`
	// LogFormat is auto, console or json. Auto picks console on a terminal.
	LogFormat string `yaml:"log_format"`
	// MetricsFile, if set, receives Prometheus metrics after each command.
	MetricsFile string `yaml:"metrics_file"`
	// Shell runs commands given to exec --shell.
	Shell string `yaml:"shell"`
	// HeartbeatInterval is how often a waiting command reports progress.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// Default returns the built-in settings.
func Default() Config {
	shell := "/bin/sh"
	if runtime.GOOS == "windows" {
		shell = "cmd"
	}

	return Config{
		LogLevel:          "warn",
		LogFormat:         FormatAuto,
		Shell:             shell,
		HeartbeatInterval: 5 * time.Second,
	}
}

// Load reads the config file at path over the defaults. An empty path reads
// DefaultFileName if it exists and otherwise returns the defaults.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	switch c.LogFormat {
	case FormatAuto, FormatConsole, FormatJSON:
	default:
		return fmt.Errorf("log_format: unknown format %q (want auto, console or json)", c.LogFormat)
	}

	if c.Shell == "" {
		return errors.New("shell: must not be empty")
	}

	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeat_interval: must not be negative, got %s", c.HeartbeatInterval)
	}

	return nil
}

// Level returns the parsed log level. Call Validate first.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.WarnLevel
	}

	return level
}
