package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/qri-io/zarr"
)

// configEnv names the environment variable read when --config is not given
const configEnv = "ZARRINFO_CONFIG"

// Config holds zarrinfo defaults. Flags override every field.
type Config struct {
	// Format is the output format: json, yaml or info.
	Format string `yaml:"format"`
	// NodeType is the node type to expect: array, group or empty.
	NodeType string `yaml:"node_type"`
	// ZarrFormat is the format version to expect: 2, 3 or 0 for either.
	ZarrFormat int `yaml:"zarr_format"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the configuration used without a file
func DefaultConfig() *Config {
	return &Config{
		Format:   "json",
		LogLevel: "warn",
	}
}

// LoadConfig reads the file named by path, or by ZARRINFO_CONFIG when path
// is empty. With neither set the defaults are returned.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(configEnv)
	}
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []error

	switch c.Format {
	case "json", "yaml", "info":
	default:
		errs = append(errs, fmt.Errorf("format must be one of: json, yaml, info; got %q", c.Format))
	}
	if _, err := zarr.ParseNodeType(c.NodeType); err != nil {
		errs = append(errs, err)
	}
	if _, err := zarr.ParseZarrFormat(c.ZarrFormat); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.level(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (c *Config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return l, nil
}
