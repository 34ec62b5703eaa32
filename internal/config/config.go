// Package config loads provgraph settings from YAML or TOML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/provgraph/internal/classify"
	"github.com/roach88/provgraph/internal/querysql"
	"github.com/roach88/provgraph/internal/store"
)

// Config holds everything the CLI needs to open a graph and compile queries.
type Config struct {
	// Database is the SQLite file holding the provenance graph.
	Database DatabaseConfig `yaml:"database" toml:"database"`

	// Query tunes the compiler and the execution engine.
	Query QueryConfig `yaml:"query" toml:"query"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" toml:"log_level"`

	// BuiltinNamespace is the top-level namespace of built-in process types.
	BuiltinNamespace string `yaml:"builtin_namespace" toml:"builtin_namespace"`
}

// DatabaseConfig selects and sizes the SQLite connection.
type DatabaseConfig struct {
	Path         string `yaml:"path" toml:"path"`
	Driver       string `yaml:"driver" toml:"driver"`
	MaxOpenConns int    `yaml:"max_open_conns" toml:"max_open_conns"`
}

// QueryConfig tunes query compilation and streaming.
type QueryConfig struct {
	// ParamThreshold is the longest "in" list bound one parameter per value.
	ParamThreshold int `yaml:"param_threshold" toml:"param_threshold"`
	// ChunkSize bounds each set-membership chunk of a longer "in" list.
	ChunkSize int `yaml:"chunk_size" toml:"chunk_size"`
	// MaxDepth bounds ancestor/descendant closure walks.
	MaxDepth int `yaml:"max_depth" toml:"max_depth"`
	// BatchSize is the default streaming batch size.
	BatchSize int `yaml:"batch_size" toml:"batch_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	policy := querysql.DefaultInPolicy(querysql.DialectSQLite)
	return &Config{
		Database: DatabaseConfig{
			Path:         "provgraph.db",
			Driver:       store.DriverMattn,
			MaxOpenConns: store.DefaultOptions().MaxOpenConns,
		},
		Query: QueryConfig{
			ParamThreshold: policy.ParamThreshold,
			ChunkSize:      policy.ChunkSize,
			MaxDepth:       1000,
			BatchSize:      100,
		},
		LogLevel:         "warn",
		BuiltinNamespace: classify.DefaultBuiltinNamespace,
	}
}

// Load reads a config file. The format follows the extension: .yaml and .yml
// are YAML, .toml is TOML. Fields the file leaves out keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var format string
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		format = "yaml"
	case ".toml":
		format = "toml"
	default:
		return nil, fmt.Errorf("unsupported config format %q: use .yaml, .yml or .toml", ext)
	}

	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a config document in the given format ("yaml" or "toml")
// over the defaults and validates the result.
func Parse(data []byte, format string) (*Config, error) {
	cfg := Default()
	switch format {
	case "yaml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	case "toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown field %q", undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unusable settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	switch c.Database.Driver {
	case store.DriverMattn, store.DriverModernc:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: must be %q or %q",
			c.Database.Driver, store.DriverMattn, store.DriverModernc))
	}
	positive := []struct {
		name  string
		value int
	}{
		{"database.max_open_conns", c.Database.MaxOpenConns},
		{"query.param_threshold", c.Query.ParamThreshold},
		{"query.chunk_size", c.Query.ChunkSize},
		{"query.max_depth", c.Query.MaxDepth},
		{"query.batch_size", c.Query.BatchSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.name, p.value))
		}
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.BuiltinNamespace == "" || strings.Contains(c.BuiltinNamespace, ".") {
		errs = append(errs, fmt.Errorf("builtin_namespace %q must be a single non-empty segment", c.BuiltinNamespace))
	}
	return errors.Join(errs...)
}

// StoreOptions returns the store options for the configured database.
func (c *Config) StoreOptions() store.Options {
	opts := store.DefaultOptions()
	opts.Driver = c.Database.Driver
	opts.MaxOpenConns = c.Database.MaxOpenConns
	return opts
}

// InPolicy returns the in-clause rendering policy.
func (c *Config) InPolicy() querysql.InPolicy {
	return querysql.InPolicy{ParamThreshold: c.Query.ParamThreshold, ChunkSize: c.Query.ChunkSize}
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelWarn
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level %q: must be debug, info, warn or error", s)
	}
	return level, nil
}
