// Package config loads chash run settings.
//
// Settings come from three layers, later layers winning: Default(), an
// optional YAML file (Load), then command-line flags applied by the CLI.
// The merged result is checked with Validate before a run starts.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultOutput is the audit log path used when none is configured.
const DefaultOutput = "output.txt"

// Config holds the settings for one run.
type Config struct {
	// Output is the audit log path. "-" writes to stdout.
	Output string `yaml:"output" json:"output"`

	// Database is the SQLite archive path. Empty disables archiving.
	Database string `yaml:"database" json:"database"`

	// Workers bounds concurrent command tasks. Zero means unbounded.
	Workers int `yaml:"workers" json:"workers"`

	NormalizeNames bool `yaml:"normalize_names" json:"normalize_names"`

	// MetricsFile receives a Prometheus textfile export after the run.
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{Output: DefaultOutput}
}

// Load reads a YAML config file over Default(). Unknown keys are rejected.
// An empty file yields the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data over Default().
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Resolve returns Load(path), or Default() when path is empty.
func Resolve(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
