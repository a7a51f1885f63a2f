package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"dhashfinder/fingerprint"
	"dhashfinder/signalhandler"
	"dhashfinder/utils"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by every command. Command-line flags
// that were set explicitly take precedence over these values.
type Config struct {
	Database    string `yaml:"database"`
	HashSize    int    `yaml:"hash_size"`
	Resampler   string `yaml:"resampler"`
	Workers     int    `yaml:"workers"`
	MaxResults  int    `yaml:"max_results"`
	MaxDistance int    `yaml:"max_distance"`
	LogFile     string `yaml:"log_file"`
	Debug       bool   `yaml:"debug"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Database:    utils.GetDefaultDatabasePath(),
		HashSize:    fingerprint.DefaultHashSize,
		Resampler:   fingerprint.DefaultResampler,
		Workers:     signalhandler.GetOptimalProcs(),
		MaxResults:  10,
		MaxDistance: 10,
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults; a path that does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read the config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings for values no command can work with
func (c Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.HashSize < 1 {
		return fmt.Errorf("hash_size must be at least 1, got %d", c.HashSize)
	}
	if _, err := fingerprint.Lookup(c.Resampler); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.MaxResults < 0 {
		return fmt.Errorf("max_results must not be negative, got %d", c.MaxResults)
	}
	if c.MaxDistance < 0 {
		return fmt.Errorf("max_distance must not be negative, got %d", c.MaxDistance)
	}
	return nil
}

// Marshal renders the settings as YAML
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
