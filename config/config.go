package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables honoured by ApplyEnv.
const (
	EnvOutput      = "MANGAMERGE_OUTPUT"
	EnvFormat      = "MANGAMERGE_FORMAT"
	EnvDBPath      = "MANGAMERGE_DB_PATH"
	EnvRomajiCache = "MANGAMERGE_ROMAJI_CACHE"
	EnvWorkers     = "MANGAMERGE_WORKERS"
)

// Config holds the settings of one reconciliation run. An empty InputFile or
// OutputFile means stdin or stdout.
type Config struct {
	InputFile       string `yaml:"input"`
	InputFormat     string `yaml:"input_format"` // auto, json, or html
	OutputFile      string `yaml:"output"`
	OutputFormat    string `yaml:"format"` // csv, json, or dual
	PriorFile       string `yaml:"prior"`
	DBPath          string `yaml:"db"`
	MetricsFile     string `yaml:"metrics"`
	RomajiCacheSize int    `yaml:"romaji_cache"`
	Workers         int    `yaml:"workers"`
	Verbose         bool   `yaml:"verbose"`
}

// DefaultConfig reads from stdin and writes CSV to stdout with a single
// romanization worker.
func DefaultConfig() *Config {
	return &Config{
		InputFormat:     "auto",
		OutputFormat:    "csv",
		RomajiCacheSize: 4096,
		Workers:         1,
	}
}

// Load overlays the YAML file at path on top of DefaultConfig. Keys missing
// from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// ApplyEnv overrides cfg with MANGAMERGE_* variables that are set.
func (c *Config) ApplyEnv() error {
	if value, ok := EnvString(EnvOutput); ok {
		c.OutputFile = value
	}
	if value, ok := EnvString(EnvFormat); ok {
		c.OutputFormat = value
	}
	if value, ok := EnvString(EnvDBPath); ok {
		c.DBPath = value
	}
	if value, ok, err := EnvInt(EnvRomajiCache); err != nil {
		return err
	} else if ok {
		c.RomajiCacheSize = value
	}
	if value, ok, err := EnvInt(EnvWorkers); err != nil {
		return err
	} else if ok {
		c.Workers = value
	}
	c.normalize()
	return nil
}

// normalize lower-cases the format names.
func (c *Config) normalize() {
	c.InputFormat = strings.ToLower(strings.TrimSpace(c.InputFormat))
	c.OutputFormat = strings.ToLower(strings.TrimSpace(c.OutputFormat))
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	switch c.InputFormat {
	case "auto", "json", "html":
	default:
		return fmt.Errorf("input format must be auto, json, or html")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual":
	default:
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.OutputFormat == "dual" && c.OutputFile == "" {
		return fmt.Errorf("dual output needs an output file")
	}
	if c.RomajiCacheSize <= 0 {
		return fmt.Errorf("romaji cache size must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.InputFile != "" && c.InputFile == c.OutputFile {
		return fmt.Errorf("input and output cannot be the same file")
	}
	return nil
}

// EnvString returns the trimmed value of name when it is set and non-empty.
func EnvString(name string) (string, bool) {
	value, ok := os.LookupEnv(name)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses name as an integer when it is set.
func EnvInt(name string) (int, bool, error) {
	value, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", name, errors.Join(ErrInvalidEnv, err))
	}
	return n, true, nil
}

// ErrInvalidEnv marks an environment variable that failed to parse.
var ErrInvalidEnv = errors.New("invalid environment value")
