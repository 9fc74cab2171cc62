// Package config loads .codegraph.yaml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the project root.
const FileName = ".codegraph.yaml"

// ErrInvalid wraps every malformed or out-of-range configuration error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full configuration.
type Config struct {
	Scan     ScanConfig     `yaml:"scan"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Store    StoreConfig    `yaml:"store"`
}

// ScanConfig controls scanning and warning detection.
type ScanConfig struct {
	Workers            int      `yaml:"workers"`
	SkipWarnings       bool     `yaml:"skip_warnings"`
	MaxFunctionLines   int      `yaml:"max_function_lines"`
	DisabledCategories []string `yaml:"disabled_categories"`
	RulesDir           string   `yaml:"rules_dir"`
	UseGit             bool     `yaml:"use_git"`

	// RuleOptions is handed to rule scripts as the options global.
	RuleOptions map[string]any `yaml:"rule_options"`
}

// AnalyzerConfig controls the behavioral analyzer.
type AnalyzerConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	Model          string        `yaml:"model"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	Timeout        time.Duration `yaml:"timeout"`
	Concurrency    int           `yaml:"concurrency"`
	MaxSourceChars int           `yaml:"max_source_chars"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			MaxFunctionLines: 120,
			UseGit:           true,
		},
		Analyzer: AnalyzerConfig{
			Endpoint:       "https://api.openai.com/v1/chat/completions",
			Model:          "gpt-4o-mini",
			APIKeyEnv:      "CODEGRAPH_API_KEY",
			MaxTokens:      300,
			Temperature:    0.1,
			Timeout:        30 * time.Second,
			Concurrency:    4,
			MaxSourceChars: 6000,
		},
		Store: StoreConfig{Path: filepath.Join(".codegraph", "codegraph.db")},
	}
}

// Load reads the config at path. A missing file yields the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err == nil {
		if err := Parse(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadProject loads FileName from the project root.
func LoadProject(root string) (*Config, error) {
	return Load(filepath.Join(root, FileName))
}

// Parse decodes YAML over cfg. Fields absent from data keep their values.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CODEGRAPH_ENDPOINT"); v != "" {
		c.Analyzer.Endpoint = v
	}
	if v := os.Getenv("CODEGRAPH_MODEL"); v != "" {
		c.Analyzer.Model = v
	}
}

// APIKey returns the analyzer credential from the configured environment
// variable.
func (c *Config) APIKey() string {
	name := c.Analyzer.APIKeyEnv
	if name == "" {
		name = "CODEGRAPH_API_KEY"
	}
	return os.Getenv(name)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Scan.Workers < 0:
		return fmt.Errorf("%w: scan.workers must be >= 0", ErrInvalid)
	case c.Scan.MaxFunctionLines < 0:
		return fmt.Errorf("%w: scan.max_function_lines must be >= 0", ErrInvalid)
	case c.Analyzer.Concurrency < 1:
		return fmt.Errorf("%w: analyzer.concurrency must be >= 1", ErrInvalid)
	case c.Analyzer.Timeout < 0:
		return fmt.Errorf("%w: analyzer.timeout must not be negative", ErrInvalid)
	case c.Analyzer.MaxTokens < 1:
		return fmt.Errorf("%w: analyzer.max_tokens must be >= 1", ErrInvalid)
	case c.Analyzer.Temperature < 0 || c.Analyzer.Temperature > 2:
		return fmt.Errorf("%w: analyzer.temperature must be within [0, 2]", ErrInvalid)
	}
	return nil
}

// StorePath returns the database path, resolved against root when relative.
func (c *Config) StorePath(root string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(root, c.Store.Path)
}
