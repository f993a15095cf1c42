// Package config loads the inquest CLI configuration.
//
// Configuration lives in a single YAML file under os.UserConfigDir():
//
//	~/Library/Application Support/inquest/config.yaml   (macOS)
//	~/.config/inquest/config.yaml                       (Linux)
//	%AppData%/inquest/config.yaml                       (Windows)
//
// A missing file is not an error: every field has a default, and API keys
// fall back to the conventional environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

const (
	// appDir is the directory name under os.UserConfigDir().
	appDir = "inquest"

	configFile = "config.yaml"
)

// Generator configures the token-producing backend.
type Generator struct {
	// Backend selects the provider: "openai" or "gemini".
	Backend string `yaml:"backend"`

	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // OpenAI-compatible endpoints only

	MaxOutputTokens int `yaml:"max_output_tokens"`
}

// Embeddings configures the async signal-embedding worker. An empty
// model disables embeddings entirely.
type Embeddings struct {
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
}

// Config is the full CLI configuration.
type Config struct {
	// Listen is the serve command's HTTP address.
	Listen string `yaml:"listen"`

	// DataDir holds the badger database. Defaults next to the config
	// file.
	DataDir string `yaml:"data_dir"`

	Generator  Generator  `yaml:"generator"`
	Embeddings Embeddings `yaml:"embeddings"`

	// Path the config was loaded from, for diagnostics. Not serialized.
	Path string `yaml:"-"`
}

// Load reads the configuration from the default location.
func Load() (*Config, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine config directory: %w", err)
	}
	return LoadFrom(filepath.Join(base, appDir, configFile))
}

// LoadFrom reads the configuration from a specific file. A missing file
// yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{Path: path}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyDefaults(filepath.Dir(path))
	return cfg, nil
}

func (c *Config) applyDefaults(dir string) {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8600"
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(dir, "data")
	}
	if c.Generator.Backend == "" {
		c.Generator.Backend = "openai"
	}
	if c.Generator.Model == "" {
		switch c.Generator.Backend {
		case "gemini":
			c.Generator.Model = "gemini-2.0-flash"
		default:
			c.Generator.Model = "gpt-4o-mini"
		}
	}
	if c.Generator.APIKey == "" {
		switch c.Generator.Backend {
		case "gemini":
			c.Generator.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			c.Generator.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.Embeddings.APIKey == "" {
		c.Embeddings.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Save writes the configuration back to its path.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.Path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(c.Path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", c.Path, err)
	}
	return nil
}
