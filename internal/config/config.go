package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models problinx.yml.
type Config struct {
	Site struct {
		Name string `yaml:"name"`
	} `yaml:"site"`
	Board struct {
		FetchLimit int `yaml:"fetch_limit"`
	} `yaml:"board"`
	Chat struct {
		Enabled   bool   `yaml:"enabled"`
		Model     string `yaml:"model"`
		BaseURL   string `yaml:"base_url"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"chat"`
	Auth struct {
		TokenTTLHours int `yaml:"token_ttl_hours"`
	} `yaml:"auth"`
	Telemetry struct {
		Sinks []TelemetrySink `yaml:"sinks"`
	} `yaml:"telemetry"`
}

type TelemetrySink struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate with problinx config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Site.Name == "" {
		return fmt.Errorf("config.site.name is required")
	}
	if c.Board.FetchLimit <= 0 {
		return fmt.Errorf("config.board.fetch_limit must be positive")
	}
	if c.Chat.Enabled {
		if c.Chat.Model == "" {
			return fmt.Errorf("config.chat.model is required when chat is enabled")
		}
		if c.Chat.APIKeyEnv == "" {
			return fmt.Errorf("config.chat.api_key_env is required when chat is enabled")
		}
	}
	if c.Auth.TokenTTLHours <= 0 {
		return fmt.Errorf("config.auth.token_ttl_hours must be positive")
	}
	for i, sink := range c.Telemetry.Sinks {
		if sink.URL == "" {
			return fmt.Errorf("config.telemetry.sinks[%d].url is required", i)
		}
		for _, ev := range sink.Events {
			if ev == "" {
				return fmt.Errorf("telemetry sink %s has empty event name", sink.URL)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "problinx.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(siteName string) string {
	return fmt.Sprintf(defaultTemplate, siteName)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a site.
func Default(siteName string) *Config {
	var cfg Config
	cfg.Site.Name = siteName
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, siteName))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `site:
  name: %s

board:
  fetch_limit: 50

chat:
  enabled: false
  model: gemini-1.5-flash
  base_url: ""
  api_key_env: GEMINI_API_KEY

auth:
  token_ttl_hours: 24

telemetry:
  sinks: []
`
