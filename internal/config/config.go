package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models ppo.yml.
type Config struct {
	Project struct {
		DefaultTemplate string `yaml:"default_template"`
	} `yaml:"project"`
	Publisher struct {
		FriendlyName string `yaml:"friendly_name"`
		UniqueName   string `yaml:"unique_name"`
		Prefix       string `yaml:"prefix"`
	} `yaml:"publisher"`
	WorkTracking struct {
		Organization    string `yaml:"organization"`
		ProcessTemplate string `yaml:"process_template"`
		Visibility      string `yaml:"visibility"`
	} `yaml:"work_tracking"`
	Platform struct {
		Region          string `yaml:"region"`
		EnvironmentType string `yaml:"environment_type"`
		Dataverse       bool   `yaml:"dataverse"`
	} `yaml:"platform"`
	Server struct {
		Addr      string         `yaml:"addr"`
		BasePath  string         `yaml:"base_path"`
		JWTSecret string         `yaml:"jwt_secret"`
		APIKeys   []APIKeyConfig `yaml:"api_keys"`
	} `yaml:"server"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type APIKeyConfig struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run ppo init or create it from the default template", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the built-in defaults when no config file exists.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	prefix := c.Publisher.Prefix
	if prefix == "" {
		return fmt.Errorf("config.publisher.prefix is required")
	}
	if len(prefix) < 2 || len(prefix) > 8 {
		return fmt.Errorf("config.publisher.prefix must be 2-8 characters")
	}
	if prefix != strings.ToLower(prefix) {
		return fmt.Errorf("config.publisher.prefix must be lowercase")
	}
	for _, r := range prefix {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return fmt.Errorf("config.publisher.prefix must be alphanumeric")
		}
	}
	if prefix[0] >= '0' && prefix[0] <= '9' {
		return fmt.Errorf("config.publisher.prefix must start with a letter")
	}
	if c.Publisher.UniqueName == "" {
		return fmt.Errorf("config.publisher.unique_name is required")
	}
	switch c.WorkTracking.Visibility {
	case "", "private", "public":
	default:
		return fmt.Errorf("config.work_tracking.visibility must be private or public")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	for i, key := range c.Server.APIKeys {
		if strings.TrimSpace(key.Key) == "" {
			return fmt.Errorf("config.server.api_keys[%d].key is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "ppo.yml")
}

// Default returns the built-in default configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
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

const defaultTemplate = `project:
  default_template: standard-project

publisher:
  friendly_name: JR Solutions
  unique_name: jimiryquai
  prefix: jr

work_tracking:
  organization: jimiryquai
  process_template: Agile
  visibility: private

platform:
  region: unitedstates
  environment_type: Sandbox
  dataverse: true

server:
  addr: :8787
  base_path: /v0
`
