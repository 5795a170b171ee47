package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config models sprintsync.yml.
type Config struct {
	Store struct {
		Workspace string `yaml:"workspace"`
	} `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Plugins   PluginsConfig   `yaml:"plugins"`
	Slug      SlugConfig      `yaml:"slug"`
	Zulip     ZulipConfig     `yaml:"zulip"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

type ServerConfig struct {
	Addr             string `yaml:"addr"`
	BasePath         string `yaml:"base_path"`
	JWTSecret        string `yaml:"jwt_secret"`
	AllowActorHeader bool   `yaml:"allow_actor_header"`
}

// PluginsConfig selects lifecycle plugins by name. Only plugins named in
// Enabled are built; Disabled always wins.
type PluginsConfig struct {
	Enabled  []string `yaml:"enabled"`
	Disabled []string `yaml:"disabled"`
}

type SlugConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	TokenBytes  int `yaml:"token_bytes"`
}

type ZulipConfig struct {
	APIURL            string        `yaml:"api_url"`
	SendMessagePath   string        `yaml:"send_message_path"`
	CreateStreamPath  string        `yaml:"create_stream_path"`
	UpdateMessagePath string        `yaml:"update_message_path"`
	DeleteMessagePath string        `yaml:"delete_message_path"`
	Email             string        `yaml:"email"`
	APIKey            string        `yaml:"api_key"`
	AdminEmails       []string      `yaml:"admin_emails"`
	Timeout           time.Duration `yaml:"timeout"`
	Retries           int           `yaml:"retries"`
}

type WebhookConfig struct {
	URLs    []string      `yaml:"urls"`
	Timeout time.Duration `yaml:"timeout"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Stdout      bool   `yaml:"stdout"`
	ServiceName string `yaml:"service_name"`
}

// PluginEnabled reports whether name survives the allow and deny lists.
func (p PluginsConfig) PluginEnabled(name string) bool {
	for _, d := range p.Disabled {
		if d == name {
			return false
		}
	}
	for _, e := range p.Enabled {
		if e == name {
			return true
		}
	}
	return false
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for _, e := range c.Plugins.Enabled {
		if strings.TrimSpace(e) == "" {
			return fmt.Errorf("config.plugins.enabled contains empty name")
		}
		for _, d := range c.Plugins.Disabled {
			if e == d {
				return fmt.Errorf("plugin %s is both enabled and disabled", e)
			}
		}
	}
	if c.Slug.MaxAttempts <= 0 {
		return fmt.Errorf("config.slug.max_attempts must be positive")
	}
	if c.Slug.TokenBytes <= 0 || c.Slug.TokenBytes > 8 {
		return fmt.Errorf("config.slug.token_bytes must be between 1 and 8")
	}
	if c.Plugins.PluginEnabled("zulip") {
		if c.Zulip.APIURL == "" {
			return fmt.Errorf("config.zulip.api_url is required when the zulip plugin is enabled")
		}
		if c.Zulip.Email == "" || c.Zulip.APIKey == "" {
			return fmt.Errorf("config.zulip.email and config.zulip.api_key are required when the zulip plugin is enabled")
		}
		if c.Zulip.Timeout <= 0 {
			return fmt.Errorf("config.zulip.timeout must be positive when the zulip plugin is enabled")
		}
	}
	if c.Zulip.Timeout < 0 || c.Webhook.Timeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Zulip.Retries < 0 {
		return fmt.Errorf("config.zulip.retries must not be negative")
	}
	if c.Plugins.PluginEnabled("webhook") && len(c.Webhook.URLs) == 0 {
		return fmt.Errorf("config.webhook.urls is required when the webhook plugin is enabled")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config.log.level: %w", err)
	}
	if c.Log.Format != "" && c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("config.log.format must be json or console")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sprintsync.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the defaults if the config file does not exist.
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

// Default returns the default Config struct. No plugin is enabled, so a
// fresh workspace never calls out to a chat server.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses config from raw YAML bytes on top of the defaults and
// validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `store:
  workspace: "."

server:
  addr: "127.0.0.1:8080"
  base_path: "/v1"
  jwt_secret: ""
  allow_actor_header: true

plugins:
  enabled: []
  disabled: []

slug:
  max_attempts: 8
  token_bytes: 2

zulip:
  api_url: ""
  send_message_path: "/api/v1/messages"
  create_stream_path: "/api/v1/users/me/subscriptions"
  update_message_path: "/api/v1/messages"
  delete_message_path: "/api/v1/messages"
  email: ""
  api_key: ""
  admin_emails: []
  timeout: 10s
  retries: 2

webhook:
  urls: []
  timeout: 5s

telemetry:
  enabled: false
  stdout: false
  service_name: sprintsync

log:
  level: info
  format: console
`
