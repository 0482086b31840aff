// Package config loads inboxagent settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. INBOXAGENT_MODEL_PROVIDER.
const EnvPrefix = "INBOXAGENT"

// Providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderVertex    = "vertex"
)

const (
	DefaultVertexModel    = "claude-opus-4-5@20251101"
	DefaultAnthropicModel = "claude-opus-4-5"
	DefaultMaxTokens      = 8192
	DefaultVertexRegion   = "us-east5"
	DefaultDOMTimeout     = 5 * time.Second
	DefaultMaxResults     = 20
	DefaultWebmailOrigin  = "https://mail.google.com"
)

type Config struct {
	Model   ModelConfig   `mapstructure:"model"`
	Agent   AgentConfig   `mapstructure:"agent"`
	DOM     DOMConfig     `mapstructure:"dom"`
	Gmail   GmailConfig   `mapstructure:"gmail"`
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
	Prompts PromptsConfig `mapstructure:"prompts"`
}

type ModelConfig struct {
	Provider       string        `mapstructure:"provider"`
	Model          string        `mapstructure:"model"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Streaming      bool          `mapstructure:"streaming"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	SystemPrompt   string        `mapstructure:"system_prompt"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Vertex         VertexConfig  `mapstructure:"vertex"`
}

type VertexConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	Region          string `mapstructure:"region"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AgentConfig struct {
	// MaxIterations bounds gateway round-trips per turn. 0 means unbounded.
	MaxIterations int `mapstructure:"max_iterations"`
}

type DOMConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`

	// AllowedOrigins lists the page origins accepted by the bridge socket.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type GmailConfig struct {
	MaxResults   int    `mapstructure:"max_results"`
	TokenFile    string `mapstructure:"token_file"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PromptsConfig struct {
	File string `mapstructure:"file"`
}

// directEnv maps well-known variables onto config keys. They apply only when
// the key was not set by the file or an INBOXAGENT_ variable.
var directEnv = []struct {
	key string
	env string
}{
	{"model.api_key", "ANTHROPIC_API_KEY"},
	{"model.base_url", "ANTHROPIC_BASE_URL"},
	{"model.vertex.project_id", "ANTHROPIC_VERTEX_PROJECT_ID"},
	{"model.vertex.region", "CLOUD_ML_REGION"},
	{"model.model", "VERTEX_MODEL"},
	{"model.vertex.credentials_file", "GOOGLE_APPLICATION_CREDENTIALS"},
	{"gmail.client_id", "GOOGLE_CLIENT_ID"},
	{"gmail.client_secret", "GOOGLE_CLIENT_SECRET"},
}

// Dir returns the inboxagent configuration directory.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "inboxagent")
}

// DefaultPath returns the default location of config.yaml.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.provider", "")
	v.SetDefault("model.model", "")
	v.SetDefault("model.max_tokens", DefaultMaxTokens)
	v.SetDefault("model.streaming", true)
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.system_prompt", "")
	v.SetDefault("model.request_timeout", 5*time.Minute)
	v.SetDefault("model.vertex.project_id", "")
	v.SetDefault("model.vertex.region", DefaultVertexRegion)
	v.SetDefault("model.vertex.credentials_file", "")
	v.SetDefault("agent.max_iterations", 0)
	v.SetDefault("dom.timeout", DefaultDOMTimeout)
	v.SetDefault("dom.allowed_origins", []string{DefaultWebmailOrigin})
	v.SetDefault("gmail.max_results", DefaultMaxResults)
	v.SetDefault("gmail.token_file", filepath.Join(Dir(), "gmail-token.json"))
	v.SetDefault("gmail.client_id", "")
	v.SetDefault("gmail.client_secret", "")
	v.SetDefault("server.addr", "localhost:8080")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", "localhost:9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("prompts.file", filepath.Join(Dir(), "prompts.yaml"))
}

// Load reads path (or the default path when empty) and applies environment
// overrides. A missing file at the default path is not an error; a missing
// explicit path is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if explicit || !missing {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	for _, d := range directEnv {
		if v.InConfig(d.key) {
			continue
		}
		if _, ok := os.LookupEnv(EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(d.key, ".", "_"))); ok {
			continue
		}
		if val := os.Getenv(d.env); val != "" {
			v.Set(d.key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyModelDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyModelDefaults picks the provider from the available credentials and
// the default model for that provider.
func (c *Config) applyModelDefaults() {
	if c.Model.Provider == "" {
		if c.Model.Vertex.ProjectID != "" {
			c.Model.Provider = ProviderVertex
		} else {
			c.Model.Provider = ProviderAnthropic
		}
	}
	if c.Model.Model == "" {
		if c.Model.Provider == ProviderVertex {
			c.Model.Model = DefaultVertexModel
		} else {
			c.Model.Model = DefaultAnthropicModel
		}
	}
}

// Validate reports the first invalid setting. Missing credentials are not
// checked here; commands that call the model check them when they build the
// gateway.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case ProviderAnthropic, ProviderVertex:
	default:
		return fmt.Errorf("invalid model provider %q, must be one of: anthropic, vertex", c.Model.Provider)
	}
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("model.max_tokens must be positive, got %d", c.Model.MaxTokens)
	}
	if c.Agent.MaxIterations < 0 {
		return fmt.Errorf("agent.max_iterations must not be negative, got %d", c.Agent.MaxIterations)
	}
	if c.DOM.Timeout <= 0 {
		return fmt.Errorf("dom.timeout must be positive, got %s", c.DOM.Timeout)
	}
	if c.Gmail.MaxResults < 1 || c.Gmail.MaxResults > 100 {
		return fmt.Errorf("gmail.max_results must be between 1 and 100, got %d", c.Gmail.MaxResults)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be one of: text, json", c.Log.Format)
	}
	return nil
}

// RequireModelCredentials checks the credentials the selected provider needs.
func (c *Config) RequireModelCredentials() error {
	switch c.Model.Provider {
	case ProviderVertex:
		if c.Model.Vertex.ProjectID == "" {
			return errors.New("vertex project id is not configured, set ANTHROPIC_VERTEX_PROJECT_ID or model.vertex.project_id")
		}
	case ProviderAnthropic:
		if c.Model.APIKey == "" {
			return errors.New("anthropic api key is not configured, set ANTHROPIC_API_KEY or model.api_key")
		}
	}
	return nil
}
