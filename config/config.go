// Package config loads iflowgen settings from a JSON or YAML file, a .env
// file and the process environment, in that order of precedence (lowest first).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvProvider     = "LLM_PROVIDER"
	EnvModel        = "LLM_MODEL"
	EnvDeploymentID = "LLM_DEPLOYMENT_ID"
	EnvAPIKey       = "LLM_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvBaseURL      = "LLM_BASE_URL"
	EnvAICoreURL    = "AICORE_BASE_URL"
	EnvAICoreAuth   = "AICORE_AUTH_URL"
	EnvAICoreID     = "AICORE_CLIENT_ID"
	EnvAICoreSecret = "AICORE_CLIENT_SECRET"
	EnvAICoreGroup  = "AICORE_RESOURCE_GROUP"
	EnvServerAddr   = "SERVER_ADDR"
	EnvLogFile      = "LOG_FILE"

	DefaultServerAddr  = ":8080"
	DefaultMaxUploadMB = 50
)

// Providers lists the accepted llm.provider values.
var Providers = []string{"openai", "deepseek", "aicore", "ollama", "mock"}

// ErrInvalid marks a configuration that fails Validate.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	LLM         LLMConfig    `json:"llm" yaml:"llm"`
	ServerAddr  string       `json:"server_addr,omitempty" yaml:"server_addr"`
	Log         LogConfig    `json:"log" yaml:"log"`
	Guard       GuardConfig  `json:"guard" yaml:"guard"`
	Export      ExportConfig `json:"export" yaml:"export"`
	MaxUploadMB int          `json:"max_upload_mb,omitempty" yaml:"max_upload_mb"`
}

// LLMConfig selects the model backend. Timeout is a Go duration string; empty
// means no per-call timeout. For aicore, Model is the deployment id.
type LLMConfig struct {
	Provider    string       `json:"provider,omitempty" yaml:"provider"`
	Model       string       `json:"model,omitempty" yaml:"model"`
	APIKey      string       `json:"api_key,omitempty" yaml:"api_key"`
	BaseURL     string       `json:"base_url,omitempty" yaml:"base_url"`
	Temperature float64      `json:"temperature,omitempty" yaml:"temperature"`
	Timeout     string       `json:"timeout,omitempty" yaml:"timeout"`
	AICore      AICoreConfig `json:"aicore,omitempty" yaml:"aicore"`
}

// AICoreConfig is the SAP AI Core service key. Without it the aicore provider
// talks to base_url as a plain OpenAI-compatible gateway.
type AICoreConfig struct {
	AuthURL       string `json:"auth_url,omitempty" yaml:"auth_url"`
	ClientID      string `json:"client_id,omitempty" yaml:"client_id"`
	ClientSecret  string `json:"client_secret,omitempty" yaml:"client_secret"`
	ResourceGroup string `json:"resource_group,omitempty" yaml:"resource_group"`
	APIVersion    string `json:"api_version,omitempty" yaml:"api_version"`
}

// HasClientCredentials reports whether any part of the service key is set.
func (a AICoreConfig) HasClientCredentials() bool {
	return a.AuthURL != "" || a.ClientID != "" || a.ClientSecret != ""
}

// TimeoutDuration returns Timeout parsed, or zero when unset.
func (c LLMConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

type LogConfig struct {
	File       string `json:"file,omitempty" yaml:"file"`
	Level      string `json:"level,omitempty" yaml:"level"`
	Format     string `json:"format,omitempty" yaml:"format"`
	Stderr     bool   `json:"stderr,omitempty" yaml:"stderr"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days"`
}

// GuardConfig controls the edit sanity check. Enabled defaults to true.
type GuardConfig struct {
	Enabled       *bool   `json:"enabled,omitempty" yaml:"enabled"`
	MinSimilarity float64 `json:"min_similarity,omitempty" yaml:"min_similarity"`
	Strict        bool    `json:"strict,omitempty" yaml:"strict"`
}

func (g GuardConfig) IsEnabled() bool {
	return g.Enabled == nil || *g.Enabled
}

type ExportConfig struct {
	Dir string `json:"dir,omitempty" yaml:"dir"`
}

// MaxUploadBytes is MaxUploadMB in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Load reads path (if it exists), then .env, then the environment. A missing
// file is not an error; the environment may carry every required setting.
// The result is not validated; call Validate before building clients.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		loaded, err := load(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg.loadEnv()
	cfg.loadDefaults()
	return cfg, nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// loadDotEnv sets variables from file without overriding ones already set.
func loadDotEnv(file string) error {
	if _, err := os.Stat(file); err != nil {
		return nil
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("load %s: %w", file, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvProvider); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv(EnvDeploymentID); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(EnvOpenAIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvAICoreURL); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvAICoreAuth); v != "" {
		c.LLM.AICore.AuthURL = v
	}
	if v := os.Getenv(EnvAICoreID); v != "" {
		c.LLM.AICore.ClientID = v
	}
	if v := os.Getenv(EnvAICoreSecret); v != "" {
		c.LLM.AICore.ClientSecret = v
	}
	if v := os.Getenv(EnvAICoreGroup); v != "" {
		c.LLM.AICore.ResourceGroup = v
	}
	if v := os.Getenv(EnvServerAddr); v != "" {
		c.ServerAddr = v
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		c.Log.File = v
	}
}

func (c *Config) loadDefaults() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.ServerAddr == "" {
		c.ServerAddr = DefaultServerAddr
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = DefaultMaxUploadMB
	}
	if c.Log.File == "" {
		c.Log.File = "iflowgen.log"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 28
	}
	if c.Guard.MinSimilarity <= 0 {
		c.Guard.MinSimilarity = 0.5
	}
}

// Validate checks the settings needed to build a generation client.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case "":
		errs = append(errs, errors.New("llm.provider is required (or set "+EnvProvider+")"))
	case "openai", "deepseek", "aicore", "ollama", "mock":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q not supported; use one of %s", c.LLM.Provider, strings.Join(Providers, ", ")))
	}

	if c.LLM.Provider != "mock" && c.LLM.Provider != "" && c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required (or set "+EnvModel+" / "+EnvDeploymentID+")"))
	}

	switch c.LLM.Provider {
	case "openai", "deepseek":
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.api_key is required for provider %s", c.LLM.Provider))
		}
	case "aicore":
		if c.LLM.BaseURL == "" {
			errs = append(errs, errors.New("llm.base_url is required for provider aicore (or set "+EnvAICoreURL+")"))
		}
		if a := c.LLM.AICore; a.HasClientCredentials() && (a.AuthURL == "" || a.ClientID == "" || a.ClientSecret == "") {
			errs = append(errs, errors.New("llm.aicore needs auth_url, client_id and client_secret together ("+EnvAICoreAuth+", "+EnvAICoreID+", "+EnvAICoreSecret+")"))
		}
	}
	if c.LLM.Provider == "deepseek" && c.LLM.BaseURL == "" {
		errs = append(errs, errors.New("llm.base_url is required for provider deepseek (OpenAI-compatible endpoint)"))
	}

	if c.LLM.Timeout != "" {
		if _, err := time.ParseDuration(c.LLM.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("invalid llm.timeout: %w", err))
		}
	}
	if c.Guard.MinSimilarity > 1 {
		errs = append(errs, errors.New("guard.min_similarity must be within (0, 1]"))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q not supported; use text or json", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
