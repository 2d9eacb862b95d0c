package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override values from the config file.
const (
	EnvOpenAIKey  = "OPENAI_API_KEY"
	EnvOpenAIBase = "OPENAI_BASE_URL"
	EnvModel      = "TRIPCAL_MODEL"
	EnvAMapKey    = "AMAP_API_KEY"
)

// LLMConfig selects the chat model backend. Any OpenAI-compatible endpoint
// works, e.g. DashScope: base_url "https://dashscope.aliyuncs.com/compatible-mode/v1"
// with model "qwen-plus".
type LLMConfig struct {
	APIKey  string `yaml:"api_key" json:"-"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	Model   string `yaml:"model" json:"model"`
}

// AMapConfig configures the place search API.
type AMapConfig struct {
	APIKey   string `yaml:"api_key" json:"-"`
	BaseURL  string `yaml:"base_url" json:"base_url"`
	PageSize int    `yaml:"page_size" json:"page_size"`

	// DisableProxy ignores HTTP(S)_PROXY for outbound map requests.
	DisableProxy bool `yaml:"disable_proxy" json:"disable_proxy"`
}

// PlannerConfig bounds planning requests.
type PlannerConfig struct {
	MaxDays int `yaml:"max_days" json:"max_days"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone in which "today" is resolved when a
	// calendar is exported without a start date.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	LLM     LLMConfig     `yaml:"llm" json:"llm"`
	AMap    AMapConfig    `yaml:"amap" json:"amap"`
	Planner PlannerConfig `yaml:"planner" json:"planner"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "Local",
		LogLevel: "info",
		LLM: LLMConfig{
			Model: "gpt-4o",
		},
		AMap: AMapConfig{
			BaseURL:  "https://restapi.amap.com",
			PageSize: 10,
		},
		Planner: PlannerConfig{
			MaxDays: 30,
		},
	}
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LLM.Model == "" {
		c.LLM.Model = def.LLM.Model
	}
	if c.AMap.BaseURL == "" {
		c.AMap.BaseURL = def.AMap.BaseURL
	}
	if c.AMap.PageSize <= 0 {
		c.AMap.PageSize = def.AMap.PageSize
	}
	if c.Planner.MaxDays <= 0 {
		c.Planner.MaxDays = def.Planner.MaxDays
	}
}

// ApplyEnv overrides secrets and endpoints from the process environment.
// Set variables win over the file; unset ones leave it untouched.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvOpenAIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvOpenAIBase); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(EnvAMapKey); v != "" {
		c.AMap.APIKey = v
	}
}

// Location resolves Timezone. "Local" or an unknown zone yields time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return err
		}
	}
	return nil
}

// Load loads configuration from the given YAML path and applies environment
// overrides.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Read is Load without the first-run side effect: a missing file yields the
// defaults and nothing is written. One-shot commands use it.
func Read(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
		cfg.Normalize()
	}
	cfg.ApplyEnv()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600, since the file may hold API keys.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tripcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
