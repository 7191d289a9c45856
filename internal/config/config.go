// Package config loads and validates application configuration via Viper.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/bookmark-summarizer/internal/hash/sha256"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Output  OutputConfig  `mapstructure:"output"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// LLMConfig holds the summarization API settings.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	RateLimit   int     `mapstructure:"rate_limit"`
	PromptFile  string  `mapstructure:"prompt_file"`
}

// FetchConfig governs the HTTP fetch pipeline.
type FetchConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxConcurrent  int     `mapstructure:"max_concurrent"`
	MaxSizeMB      int     `mapstructure:"max_size_mb"`
	RetryAttempts  int     `mapstructure:"retry_attempts"`
	RetryDelay     float64 `mapstructure:"retry_delay_seconds"`
	MaxRedirects   int     `mapstructure:"max_redirects"`
	UserAgent      string  `mapstructure:"user_agent"`
}

// OutputConfig sets paths and toggles for the export tree.
type OutputConfig struct {
	Dir             string `mapstructure:"dir"`
	IncludeMetadata bool   `mapstructure:"include_metadata"`
	GenerateDiagram bool   `mapstructure:"generate_diagram"`
	SaveInterval    int    `mapstructure:"save_interval"`
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOOKMARKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.rate_limit", 3)
	v.SetDefault("llm.prompt_file", "")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_concurrent", 10)
	v.SetDefault("fetch.max_size_mb", 5)
	v.SetDefault("fetch.retry_attempts", 3)
	v.SetDefault("fetch.retry_delay_seconds", 1.5)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.user_agent", "bookmark-summarizer/0.1")
	v.SetDefault("output.dir", "./bookmarks_export")
	v.SetDefault("output.include_metadata", true)
	v.SetDefault("output.generate_diagram", true)
	v.SetDefault("output.save_interval", 10)
	v.SetDefault("server.addr", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must be set")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxConcurrent <= 0 {
		return fmt.Errorf("fetch.max_concurrent must be > 0")
	}
	if c.Fetch.MaxSizeMB <= 0 {
		return fmt.Errorf("fetch.max_size_mb must be > 0")
	}
	if c.Fetch.RetryAttempts < 0 {
		return fmt.Errorf("fetch.retry_attempts must be >= 0")
	}
	if c.Fetch.MaxRedirects < 0 {
		return fmt.Errorf("fetch.max_redirects must be >= 0")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must be set")
	}
	if c.Output.SaveInterval <= 0 {
		return fmt.Errorf("output.save_interval must be > 0")
	}
	return nil
}

// FetchTimeout converts the configured fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// RetryDelay converts the configured base retry delay into a duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Fetch.RetryDelay * float64(time.Second))
}

// MaxSizeBytes returns the fetch size cap in bytes.
func (c Config) MaxSizeBytes() int64 {
	return int64(c.Fetch.MaxSizeMB) * 1024 * 1024
}

// fingerprintFields is the subset of configuration that determines whether a
// stored checkpoint remains usable. Key order is fixed by the struct so the
// serialized form is canonical.
type fingerprintFields struct {
	GenerateDiagram bool    `json:"generate_mermaid_diagram"`
	MaxTokens       int     `json:"llm_max_tokens"`
	Model           string  `json:"llm_model"`
	Temperature     float64 `json:"llm_temperature"`
	IncludeMetadata bool    `json:"markdown_include_metadata"`
	OutputDir       string  `json:"output_dir"`
}

// Fingerprint returns a SHA-256 hash over the configuration fields that affect
// output semantics. Any change to these fields invalidates a checkpoint.
func (c Config) Fingerprint() string {
	payload, err := json.Marshal(fingerprintFields{
		GenerateDiagram: c.Output.GenerateDiagram,
		MaxTokens:       c.LLM.MaxTokens,
		Model:           c.LLM.Model,
		Temperature:     c.LLM.Temperature,
		IncludeMetadata: c.Output.IncludeMetadata,
		OutputDir:       c.Output.Dir,
	})
	if err != nil {
		// Marshal of a plain struct cannot fail; keep the signature honest.
		return ""
	}
	return sha256.New().HashString(string(payload))
}
