// Package config loads runtime configuration from defaults, an optional YAML
// file, and PWNPILOT_-prefixed environment variables, in that precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "PWNPILOT_"

type ProviderConfig struct {
	Source      string `koanf:"source"`
	ModelID     string `koanf:"model_id"`
	APIKey      string `koanf:"api_key"`
	OllamaURL   string `koanf:"ollama_url"`
	MaxTokens   int    `koanf:"max_tokens"`
	EnableCache bool   `koanf:"enable_cache"`
}

type ExecutorConfig struct {
	URL      string        `koanf:"url"`
	MaxTools int           `koanf:"max_tools"`
	Timeout  time.Duration `koanf:"timeout"`
}

type SessionConfig struct {
	Dir string `koanf:"dir"`
}

type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	TTL     time.Duration `koanf:"ttl"`
}

type AutonomousConfig struct {
	MaxIterations  int           `koanf:"max_iterations"`
	MaxTokens      int           `koanf:"max_tokens"`
	IterationDelay time.Duration `koanf:"iteration_delay"`
}

type PromptConfig struct {
	Mode string `koanf:"mode"`
	Dir  string `koanf:"dir"`
	File string `koanf:"file"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type Config struct {
	Provider   ProviderConfig   `koanf:"provider"`
	Executor   ExecutorConfig   `koanf:"executor"`
	Session    SessionConfig    `koanf:"session"`
	Cache      CacheConfig      `koanf:"cache"`
	Autonomous AutonomousConfig `koanf:"autonomous"`
	Prompt     PromptConfig     `koanf:"prompt"`
	Log        LogConfig        `koanf:"log"`
}

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Source:      "anthropic",
			ModelID:     "claude-3-5-sonnet-latest",
			OllamaURL:   "http://localhost:11434",
			MaxTokens:   4096,
			EnableCache: true,
		},
		Executor: ExecutorConfig{
			URL:     "http://localhost:8888",
			Timeout: 300 * time.Second,
		},
		Session: SessionConfig{Dir: "sessions"},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     5 * time.Minute,
		},
		Autonomous: AutonomousConfig{
			IterationDelay: 2 * time.Second,
		},
		Prompt: PromptConfig{
			Mode: "basic",
			Dir:  "prompts",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the effective configuration. A missing config file is fine;
// an unreadable or invalid one is an error.
//
// Environment variables map prefix-stripped underscore names onto config
// paths: PWNPILOT_PROVIDER_MODEL_ID -> provider.model_id.
func Load(configPath string) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return Config{}, fmt.Errorf("load env config: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// compoundFields are field names whose underscores belong to the key, not
// the section path.
var compoundFields = []string{
	"model_id", "api_key", "ollama_url", "max_tokens", "enable_cache",
	"max_tools", "max_iterations", "iteration_delay",
}

func envTransform(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, field := range compoundFields {
		if strings.HasSuffix(key, "_"+field) {
			section := strings.TrimSuffix(key, "_"+field)
			return strings.ReplaceAll(section, "_", ".") + "." + field
		}
	}
	return strings.ReplaceAll(key, "_", ".")
}
