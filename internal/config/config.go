// Package config is the ambient configuration layer: environment-var and
// flag-driven settings for the whole process, adapted from the teacher's
// internal/profile.Profile (itself reduced to the fields this spec's
// components actually consume — database DSN, bind address, and the LLM /
// embedding provider settings the generation and embedding components
// need).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// Config is the resolved process configuration.
type Config struct {
	Mode     string // "dev", "prod", or "demo"
	Addr     string
	UnixSock string
	Driver   string // postgres (the only supported driver; pgvector requires it)
	DSN      string
	Port     int

	LLMProvider string
	LLMAPIKey   string
	LLMBaseURL  string
	LLMModel    string
	LLMTimeoutSeconds int

	EmbeddingWorkerPath string // path to the child embedding-worker binary; empty disables the subprocess path
	EmbeddingModel      string
	EmbeddingRemoteBaseURL string
	EmbeddingRemoteAPIKey  string

	RedisAddr string

	ConfigCacheTTLSeconds int
}

// llmProviderDefaults mirrors the teacher's per-provider base URL/model
// table in internal/profile, trimmed to providers this core's generation
// worker actually targets.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "deepseek/deepseek-chat",
	},
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables, applying
// provider defaults exactly as the teacher's Profile.FromEnv does.
func (c *Config) FromEnv() {
	c.LLMProvider = getEnvOrDefault("ORCH_LLM_PROVIDER", "openai")
	c.LLMAPIKey = getEnvOrDefault("ORCH_LLM_API_KEY", "")
	c.LLMBaseURL = getEnvOrDefault("ORCH_LLM_BASE_URL", "")
	c.LLMModel = getEnvOrDefault("ORCH_LLM_MODEL", "")
	c.LLMTimeoutSeconds = getEnvOrDefaultInt("ORCH_LLM_TIMEOUT_SECONDS", 60)

	if defaults, ok := llmProviderDefaults[c.LLMProvider]; ok {
		if c.LLMBaseURL == "" {
			c.LLMBaseURL = defaults.BaseURL
		}
		if c.LLMModel == "" {
			c.LLMModel = defaults.Model
		}
	} else if c.LLMProvider != "" {
		slog.Warn("config: unknown LLM provider, no defaults applied", "provider", c.LLMProvider)
	}

	c.EmbeddingWorkerPath = getEnvOrDefault("ORCH_EMBEDDING_WORKER_PATH", "")
	c.EmbeddingModel = getEnvOrDefault("ORCH_EMBEDDING_MODEL", "BAAI/bge-small-en-v1.5")
	c.EmbeddingRemoteBaseURL = getEnvOrDefault("ORCH_EMBEDDING_BASE_URL", "https://api.openai.com/v1")
	c.EmbeddingRemoteAPIKey = getEnvOrDefault("ORCH_EMBEDDING_API_KEY", "")

	c.RedisAddr = getEnvOrDefault("ORCH_REDIS_ADDR", "localhost:6379")
	c.ConfigCacheTTLSeconds = getEnvOrDefaultInt("ORCH_CONFIG_CACHE_TTL_SECONDS", 300)
}

// Validate checks the minimum configuration needed to start the service.
func (c *Config) Validate() error {
	if c.Driver == "" {
		c.Driver = "postgres"
	}
	if c.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver %q: this core requires pgvector on postgres", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if c.Port <= 0 && c.UnixSock == "" {
		return fmt.Errorf("port or unix-sock is required")
	}
	return nil
}

// IsDev reports whether the process is running outside production mode.
func (c *Config) IsDev() bool {
	return c.Mode != "prod"
}
