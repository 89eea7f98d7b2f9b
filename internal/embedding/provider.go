package embedding

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Config configures the remote fallback embedding path used when no
// EmbeddingWorkerPath subprocess is configured. The choice is made once at
// startup; a crashed subprocess is not replaced by this path. Shape adapted from the orphaned
// ai/core/embedding/provider_test.go (BaseURL/APIKey/EmbeddingModel/
// MaxRetries/Timeout with OpenAI-compatible defaults).
type Config struct {
	BaseURL        string
	APIKey         string
	EmbeddingModel string
	ChatModel      string
	MaxRetries     int
	Timeout        time.Duration
}

// DefaultConfig returns the OpenAI-compatible defaults the orphaned
// teacher test expects.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "https://api.openai.com/v1",
		EmbeddingModel: "text-embedding-3-small",
		ChatModel:      "gpt-4o-mini",
		MaxRetries:     3,
		Timeout:        30 * time.Second,
	}
}

// Provider is a remote, HTTP-backed embedding source, used as a
// degradation path when the child worker process in worker.go is
// unavailable. spec.md §4.4 leaves the degrade-or-fail decision to the
// caller; this is the "degrade" option.
type Provider struct {
	config *Config
	client *openai.Client
}

// NewProvider builds a Provider, filling any zero-valued fields of cfg
// with DefaultConfig's values. A nil cfg uses the defaults outright.
func NewProvider(cfg *Config) (*Provider, error) {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaults.EmbeddingModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = defaults.ChatModel
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &Provider{config: cfg, client: openai.NewClientWithConfig(clientCfg)}, nil
}

// NewProviderFromEnv builds a Provider from ORCH_EMBEDDING_* environment
// variables, matching internal/config.Config.FromEnv's naming.
func NewProviderFromEnv() (*Provider, error) {
	cfg := &Config{
		BaseURL:        getEnv("ORCH_EMBEDDING_BASE_URL", ""),
		APIKey:         getEnv("ORCH_EMBEDDING_API_KEY", ""),
		EmbeddingModel: getEnv("ORCH_EMBEDDING_MODEL", ""),
		ChatModel:      getEnv("ORCH_LLM_MODEL", ""),
		MaxRetries:     getEnvInt("ORCH_EMBEDDING_MAX_RETRIES", 0),
	}
	return NewProvider(cfg)
}

// Validate checks that the provider has the minimum configuration needed
// to make remote calls.
func (p *Provider) Validate(_ context.Context) error {
	if p.config.APIKey == "" {
		return fmt.Errorf("embedding provider: API key is required")
	}
	return nil
}

// ListModels returns the embedding and chat model names this provider is
// configured to use.
func (p *Provider) ListModels(_ context.Context) ([]string, error) {
	return []string{p.config.EmbeddingModel, p.config.ChatModel}, nil
}

// Message is a minimal chat message shape, kept for provider callers that
// need to pass conversation context to a remote model alongside
// embeddings.
type Message struct {
	Role    string
	Content string
}

// Embed requests a single embedding vector from the remote API. The
// returned vector is NOT guaranteed to be 384-dim or L2-normalized by the
// remote model; callers needing the worker's exact contract should prefer
// Worker.Embed and treat this as a degraded fallback.
func (p *Provider) Embed(ctx context.Context, text string) (Vector, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.config.EmbeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding provider: create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding provider: empty response")
	}
	return Vector(resp.Data[0].Embedding), nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
