package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
)

// Provider names accepted by Config.Provider.
const (
	ProviderEcho   = "echo"
	ProviderStatic = "static"
	ProviderOpenAI = "openai"
)

// Config selects and tunes the text generator.
type Config struct {
	// Provider: echo, static, openai
	Provider string `yaml:"provider" env:"PROVIDER"`
	// BaseURL of the OpenAI compatible API
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// APIKey for bearer auth
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// StaticReply is returned by the static provider
	StaticReply string `yaml:"static_reply" env:"STATIC_REPLY"`
	// KeepModelPrefix sends "openai/gpt-4o" as is instead of "gpt-4o"
	KeepModelPrefix bool `yaml:"keep_model_prefix" env:"KEEP_MODEL_PREFIX"`
	// Timeout per HTTP request
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// MaxRetries for retryable upstream errors
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// RequestsPerSecond caps calls to the backend; 0 disables limiting
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	// Burst of the rate limiter
	Burst int `yaml:"burst" env:"BURST"`
}

// DefaultConfig returns an offline echo configuration.
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderEcho,
		BaseURL:     "https://api.openai.com",
		StaticReply: "OK",
		Timeout:     30 * time.Second,
		MaxRetries:  2,
		Burst:       1,
	}
}

// New builds the generator described by cfg.
func New(cfg Config, logger *zap.Logger) (workflow.TextGenerator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var gen workflow.TextGenerator
	switch cfg.Provider {
	case "", ProviderEcho:
		gen = EchoGenerator{}
	case ProviderStatic:
		gen = StaticGenerator{Reply: cfg.StaticReply}
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, types.NewError(types.ErrInvalidRequest, "llm api key is required for the openai provider")
		}
		gen = NewOpenAIGenerator(cfg, logger)
	default:
		return nil, types.Errorf(types.ErrInvalidRequest, "unknown llm provider: %s", cfg.Provider)
	}

	if cfg.MaxRetries > 0 && cfg.Provider == ProviderOpenAI {
		gen = WithRetry(gen, cfg.MaxRetries, logger)
	}
	if cfg.RequestsPerSecond > 0 {
		gen = WithRateLimit(gen, cfg.RequestsPerSecond, cfg.Burst)
	}
	return gen, nil
}

// EchoGenerator replies with the latest message, tagged with the model.
type EchoGenerator struct{}

// Generate implements workflow.TextGenerator.
func (EchoGenerator) Generate(ctx context.Context, model, _ string, messages []types.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	last := types.LastContent(messages)
	if last == "" {
		return fmt.Sprintf("[%s] ready", model), nil
	}
	return fmt.Sprintf("[%s] %s", model, last), nil
}

// StaticGenerator always replies with Reply.
type StaticGenerator struct {
	Reply string
}

// Generate implements workflow.TextGenerator.
func (g StaticGenerator) Generate(ctx context.Context, _, _ string, _ []types.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.Reply, nil
}

// wireModel strips a "provider/" prefix unless keep is set.
func wireModel(model string, keep bool) string {
	if keep {
		return model
	}
	if i := strings.LastIndex(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}
