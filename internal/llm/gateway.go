// Package llm provides the single-call answering boundary to LLM providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/legalai/legal-assistant/internal/config"
	"go.uber.org/zap"
)

// Supported providers.
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

const (
	defaultMaxTokens = 1024
	defaultTimeout   = 60 * time.Second
)

// DefaultSystemPrompt frames every query sent to a provider.
const DefaultSystemPrompt = `You are a helpful legal assistant AI that provides information about legal concepts, procedures, and documents in accordance with Kenya's laws.
Provide clear, concise and accurate information. Format your response with markdown for readability.
Include relevant sections with headings when appropriate.
Always clarify that you are providing general information and not legal advice.`

var (
	// ErrProvider matches every failure returned by a Gateway.
	ErrProvider = errors.New("llm provider error")

	ErrUnsupportedProvider = errors.New("unsupported llm provider")
	ErrMissingAPIKey       = errors.New("llm api key not configured")
	ErrEmptyResponse       = errors.New("empty response from provider")
)

// Gateway answers a single query. Implementations make at most one provider
// call per Ask and never retry.
type Gateway interface {
	Ask(ctx context.Context, query string) (string, error)
}

// ProviderError is returned by every Gateway failure. It matches ErrProvider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrProvider) succeed for any ProviderError.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

func providerError(provider string, err error) error {
	return &ProviderError{Provider: provider, Err: err}
}

// New builds the Gateway selected by cfg.Provider. The choice is made once;
// an unknown or unconfigured provider is a construction error.
func New(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = withDefaults(cfg)

	var (
		gw  Gateway
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case ProviderClaude:
		gw, err = asGateway(NewClaude(cfg, logger))
	case ProviderGemini:
		gw, err = asGateway(NewGemini(ctx, cfg, logger))
	case ProviderOpenAI:
		gw, err = asGateway(NewOpenAI(cfg, logger))
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("llm gateway configured", zap.String("provider", cfg.Provider))
	return gw, nil
}

// asGateway keeps a failed constructor's typed nil out of the interface.
func asGateway[T Gateway](g T, err error) (Gateway, error) {
	if err != nil {
		return nil, err
	}
	return g, nil
}

func withDefaults(cfg config.LLMConfig) config.LLMConfig {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return cfg
}

// Unavailable is installed when no provider could be constructed. Every Ask
// fails with a ProviderError carrying the construction cause.
type Unavailable struct {
	Provider string
	Cause    error
}

func (u Unavailable) Ask(context.Context, string) (string, error) {
	cause := u.Cause
	if cause == nil {
		cause = ErrUnsupportedProvider
	}
	return "", providerError(u.Provider, cause)
}

// withTimeout bounds ctx by d unless the caller already set a deadline.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
