package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/legalai/legal-assistant/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const (
	openAIDefaultModel = "gpt-4o-mini"

	// localToken satisfies the client when a self-hosted endpoint such as
	// Ollama ignores authentication.
	localToken = "local"
)

// OpenAI calls any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	llm       llms.Model
	maxTokens int
	system    string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewOpenAI creates an OpenAI-compatible gateway. A missing API key is
// accepted only when BaseURL points at a self-hosted endpoint.
func NewOpenAI(cfg config.LLMConfig, logger *zap.Logger) (*OpenAI, error) {
	cfg = withDefaults(cfg)
	if logger == nil {
		logger = zap.NewNop()
	}

	token := cfg.APIKey
	if token == "" {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
		}
		token = localToken
	}
	model := cfg.Model
	if model == "" {
		model = openAIDefaultModel
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai: create client: %w", err)
	}

	return &OpenAI{
		llm:       client,
		maxTokens: cfg.MaxTokens,
		system:    cfg.SystemPrompt,
		timeout:   cfg.Timeout,
		logger:    logger.With(zap.String("provider", ProviderOpenAI), zap.String("model", model)),
	}, nil
}

// Ask sends the system prompt and query as a two-message chat.
func (o *OpenAI) Ask(ctx context.Context, query string) (string, error) {
	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, o.system),
			llms.TextParts(llms.ChatMessageTypeHuman, query),
		},
		llms.WithMaxTokens(o.maxTokens),
	)
	if err != nil {
		o.logger.Error("openai request failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return "", providerError(ProviderOpenAI, err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return "", providerError(ProviderOpenAI, ErrEmptyResponse)
	}
	answer := strings.TrimSpace(resp.Choices[0].Content)
	if answer == "" {
		return "", providerError(ProviderOpenAI, ErrEmptyResponse)
	}

	o.logger.Debug("openai request completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_len", len(answer)))
	return answer, nil
}
