package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/legalai/legal-assistant/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"go.uber.org/zap"
)

const claudeDefaultModel = "claude-3-sonnet-20240229"

// Claude calls the Anthropic Messages API.
type Claude struct {
	llm       llms.Model
	maxTokens int
	system    string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewClaude creates a Claude gateway.
func NewClaude(cfg config.LLMConfig, logger *zap.Logger) (*Claude, error) {
	cfg = withDefaults(cfg)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("claude: %w", ErrMissingAPIKey)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	model := cfg.Model
	if model == "" {
		model = claudeDefaultModel
	}

	opts := []anthropic.Option{
		anthropic.WithToken(cfg.APIKey),
		anthropic.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	client, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("claude: create client: %w", err)
	}

	return &Claude{
		llm:       client,
		maxTokens: cfg.MaxTokens,
		system:    cfg.SystemPrompt,
		timeout:   cfg.Timeout,
		logger:    logger.With(zap.String("provider", ProviderClaude), zap.String("model", model)),
	}, nil
}

// Ask sends query as a single user message under the system prompt.
func (c *Claude) Ask(ctx context.Context, query string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, c.system),
			llms.TextParts(llms.ChatMessageTypeHuman, query),
		},
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		c.logger.Error("claude request failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return "", providerError(ProviderClaude, err)
	}

	// Each text block of the reply arrives as its own choice.
	var out strings.Builder
	if resp != nil {
		for _, choice := range resp.Choices {
			if choice != nil {
				out.WriteString(choice.Content)
			}
		}
	}
	answer := strings.TrimSpace(out.String())
	if answer == "" {
		return "", providerError(ProviderClaude, ErrEmptyResponse)
	}

	c.logger.Debug("claude request completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_len", len(answer)))
	return answer, nil
}
