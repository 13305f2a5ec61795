package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/legalai/legal-assistant/internal/config"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-2.5-flash"

// Gemini calls the Gemini API through the genai SDK.
type Gemini struct {
	client    *genai.Client
	model     string
	maxTokens int32
	system    string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewGemini creates a Gemini gateway. The client performs no network I/O
// until the first Ask.
func NewGemini(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*Gemini, error) {
	cfg = withDefaults(cfg)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = geminiDefaultModel
	}

	return &Gemini{
		client:    client,
		model:     model,
		maxTokens: int32(cfg.MaxTokens),
		system:    cfg.SystemPrompt,
		timeout:   cfg.Timeout,
		logger:    logger.With(zap.String("provider", ProviderGemini), zap.String("model", model)),
	}, nil
}

// Ask sends query with the system prompt as the system instruction.
func (g *Gemini) Ask(ctx context.Context, query string) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(query),
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: g.system}},
			},
			MaxOutputTokens: g.maxTokens,
		},
	)
	if err != nil {
		g.logger.Error("gemini request failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return "", providerError(ProviderGemini, err)
	}

	var out strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if p != nil {
				out.WriteString(p.Text)
			}
		}
	}
	answer := strings.TrimSpace(out.String())
	if answer == "" {
		return "", providerError(ProviderGemini, ErrEmptyResponse)
	}

	g.logger.Debug("gemini request completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_len", len(answer)))
	return answer, nil
}
