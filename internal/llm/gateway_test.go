package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/legalai/legal-assistant/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsProvider(t *testing.T) {
	ctx := context.Background()

	gw, err := New(ctx, config.LLMConfig{Provider: "claude", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Claude{}, gw)

	gw, err = New(ctx, config.LLMConfig{Provider: "OpenAI", BaseURL: "http://localhost:11434/v1"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, gw)

	gw, err = New(ctx, config.LLMConfig{Provider: "gemini", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Gemini{}, gw)
}

func TestNewRejectsUnusableProvider(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		cfg  config.LLMConfig
		want error
	}{
		{"unknown", config.LLMConfig{Provider: "watson", APIKey: "k"}, ErrUnsupportedProvider},
		{"empty", config.LLMConfig{}, ErrUnsupportedProvider},
		{"claude without key", config.LLMConfig{Provider: "claude"}, ErrMissingAPIKey},
		{"gemini without key", config.LLMConfig{Provider: "gemini"}, ErrMissingAPIKey},
		{"openai without key or endpoint", config.LLMConfig{Provider: "openai"}, ErrMissingAPIKey},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw, err := New(ctx, tc.cfg, nil)
			assert.Nil(t, gw)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUnavailableAlwaysFails(t *testing.T) {
	cause := errors.New("no provider")
	gw := Unavailable{Provider: "watson", Cause: cause}

	_, err := gw.Ask(context.Background(), "What is a contract?")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvider)
	assert.ErrorIs(t, err, cause)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "watson", perr.Provider)
}

func newClaudeForServer(t *testing.T, srv *httptest.Server) *Claude {
	t.Helper()
	c, err := NewClaude(config.LLMConfig{APIKey: "test-key", BaseURL: srv.URL, Timeout: 2 * time.Second}, nil)
	require.NoError(t, err)
	return c
}

func TestClaudeAsk(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    string `json:"system"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-sonnet-20240229",
			"content": [{"type":"text","text":"A contract is "},{"type":"text","text":"an agreement."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 6}
		}`))
	}))
	defer srv.Close()

	answer, err := newClaudeForServer(t, srv).Ask(context.Background(), "What is a contract?")
	require.NoError(t, err)
	assert.Equal(t, "A contract is an agreement.", answer)

	assert.Equal(t, claudeDefaultModel, got.Model)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	assert.Equal(t, DefaultSystemPrompt, got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "What is a contract?", got.Messages[0].Content)
}

func TestClaudeAskFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`},
		{"server error", http.StatusInternalServerError, `oops`},
		{"malformed", http.StatusOK, `{not json`},
		{"empty", http.StatusOK, `{"content":[]}`},
		{"blank text", http.StatusOK, `{"content":[{"type":"text","text":"  "}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newClaudeForServer(t, srv).Ask(context.Background(), "q")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrProvider)
			assert.Equal(t, 1, calls, "gateways never retry")
		})
	}
}

func TestClaudeAskTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClaude(config.LLMConfig{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = c.Ask(context.Background(), "q")
	assert.ErrorIs(t, err, ErrProvider)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpenAIAsk(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "llama3.1:8b",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "An agreement."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
		}`))
	}))
	defer srv.Close()

	gw, err := NewOpenAI(config.LLMConfig{BaseURL: srv.URL, Model: "llama3.1:8b"}, nil)
	require.NoError(t, err)

	answer, err := gw.Ask(context.Background(), "What is a contract?")
	require.NoError(t, err)
	assert.Equal(t, "An agreement.", answer)

	assert.Equal(t, "llama3.1:8b", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestOpenAIAskProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream down"}}`))
	}))
	defer srv.Close()

	gw, err := NewOpenAI(config.LLMConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = gw.Ask(context.Background(), "q")
	assert.ErrorIs(t, err, ErrProvider)
}

func newGeminiForServer(t *testing.T, srv *httptest.Server) *Gemini {
	t.Helper()
	g, err := NewGemini(context.Background(), config.LLMConfig{APIKey: "test-key", BaseURL: srv.URL, Timeout: 2 * time.Second}, nil)
	require.NoError(t, err)
	return g
}

func TestGeminiAsk(t *testing.T) {
	var got struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
		SystemInstruction struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
		GenerationConfig struct {
			MaxOutputTokens int `json:"maxOutputTokens"`
		} `json:"generationConfig"`
	}
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v1beta/models/"+geminiDefaultModel+":generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "An "}, {"text": "agreement."}]},
				"finishReason": "STOP"
			}]
		}`))
	}))
	defer srv.Close()

	answer, err := newGeminiForServer(t, srv).Ask(context.Background(), "What is a contract?")
	require.NoError(t, err)
	assert.Equal(t, "An agreement.", answer)
	assert.Equal(t, 1, calls)

	require.Len(t, got.Contents, 1)
	require.Len(t, got.Contents[0].Parts, 1)
	assert.Equal(t, "What is a contract?", got.Contents[0].Parts[0].Text)
	require.Len(t, got.SystemInstruction.Parts, 1)
	assert.Equal(t, DefaultSystemPrompt, got.SystemInstruction.Parts[0].Text)
	assert.Equal(t, defaultMaxTokens, got.GenerationConfig.MaxOutputTokens)
}

func TestGeminiAskFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"unavailable", http.StatusServiceUnavailable, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`},
		{"forbidden", http.StatusForbidden, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`},
		{"no candidates", http.StatusOK, `{"candidates":[]}`},
		{"blank parts", http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":" "}]}}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newGeminiForServer(t, srv).Ask(context.Background(), "q")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrProvider)
			assert.Equal(t, 1, calls, "gateways never retry")

			var perr *ProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, ProviderGemini, perr.Provider)
		})
	}
}
