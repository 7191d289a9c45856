package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookmark-summarizer/internal/config"
)

func TestNewSelectsProvider(t *testing.T) {
	t.Parallel()

	s, err := New(config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini"}, nil, nil)
	require.NoError(t, err)
	require.IsType(t, &openAIClient{}, s)

	s, err = New(config.LLMConfig{Provider: "anthropic", Model: "claude-sonnet-4-20250514"}, nil, nil)
	require.NoError(t, err)
	require.IsType(t, &anthropicClient{}, s)

	// Empty provider keeps the OpenAI-compatible default.
	s, err = New(config.LLMConfig{Model: "gpt-4o-mini"}, nil, nil)
	require.NoError(t, err)
	require.IsType(t, &openAIClient{}, s)

	_, err = New(config.LLMConfig{Provider: "carrier-pigeon"}, nil, nil)
	require.Error(t, err)
}

func TestOpenAISummarize(t *testing.T) {
	t.Parallel()

	var gotReq chatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "A fine page."}},
			},
		})
	}))
	defer srv.Close()

	cfg := config.LLMConfig{
		Provider:    "openai",
		APIKey:      "sk-test",
		BaseURL:     srv.URL + "/v1",
		Model:       "gpt-4o-mini",
		MaxTokens:   256,
		Temperature: 0.4,
	}
	c := newOpenAI(cfg, DefaultPrompt, nil, nil)
	c.logger = zap.NewNop()

	summary, err := c.Summarize(context.Background(), "Go Blog", "some page text")
	require.NoError(t, err)
	assert.Equal(t, "A fine page.", summary)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	assert.Equal(t, 256, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 1)
	assert.Contains(t, gotReq.Messages[0].Content, "Go Blog")
	assert.Contains(t, gotReq.Messages[0].Content, "some page text")
}

func TestOpenAISummarizeAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limited", "type": "rate_limit_error"},
		})
	}))
	defer srv.Close()

	c := newOpenAI(config.LLMConfig{BaseURL: srv.URL, Model: "m"}, DefaultPrompt, nil, nil)
	c.logger = zap.NewNop()

	_, err := c.Summarize(context.Background(), "t", "c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestOpenAISummarizeEmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := newOpenAI(config.LLMConfig{BaseURL: srv.URL, Model: "m"}, DefaultPrompt, nil, nil)
	c.logger = zap.NewNop()

	_, err := c.Summarize(context.Background(), "t", "c")
	require.Error(t, err)
}

func TestRenderPromptTruncatesContent(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("é", 1000)
	out := renderPrompt("{title}|{content}", "T", content, 10)

	body := strings.TrimPrefix(out, "T|")
	assert.LessOrEqual(t, len(body), 30, "content is capped near max_tokens*3 bytes")
	assert.True(t, utf8.ValidString(body))

	// Small content passes through untouched.
	out = renderPrompt("{title}|{content}", "T", "short", 1000)
	assert.Equal(t, "T|short", out)
}

func TestLoadPromptFromFile(t *testing.T) {
	t.Parallel()

	_, err := loadPrompt("/nonexistent/prompt.txt")
	require.Error(t, err)

	got, err := loadPrompt("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompt, got)
}
