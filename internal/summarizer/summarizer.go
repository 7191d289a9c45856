// Package summarizer generates markdown descriptions of fetched pages
// through an LLM provider.
package summarizer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/bookmark-summarizer/internal/config"
	"github.com/JakeFAU/bookmark-summarizer/internal/policy/ratelimit"
)

// Summarizer produces a markdown summary for one page.
type Summarizer interface {
	Summarize(ctx context.Context, title, content string) (string, error)
}

// DefaultPrompt is used when no prompt file is configured. The {title} and
// {content} placeholders are substituted per page.
const DefaultPrompt = `Summarize the following web page in 2-4 short markdown paragraphs.
Focus on what the page is about and why someone might have bookmarked it.
Answer in the language the page is written in.

Title: {title}

Content:
{content}`

// New selects a backend from cfg.Provider. Supported providers are
// "anthropic" and "openai"; the latter also serves any OpenAI-compatible
// endpoint (OpenRouter and friends) via cfg.BaseURL.
func New(cfg config.LLMConfig, limiter *ratelimit.Limiter, logger *zap.Logger) (Summarizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	prompt, err := loadPrompt(cfg.PromptFile)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		return newAnthropic(cfg, prompt, limiter, logger), nil
	case "", "openai":
		return newOpenAI(cfg, prompt, limiter, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func loadPrompt(path string) (string, error) {
	if path == "" {
		return DefaultPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	return string(data), nil
}

// renderPrompt fills the template and bounds the page content so the request
// stays within the provider's context budget. Three characters per token is a
// coarse but serviceable ratio.
func renderPrompt(template, title, content string, maxTokens int) string {
	limit := maxTokens * 3
	if limit > 0 && len(content) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	return strings.NewReplacer("{title}", title, "{content}", content).Replace(template)
}
