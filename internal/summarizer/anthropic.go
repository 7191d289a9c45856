package summarizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookmark-summarizer/internal/config"
	"github.com/JakeFAU/bookmark-summarizer/internal/policy/ratelimit"
)

type anthropicClient struct {
	cfg     config.LLMConfig
	prompt  string
	limiter *ratelimit.Limiter
	client  anthropic.Client
	logger  *zap.Logger
}

func newAnthropic(cfg config.LLMConfig, prompt string, limiter *ratelimit.Limiter, logger *zap.Logger) *anthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicClient{
		cfg:     cfg,
		prompt:  prompt,
		limiter: limiter,
		client:  anthropic.NewClient(opts...),
		logger:  logger,
	}
}

func (c *anthropicClient) Summarize(ctx context.Context, title, content string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   int64(c.cfg.MaxTokens),
		Temperature: anthropic.Float(c.cfg.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(
				renderPrompt(c.prompt, title, content, c.cfg.MaxTokens))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic message: %w", err)
	}

	var summary string
	for _, block := range resp.Content {
		if block.Type == "text" {
			summary += block.Text
		}
	}
	if summary == "" {
		return "", errors.New("anthropic message returned no text content")
	}

	c.logger.Debug("summary generated",
		zap.String("title", title),
		zap.String("model", c.cfg.Model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("duration", time.Since(start)))
	return summary, nil
}
