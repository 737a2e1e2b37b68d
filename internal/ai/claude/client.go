// Package claude implements ai.Generator on the Anthropic Messages API.
package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/spigell/job-sift/internal/retry"
)

const (
	Provider         = "claude"
	defaultModel     = anthropic.ModelClaudeSonnet4_5
	defaultMaxTokens = 1024

	statusOverloaded = 529
)

type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Generator sends single-turn prompts to Claude.
type Generator struct {
	messages  messageCreator
	model     anthropic.Model
	maxTokens int64
	retry     retry.Policy
	logger    *zap.Logger

	requestOptions []option.RequestOption
}

type Option func(*Generator)

func WithRetry(p retry.Policy) Option {
	return func(g *Generator) {
		g.retry = p
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithMaxTokens(n int64) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithRequestOptions passes extra options to the SDK client, such as a base URL.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(g *Generator) {
		g.requestOptions = append(g.requestOptions, opts...)
	}
}

// NewGenerator creates a Claude generator. The SDK's own retries are disabled
// so the shared retry policy is the only one in effect.
func NewGenerator(apiKey, model string, opts ...Option) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}

	g := newGenerator(nil, model, opts...)

	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, g.requestOptions...)
	client := anthropic.NewClient(clientOpts...)
	g.messages = &client.Messages

	return g, nil
}

func newGenerator(messages messageCreator, model string, opts ...Option) *Generator {
	g := &Generator{
		messages:  messages,
		model:     anthropic.Model(strings.TrimSpace(model)),
		maxTokens: defaultMaxTokens,
		retry:     retry.Default(),
		logger:    zap.NewNop(),
	}
	if g.model == "" {
		g.model = defaultModel
	}
	for _, opt := range opts {
		opt(g)
	}
	g.retry.Retryable = retryable
	return g
}

func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.messages == nil {
		return "", errors.New("claude generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	params := anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(0.2),
	}

	var output string
	attempts, err := g.retry.Do(ctx, func(ctx context.Context) error {
		msg, err := g.messages.New(ctx, params)
		if err != nil {
			g.logger.Debug("claude message request failed", zap.String("ai_model", string(g.model)), zap.Error(err))
			return err
		}

		output = messageText(msg)
		if output == "" {
			return errors.New("claude returned no text content")
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create message (%d attempts): %w", attempts, err)
	}

	return output, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return string(g.model)
}

// retryable covers rate limits, overload and server errors.
func retryable(err error) bool {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests ||
		apiErr.StatusCode == statusOverloaded ||
		apiErr.StatusCode >= http.StatusInternalServerError
}

func messageText(msg *anthropic.Message) string {
	if msg == nil {
		return ""
	}

	var builder strings.Builder
	for _, block := range msg.Content {
		if block.Type != "text" {
			continue
		}
		text := strings.TrimSpace(block.Text)
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(text)
	}
	return builder.String()
}
