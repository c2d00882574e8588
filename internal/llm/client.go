package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse indicates the model returned no choices or empty content.
var ErrEmptyResponse = errors.New("llm returned an empty response")

// Client is the minimal generative surface the adapters need. Implementations
// return the raw completion text; parsing is the caller's job (the model may
// wrap structured output in code fences).
type Client interface {
	// GenerateText sends a system prompt and a single user message and
	// returns the completion text. The call is bounded by the configured
	// timeout regardless of the parent context's deadline.
	GenerateText(ctx context.Context, system, user string) (string, error)
}

// OpenAIClient is the production Client over the OpenAI chat completions API.
type OpenAIClient struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	log     zerolog.Logger
}

// NewOpenAI builds a client for one purpose-specific model. The base URL is
// optional and allows pointing at a compatible proxy.
func NewOpenAI(apiKey, baseURL, model string, timeout time.Duration, log zerolog.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		api:     openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
		log:     log.With().Str("component", "llm_client").Str("model", model).Logger(),
	}
}

// GenerateText implements Client.
func (c *OpenAIClient) GenerateText(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}

	c.log.Debug().
		Dur("elapsed", time.Since(start)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Completion received")

	return resp.Choices[0].Message.Content, nil
}
