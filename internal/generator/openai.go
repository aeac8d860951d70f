package generator

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures the chat completions client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIGenerator answers through the chat completions endpoint.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator with client retries disabled.
func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIGenerator{client: openai.NewClient(opts...), model: cfg.Model}
}

// Name returns provider and model.
func (g *OpenAIGenerator) Name() string {
	return ProviderOpenAI + ":" + g.model
}

// Generate sends the prompt as a single user message at temperature 0.
func (g *OpenAIGenerator) Generate(ctx context.Context, query string, contexts []string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(BuildPrompt(query, contexts)),
		},
		MaxTokens:   openai.Int(MaxTokens),
		Temperature: openai.Float(0),
	})
	if err != nil {
		status := 0
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return "", classify(ProviderOpenAI, status, err)
	}

	if len(resp.Choices) == 0 {
		return "", NewProviderError(ProviderOpenAI, "EMPTY_RESPONSE", "no choices returned", 0, false, ErrEmptyResponse)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", NewProviderError(ProviderOpenAI, "EMPTY_RESPONSE", "empty message content", 0, false, ErrEmptyResponse)
	}
	return text, nil
}
