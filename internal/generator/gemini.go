package generator

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini API client.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// GeminiGenerator answers through the Gemini generateContent endpoint.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini API backed generator.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, NewProviderError(ProviderGemini, "CLIENT_ERROR", "failed to create client", 0, false, err)
	}
	return &GeminiGenerator{client: client, model: cfg.Model}, nil
}

// Name returns provider and model.
func (g *GeminiGenerator) Name() string {
	return ProviderGemini + ":" + g.model
}

// Generate sends the prompt as one text part at temperature 0.
func (g *GeminiGenerator) Generate(ctx context.Context, query string, contexts []string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(BuildPrompt(query, contexts)), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: MaxTokens,
	})
	if err != nil {
		status := 0
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.Code
		}
		return "", classify(ProviderGemini, status, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", NewProviderError(ProviderGemini, "EMPTY_RESPONSE", "no text candidates", 0, false, ErrEmptyResponse)
	}
	return text, nil
}
