// Package generator wraps external language models that phrase an answer
// from retrieved dataset rows.
//
// Generators are optional. Callers treat every error as a signal to fall
// back to the template answer, so implementations never retry on their own.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/faizmisman/dosm-faq-chatbot/internal/textutil"
)

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const (
	// MaxTokens caps the completion length requested from every provider.
	MaxTokens = 512

	// MaxChunkRunes bounds each context chunk embedded in the prompt.
	MaxChunkRunes = 2000

	// SystemPrompt instructs the model to stay inside the supplied rows.
	SystemPrompt = "You are a citation-grounded assistant. Use ONLY the provided context. " +
		"If the answer is not fully supported by the context, ask for clarification succinctly. " +
		"Return concise factual sentences; avoid speculation."
)

var (
	ErrUnknownProvider = errors.New("unknown generator provider")
	ErrMissingAPIKey   = errors.New("generator api key is not configured")
	ErrEmptyResponse   = errors.New("generator returned no text")
)

// Generator produces an answer for query using only contexts.
type Generator interface {
	Name() string
	Generate(ctx context.Context, query string, contexts []string) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider      string
	Model         string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string
	GeminiBaseURL string
}

// New creates the generator named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingAPIKey)
		}
		return NewOpenAIGenerator(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.Model,
		}), nil
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingAPIKey)
		}
		return NewGeminiGenerator(ctx, GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.Model,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// BuildPrompt renders the single user message sent to the model.
func BuildPrompt(query string, contexts []string) string {
	var b strings.Builder
	b.WriteString(SystemPrompt)
	b.WriteString("\n\nContext:\n")
	for i, c := range contexts {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "Chunk %d:\n%s", i+1, textutil.Truncate(c, MaxChunkRunes))
	}
	b.WriteString("\n\nUser Query: ")
	b.WriteString(query)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// ProviderError represents a failed provider call.
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is a short machine-readable reason
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := e.Provider + ": " + e.Message
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable reports whether err wraps a retryable ProviderError.
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}

// classify converts a transport or API failure into a ProviderError.
// statusCode is zero when no HTTP response was received.
func classify(provider string, statusCode int, err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(provider, "TIMEOUT", "request timed out", 0, true, err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(provider, "CANCELED", "request canceled", 0, false, err)
	case statusCode == 0:
		return NewProviderError(provider, "HTTP_ERROR", "request failed", 0, true, err)
	case statusCode == 429:
		return NewProviderError(provider, "RATE_LIMITED", "rate limited", statusCode, true, err)
	case statusCode >= 500:
		return NewProviderError(provider, "SERVER_ERROR", "server error", statusCode, true, err)
	default:
		return NewProviderError(provider, "REQUEST_REJECTED", "request rejected", statusCode, false, err)
	}
}
