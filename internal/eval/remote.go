package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/faizmisman/dosm-faq-chatbot/internal/rag"
)

// DefaultRemoteTimeout bounds one /predict call.
const DefaultRemoteTimeout = 90 * time.Second

// RemoteAnswerer posts queries to a running /predict endpoint.
type RemoteAnswerer struct {
	URL    string
	APIKey string
	Client *http.Client
}

// NewRemoteAnswerer creates a client for url.
func NewRemoteAnswerer(url, apiKey string) *RemoteAnswerer {
	return &RemoteAnswerer{
		URL:    url,
		APIKey: apiKey,
		Client: &http.Client{Timeout: DefaultRemoteTimeout},
	}
}

type predictResponse struct {
	Prediction rag.Result `json:"prediction"`
}

// Answer sends one query. Non-2xx responses are errors.
func (a *RemoteAnswerer) Answer(ctx context.Context, query string) (rag.Result, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return rag.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return rag.Result{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.APIKey != "" {
		req.Header.Set("X-API-Key", a.APIKey)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return rag.Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return rag.Result{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return rag.Result{}, fmt.Errorf("failed to decode prediction: %w", err)
	}
	return out.Prediction, nil
}
