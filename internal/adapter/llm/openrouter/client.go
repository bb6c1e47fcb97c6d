// Package openrouter implements the model client against the OpenRouter
// Chat Completions API (OpenAI-compatible wire format).
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout = 120 * time.Second
)

// Completion is the parsed result of a chat completion call.
type Completion struct {
	Text         string
	TokensIn     int
	TokensOut    int
	Model        string
	FinishReason string
}

// Client is an HTTP client for the OpenRouter API.
type Client struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	client      *http.Client
}

// NewClient creates an OpenRouter client. An empty baseURL selects the
// public endpoint; a zero timeout selects the default.
func NewClient(apiKey, model, baseURL string, temperature float64, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiKey:      apiKey,
		model:       model,
		baseURL:     baseURL,
		temperature: temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Complete sends a system and user message pair and returns the first
// choice. Failures are returned to the caller unretried.
func (c *Client) Complete(ctx context.Context, system, user string) (*Completion, error) {
	reqBody := ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp.StatusCode, body)
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Some providers report failures inside a 200 body.
	if chatResp.Error != nil {
		return nil, fmt.Errorf("model error %d: %s", chatResp.Error.Code, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return &Completion{
		Text:         chatResp.Choices[0].Message.Content,
		TokensIn:     chatResp.Usage.PromptTokens,
		TokensOut:    chatResp.Usage.CompletionTokens,
		Model:        chatResp.Model,
		FinishReason: chatResp.Choices[0].FinishReason,
	}, nil
}

func (c *Client) errorFromResponse(statusCode int, body []byte) error {
	message := fmt.Sprintf("HTTP %d", statusCode)

	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	} else if len(body) > 0 && len(body) < 200 {
		message = string(body)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("openrouter authentication failed: %s", message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("openrouter rate limited: %s", message)
	default:
		return fmt.Errorf("openrouter request failed (%d): %s", statusCode, message)
	}
}
