// Package llm talks to an OpenAI-compatible chat-completion endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint    = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel       = "llama-3.3-70b-versatile"
	DefaultTemperature = 0.4
	DefaultTimeout     = 60 * time.Second
)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	Endpoint          string
	Model             string
	Temperature       float64
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client issues single request/response completions.
type Client struct {
	endpoint    string
	model       string
	temperature float64
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewClient builds a client from opts.
func NewClient(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Client{
		endpoint:    opts.Endpoint,
		model:       opts.Model,
		temperature: opts.Temperature,
		httpClient:  hc,
		limiter:     rate.NewLimiter(limit, 1),
	}
}

// Complete sends system and user as a two-message conversation and returns
// the first choice's text, or "" when the server returned no choices.
func (c *Client) Complete(ctx context.Context, apiKey, system, user string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm: rate limit wait: %w", err)
	}

	body, err := json.Marshal(ChatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", parseError(resp)
	}

	var chat ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("llm: decoding response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", nil
	}
	return chat.Choices[0].Message.Content, nil
}

// parseError turns a non-2xx response into an *APIError.
func parseError(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if readErr != nil || len(body) == 0 {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		raw := string(body)
		if len(raw) > 500 {
			raw = raw[:500] + "..."
		}
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("%s (raw: %s)", resp.Status, raw)}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    errResp.Error.Message,
		Type:       errResp.Error.Type,
	}
}
