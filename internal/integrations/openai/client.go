package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"hta-chat/internal/domain"
)

const (
	DefaultModel   = "gpt-4o-mini"
	defaultBaseURL = "https://api.openai.com/v1"
	assistantRole  = "assistant"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int32         `json:"max_tokens,omitempty"`
	Temperature *float32      `json:"temperature,omitempty"`
	TopP        *float32      `json:"top_p,omitempty"`
}

// chatResponse is the minimal response shape returned by the Chat Completions endpoint.
type chatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Choices []struct {
		Index   int         `json:"index"`
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// errorEnvelope is the error body returned on non-2xx responses.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused OpenAI-compatible client for chat completions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	keys       domain.APIKeySource
	model      string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

// NewClient creates a Client whose API key comes from keys on every call.
func NewClient(keys domain.APIKeySource, opts ...Option) (*Client, error) {
	if keys == nil {
		return nil, errors.New("openai: api key source must not be nil")
	}
	c := &Client{
		baseURL: defaultBaseURL,
		keys:    keys,
		model:   DefaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) AssistantRole() string {
	return assistantRole
}

func (c *Client) CheckCredential(ctx context.Context) error {
	_, err := c.keys.APIKey(ctx)
	return err
}

// resolvedHTTPClient returns the configured HTTP client, or
// http.DefaultClient. The default carries no timeout of its own: the
// caller's context bounds the request.
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return http.DefaultClient
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

func (c *Client) Generate(ctx context.Context, in domain.GenerationRequest) (string, error) {
	apiKey, err := c.keys.APIKey(ctx)
	if err != nil {
		return "", err
	}

	temp := in.Config.Temperature
	topP := in.Config.TopP
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    buildMessages(in),
		MaxTokens:   in.Config.MaxOutputTokens,
		Temperature: &temp,
		TopP:        &topP,
	})
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	url := chatURL(c.baseURL)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("openai: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) {
			return "", classifyStatusError(statusErr)
		}
		return "", fmt.Errorf("openai: request failed: %w", err)
	}

	var payload chatResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("openai: decode response: %w", decErr)
	}
	if len(payload.Choices) == 0 {
		return "", &domain.ProviderError{Category: domain.FailureUnclassified, Message: "openai: no choices in response"}
	}
	text := payload.Choices[0].Message.Content
	if text == "" {
		return "", &domain.ProviderError{Category: domain.FailureUnclassified, Message: "openai: empty completion"}
	}
	return text, nil
}

func buildMessages(in domain.GenerationRequest) []chatMessage {
	msgs := make([]chatMessage, 0, len(in.History)+1)
	for _, t := range in.History {
		msgs = append(msgs, chatMessage{Role: t.Role, Content: t.Text})
	}
	return append(msgs, chatMessage{Role: "user", Content: in.Text})
}

// classifyStatusError reads the structured error code before falling back
// to the HTTP status.
func classifyStatusError(statusErr *HTTPStatusError) *domain.ProviderError {
	var env errorEnvelope
	_ = json.Unmarshal([]byte(statusErr.Body), &env)

	category := domain.FailureUnclassified
	switch {
	case env.Error.Code == "insufficient_quota" || env.Error.Code == "rate_limit_exceeded":
		category = domain.FailureQuotaExceeded
	case env.Error.Type == "invalid_request_error" && statusErr.StatusCode == http.StatusBadRequest:
		category = domain.FailureInvalidArgument
	case statusErr.StatusCode == http.StatusTooManyRequests:
		category = domain.FailureQuotaExceeded
	case statusErr.StatusCode == http.StatusBadRequest:
		category = domain.FailureInvalidArgument
	}

	msg := env.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("openai: unexpected status %d", statusErr.StatusCode)
	}
	return &domain.ProviderError{
		Category: category,
		Code:     statusErr.StatusCode,
		Message:  msg,
		Err:      statusErr,
	}
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
