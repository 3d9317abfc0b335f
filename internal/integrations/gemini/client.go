// Package gemini implements the Generation Service on Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"hta-chat/internal/domain"
)

const DefaultModel = "gemini-2.0-flash"

// modelsAPI is the slice of *genai.Models used by Client.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client generates replies with a Gemini model. The underlying genai client
// is created on first use, once an API key is available.
type Client struct {
	keys       domain.APIKeySource
	model      string
	httpClient *http.Client

	mu     sync.Mutex
	models modelsAPI
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// withModelsAPI bypasses genai client construction.
func withModelsAPI(api modelsAPI) Option {
	return func(c *Client) {
		c.models = api
	}
}

func NewClient(keys domain.APIKeySource, opts ...Option) (*Client, error) {
	if keys == nil {
		return nil, errors.New("gemini: api key source must not be nil")
	}
	c := &Client{keys: keys, model: DefaultModel}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) AssistantRole() string {
	return string(genai.RoleModel)
}

func (c *Client) CheckCredential(ctx context.Context) error {
	_, err := c.keys.APIKey(ctx)
	return err
}

func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	models, err := c.resolveModels(ctx)
	if err != nil {
		return "", err
	}

	temp := req.Config.Temperature
	topP := req.Config.TopP
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		TopP:            &topP,
		MaxOutputTokens: req.Config.MaxOutputTokens,
	}

	res, err := models.GenerateContent(ctx, c.model, buildContents(req), cfg)
	if err != nil {
		return "", classifyError(err)
	}
	text := ""
	if res != nil {
		text = res.Text()
	}
	if text == "" {
		return "", &domain.ProviderError{
			Category: domain.FailureUnclassified,
			Message:  "Gemini returned an empty response",
		}
	}
	return text, nil
}

func (c *Client) resolveModels(ctx context.Context) (modelsAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.models != nil {
		return c.models, nil
	}

	apiKey, err := c.keys.APIKey(ctx)
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c.models = client.Models
	return c.models, nil
}

// buildContents appends the new user text to the already mapped history.
func buildContents(req domain.GenerationRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		role := genai.RoleUser
		if t.Role == string(genai.RoleModel) {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	return append(contents, genai.NewContentFromText(req.Text, genai.RoleUser))
}

// classifyError converts a genai API error to a ProviderError by its status
// and HTTP code. Other errors, such as transport failures or context expiry,
// are wrapped unchanged.
func classifyError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var apiErrPtr *genai.APIError
		if !errors.As(err, &apiErrPtr) || apiErrPtr == nil {
			return fmt.Errorf("gemini: generate content: %w", err)
		}
		apiErr = *apiErrPtr
	}
	return &domain.ProviderError{
		Category: categoryFor(apiErr.Status, apiErr.Code),
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Err:      err,
	}
}

func categoryFor(status string, code int) domain.FailureCategory {
	switch strings.ToUpper(status) {
	case "RESOURCE_EXHAUSTED":
		return domain.FailureQuotaExceeded
	case "INVALID_ARGUMENT":
		return domain.FailureInvalidArgument
	}
	switch code {
	case http.StatusTooManyRequests:
		return domain.FailureQuotaExceeded
	case http.StatusBadRequest:
		return domain.FailureInvalidArgument
	}
	return domain.FailureUnclassified
}
