package domain

import "context"

// Turn is the provider-agnostic shape of one context turn sent to a
// Generation Service. Role is already mapped to the provider vocabulary.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// GenerationConfig bounds a single generation call.
type GenerationConfig struct {
	MaxOutputTokens int32
	Temperature     float32
	TopP            float32
}

// GenerationRequest is everything a Generation Service needs for one reply.
type GenerationRequest struct {
	History []Turn
	Text    string
	Config  GenerationConfig
}

// APIKeySource resolves the credential used to reach a Generation Service.
type APIKeySource interface {
	APIKey(ctx context.Context) (string, error)
}
