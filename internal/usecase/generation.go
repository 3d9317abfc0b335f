package usecase

import (
	"strings"

	"hta-chat/internal/domain"
)

// Generation policy. Not user-configurable.
const (
	maxOutputTokens = 500
	temperature     = 0.7
	topP            = 0.8
)

const providerUserRole = "user"

func generationConfig() domain.GenerationConfig {
	return domain.GenerationConfig{
		MaxOutputTokens: maxOutputTokens,
		Temperature:     temperature,
		TopP:            topP,
	}
}

func buildGenerationRequest(history []domain.Message, text, assistantRole string) domain.GenerationRequest {
	return domain.GenerationRequest{
		History: historyToTurns(history, assistantRole),
		Text:    text,
		Config:  generationConfig(),
	}
}

// historyToTurns maps stored messages to the provider's role vocabulary,
// preserving order. Blank messages carry no context and are skipped.
func historyToTurns(history []domain.Message, assistantRole string) []domain.Turn {
	turns := make([]domain.Turn, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := providerUserRole
		if m.Role == domain.RoleAssistant {
			role = assistantRole
		}
		turns = append(turns, domain.Turn{Role: role, Text: m.Content})
	}
	return turns
}
