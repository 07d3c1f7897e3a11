package modelclient

import (
	"context"
	"fmt"

	"github.com/swarmrun/swarmrun/internal/models"
)

// RegistrySummarizer adapts a Registry and a fixed provider/model pair into
// compaction.Summarizer, so history compaction reuses the same provider
// abstraction as turn execution instead of a separate client.
type RegistrySummarizer struct {
	Registry *Registry
	Provider string
	Model    string
}

// Summarize sends a single-turn completion request with no tools and
// returns the assistant's raw text.
func (s *RegistrySummarizer) Summarize(ctx context.Context, systemPrompt, prompt string) (string, error) {
	provider, ok := s.Registry.Get(s.Provider)
	if !ok {
		return "", fmt.Errorf("modelclient: summarizer provider %q not registered", s.Provider)
	}
	result, err := provider.Complete(ctx, CompletionRequest{
		Model:      s.Model,
		System:     systemPrompt,
		Messages:   []models.Message{models.NewMessage(models.RoleUser, prompt)},
		ToolChoice: string(ToolChoiceAuto),
		MaxTokens:  1024,
	})
	if err != nil {
		return "", fmt.Errorf("modelclient: summarize: %w", err)
	}
	return result.Content, nil
}
