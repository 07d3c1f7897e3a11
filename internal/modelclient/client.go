// Package modelclient abstracts the model call the Agent Execution Engine
// makes once per turn: messages and tool metadata in, assistant content and
// zero or more tool calls out.
package modelclient

import (
	"context"
	"encoding/json"

	"github.com/swarmrun/swarmrun/internal/models"
)

// ToolChoice selects how the model should treat the supplied tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
)

// ToolMetadata is the projection of a registered tool the engine sends with
// every completion request: name, description, and parameter schema, never
// the tool's implementation.
type ToolMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// CompletionRequest is the engine's one-shot, non-streaming model call.
type CompletionRequest struct {
	Model  string
	System string
	// Messages is the flattened outbound history; role "tool" messages
	// pass through unchanged.
	Messages []models.Message
	Tools    []ToolMetadata
	// ToolChoice is either ToolChoiceAuto, ToolChoiceRequired, or an
	// explicit tool name.
	ToolChoice string
	Reasoning  string
	MaxTokens  int
}

// CompletionResult is the parsed assistant response for one turn.
type CompletionResult struct {
	Content      string
	ToolCalls    []models.ToolCall
	InputTokens  int
	OutputTokens int
	// RawExtra carries provider-specific response fields (e.g. thinking
	// blocks) the engine persists but does not interpret.
	RawExtra json.RawMessage
}

// Provider is one LLM backend the engine can be configured to call.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// Registry resolves a provider by name, matching the role/model
// configuration the Registry Client fetches per agent role.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns the named provider, or false if it is not registered.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}
