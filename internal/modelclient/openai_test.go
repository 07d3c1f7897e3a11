package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/swarmrun/swarmrun/internal/models"
)

func TestNewOpenAIProvider(t *testing.T) {
	tests := []struct {
		name        string
		config      OpenAIConfig
		expectError bool
	}{
		{name: "valid config", config: OpenAIConfig{APIKey: "test-key"}, expectError: false},
		{name: "missing API key", config: OpenAIConfig{}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewOpenAIProvider(tt.config)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected an error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOpenAIProvider() error = %v", err)
			}
			if provider.Name() != "openai" {
				t.Errorf("Name() = %q, want openai", provider.Name())
			}
			if provider.defaultModel != "gpt-4o" {
				t.Errorf("defaultModel = %q, want gpt-4o", provider.defaultModel)
			}
		})
	}
}

func TestOpenAIProvider_ConvertMessages(t *testing.T) {
	p := &OpenAIProvider{}
	toolResult, _ := json.Marshal(models.ToolResult{ToolCallID: "call-1"})

	req := CompletionRequest{
		System: "be terse",
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: "ignored, system comes from req.System"},
			{Role: models.RoleUser, Content: "hello"},
			{Role: models.RoleAssistant, Content: "hi there"},
			{Role: models.RoleTool, Content: "42", RawExtra: toolResult},
		},
	}

	out := p.convertMessages(req)
	if len(out) != 4 {
		t.Fatalf("convertMessages() returned %d messages, want 4 (system + user + assistant + tool)", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleSystem || out[0].Content != "be terse" {
		t.Errorf("expected the first message to be the system prompt, got %+v", out[0])
	}
	if out[3].Role != openai.ChatMessageRoleTool || out[3].ToolCallID != "call-1" {
		t.Errorf("expected the tool message to carry ToolCallID call-1, got %+v", out[3])
	}
}

func TestOpenAIProvider_ConvertToolChoice(t *testing.T) {
	p := &OpenAIProvider{}

	if got := p.convertToolChoice(string(ToolChoiceAuto)); got != "auto" {
		t.Errorf("convertToolChoice(auto) = %v, want auto", got)
	}
	if got := p.convertToolChoice(""); got != "auto" {
		t.Errorf("convertToolChoice(\"\") = %v, want auto", got)
	}
	if got := p.convertToolChoice(string(ToolChoiceRequired)); got != "required" {
		t.Errorf("convertToolChoice(required) = %v, want required", got)
	}
	choice, ok := p.convertToolChoice("run_bash").(openai.ToolChoice)
	if !ok || choice.Function.Name != "run_bash" {
		t.Errorf("expected an explicit tool choice for run_bash, got %+v", choice)
	}
}

func TestOpenAIProvider_ConvertResponse(t *testing.T) {
	p := &OpenAIProvider{}

	t.Run("no choices", func(t *testing.T) {
		result := p.convertResponse(openai.ChatCompletionResponse{})
		if result.Content != "" || result.ToolCalls != nil {
			t.Errorf("expected a zero-value result for no choices, got %+v", result)
		}
	})

	t.Run("content and tool calls", func(t *testing.T) {
		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{
					Message: openai.ChatCompletionMessage{
						Content: "done",
						ToolCalls: []openai.ToolCall{
							{ID: "call-1", Function: openai.FunctionCall{Name: "run_bash", Arguments: `{"cmd":"ls"}`}},
						},
					},
				},
			},
			Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5},
		}

		result := p.convertResponse(resp)
		if result.Content != "done" {
			t.Errorf("Content = %q, want done", result.Content)
		}
		if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "run_bash" {
			t.Fatalf("expected a single run_bash tool call, got %+v", result.ToolCalls)
		}
		if result.InputTokens != 10 || result.OutputTokens != 5 {
			t.Errorf("token counts = %d/%d, want 10/5", result.InputTokens, result.OutputTokens)
		}
	})
}

func TestOpenAIProvider_WrapError_DeadlineExceeded(t *testing.T) {
	p := &OpenAIProvider{}
	wrapped := p.wrapError(context.DeadlineExceeded)

	var provErr *ProviderError
	if !errors.As(wrapped, &provErr) {
		t.Fatalf("expected a *ProviderError, got %T", wrapped)
	}
	if provErr.Reason != FailoverTimeout {
		t.Errorf("Reason = %q, want %q", provErr.Reason, FailoverTimeout)
	}
}

func TestOpenAIProvider_WrapError_APIError(t *testing.T) {
	p := &OpenAIProvider{}
	wrapped := p.wrapError(&openai.APIError{HTTPStatusCode: 429, Message: "rate limited"})

	var provErr *ProviderError
	if !errors.As(wrapped, &provErr) {
		t.Fatalf("expected a *ProviderError, got %T", wrapped)
	}
	if provErr.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", provErr.Provider)
	}
}
