package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/swarmrun/swarmrun/internal/models"
	"github.com/swarmrun/swarmrun/internal/retry"
)

// OpenAIProvider implements Provider against the Chat Completions API using
// a single, non-streaming call per turn.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	retryConfig  retry.Config
}

// OpenAIConfig configures OpenAIProvider.
type OpenAIConfig struct {
	APIKey       string
	DefaultModel string
	RetryConfig  retry.Config
}

// NewOpenAIProvider validates config and returns a ready provider.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("modelclient: openai API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}
	if config.RetryConfig.MaxAttempts == 0 {
		config.RetryConfig = retry.DefaultConfig()
	}
	return &OpenAIProvider{
		client:       openai.NewClient(config.APIKey),
		defaultModel: config.DefaultModel,
		retryConfig:  config.RetryConfig,
	}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req.Model),
		Messages: p.convertMessages(req),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = p.convertTools(req.Tools)
		chatReq.ToolChoice = p.convertToolChoice(req.ToolChoice)
	}

	var resp openai.ChatCompletionResponse
	result := retry.Do(ctx, p.retryConfig, func() error {
		r, callErr := p.client.CreateChatCompletion(ctx, chatReq)
		if callErr != nil {
			wrapped := p.wrapError(callErr)
			if !IsRetryable(wrapped) {
				return retry.Permanent(wrapped)
			}
			return wrapped
		}
		resp = r
		return nil
	})
	if result.Err != nil {
		return CompletionResult{}, result.Err
	}

	return p.convertResponse(resp), nil
}

func (p *OpenAIProvider) convertMessages(req CompletionRequest) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		if m.Role == models.RoleSystem {
			continue
		}
		switch m.Role {
		case models.RoleTool:
			var result models.ToolResult
			_ = json.Unmarshal(m.RawExtra, &result)
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: result.ToolCallID,
			})
		case models.RoleAssistant:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		}
	}
	return out
}

func (p *OpenAIProvider) convertTools(tools []ToolMetadata) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params map[string]any
		_ = json.Unmarshal(t.Parameters, &params)
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func (p *OpenAIProvider) convertToolChoice(choice string) any {
	switch choice {
	case string(ToolChoiceRequired):
		return "required"
	case "", string(ToolChoiceAuto):
		return "auto"
	default:
		return openai.ToolChoice{Type: openai.ToolTypeFunction, Function: openai.ToolFunction{Name: choice}}
	}
}

func (p *OpenAIProvider) convertResponse(resp openai.ChatCompletionResponse) CompletionResult {
	var result CompletionResult
	if len(resp.Choices) == 0 {
		return result
	}
	choice := resp.Choices[0]
	result.Content = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	result.InputTokens = resp.Usage.PromptTokens
	result.OutputTokens = resp.Usage.CompletionTokens
	return result
}

func (p *OpenAIProvider) model(requested string) string {
	if requested == "" {
		return p.defaultModel
	}
	return requested
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError("openai", "", err).WithStatus(apiErr.HTTPStatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Reason: FailoverTimeout, Provider: "openai", Cause: err, Message: err.Error()}
	}
	return NewProviderError("openai", "", fmt.Errorf("%w", err))
}
