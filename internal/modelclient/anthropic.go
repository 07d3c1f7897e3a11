package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/swarmrun/swarmrun/internal/models"
	"github.com/swarmrun/swarmrun/internal/retry"
)

// AnthropicProvider implements Provider against the Anthropic Messages API
// using a single, non-streaming call per turn.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	retryConfig  retry.Config
}

// AnthropicConfig configures AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	RetryConfig  retry.Config
}

// NewAnthropicProvider validates config and returns a ready provider.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("modelclient: anthropic API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}
	if config.RetryConfig.MaxAttempts == 0 {
		config.RetryConfig = retry.DefaultConfig()
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: config.DefaultModel,
		retryConfig:  config.RetryConfig,
	}, nil
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete implements Provider: one non-streaming Messages.New call, with
// retry.Do driving the backoff for retryable provider errors.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("modelclient: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req.Model)),
		Messages:  messages,
		MaxTokens: int64(p.maxTokens(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return CompletionResult{}, fmt.Errorf("modelclient: convert tools: %w", err)
		}
		params.Tools = tools
		params.ToolChoice = p.convertToolChoice(req.ToolChoice)
	}

	var message *anthropic.Message
	result := retry.Do(ctx, p.retryConfig, func() error {
		m, callErr := p.client.Messages.New(ctx, params)
		if callErr != nil {
			wrapped := p.wrapError(callErr)
			if !IsRetryable(wrapped) {
				return retry.Permanent(wrapped)
			}
			return wrapped
		}
		message = m
		return nil
	})
	if result.Err != nil {
		return CompletionResult{}, result.Err
	}

	return p.convertResponse(message), nil
}

func (p *AnthropicProvider) convertMessages(msgs []models.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, m := range msgs {
		if m.Role == models.RoleSystem {
			continue
		}
		var content []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			content = append(content, anthropic.NewTextBlock(m.Content))
		}

		var toolResult models.ToolResult
		if m.Role == models.RoleTool && len(m.RawExtra) > 0 {
			if err := json.Unmarshal(m.RawExtra, &toolResult); err == nil && toolResult.ToolCallID != "" {
				content = append(content, anthropic.NewToolResultBlock(toolResult.ToolCallID, m.Content, toolResult.IsError))
			}
		}

		role := anthropic.MessageParamRoleUser
		if m.Role == models.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		if len(content) == 0 {
			continue
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: content})
	}
	return out, nil
}

func (p *AnthropicProvider) convertTools(tools []ToolMetadata) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, param)
	}
	return out, nil
}

func (p *AnthropicProvider) convertToolChoice(choice string) anthropic.ToolChoiceUnionParam {
	switch choice {
	case string(ToolChoiceRequired):
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case "", string(ToolChoiceAuto):
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	default:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice}}
	}
}

func (p *AnthropicProvider) convertResponse(msg *anthropic.Message) CompletionResult {
	var result CompletionResult
	var text strings.Builder

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			tu := block.AsToolUse()
			input, _ := json.Marshal(tu.Input)
			result.ToolCalls = append(result.ToolCalls, models.ToolCall{
				ID:    tu.ID,
				Name:  tu.Name,
				Input: input,
			})
		}
	}

	result.Content = text.String()
	result.InputTokens = int(msg.Usage.InputTokens)
	result.OutputTokens = int(msg.Usage.OutputTokens)
	return result
}

func (p *AnthropicProvider) model(requested string) string {
	if requested == "" {
		return p.defaultModel
	}
	return requested
}

func (p *AnthropicProvider) maxTokens(requested int) int {
	if requested <= 0 {
		return 4096
	}
	return requested
}

func (p *AnthropicProvider) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return NewProviderError("anthropic", "", err).WithStatus(apiErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Reason: FailoverTimeout, Provider: "anthropic", Cause: err, Message: err.Error()}
	}
	return NewProviderError("anthropic", "", err)
}
