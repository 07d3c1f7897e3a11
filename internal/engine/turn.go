package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/swarmrun/swarmrun/internal/compaction"
	"github.com/swarmrun/swarmrun/internal/modelclient"
	"github.com/swarmrun/swarmrun/internal/models"
	"github.com/swarmrun/swarmrun/internal/policy"
	"github.com/swarmrun/swarmrun/internal/store"
)

var (
	// ErrTurnZeroExists is returned by SeedTurnZero when a turn-zero is
	// already present.
	ErrTurnZeroExists = errors.New("engine: turn-zero already exists")
	// ErrTurnZeroMissing is returned by RunSingleTurn when no turn-zero has
	// been seeded yet.
	ErrTurnZeroMissing = errors.New("engine: turn-zero does not exist")
)

const jsonReminder = "When calling a tool, supply arguments as a json object matching its parameter schema."

// SeedTurnZero writes the conversation's turn-zero: the system prompt (with
// the literal "json" reminder appended), the registry-supplied developer
// prompt, and, when non-empty, the initial user prompt. It fails if
// turn-zero already exists.
func (e *Engine) SeedTurnZero(ctx context.Context, key models.ConversationKey, systemPrompt, developerPrompt, initialUserPrompt string) error {
	existing, err := e.store.LoadTurns(ctx, key)
	if err != nil {
		return fmt.Errorf("engine: load turns: %w", err)
	}
	if len(existing) > 0 {
		return ErrTurnZeroExists
	}

	var messages []models.Message
	messages = append(messages, models.NewMessage(models.RoleSystem, systemPrompt+"\n\n"+jsonReminder))
	if developerPrompt != "" {
		messages = append(messages, models.NewMessage(models.RoleDeveloper, developerPrompt))
	}
	if initialUserPrompt != "" {
		messages = append(messages, models.NewMessage(models.RoleUser, initialUserPrompt))
	}

	for i := range messages {
		id, err := e.store.AllocateNextMessageID(ctx, key)
		if err != nil {
			return fmt.Errorf("engine: allocate message id: %w", err)
		}
		messages[i].RepoURL, messages[i].AgentRole, messages[i].AgentID = key.RepoURL, key.AgentRole, key.AgentID
		messages[i].TurnIdx = 0
		messages[i].MessageIdx = i
		messages[i].OriginalMessageID = id
	}

	turnZero := models.Turn{
		RepoURL:   key.RepoURL,
		AgentRole: key.AgentRole,
		AgentID:   key.AgentID,
		TurnIdx:   0,
		Messages:  messages,
		CreatedAt: time.Now(),
	}
	for _, m := range messages {
		turnZero.TotalCharCount += m.CharCount
	}

	return e.store.SaveTurns(ctx, key, []models.Turn{turnZero})
}

// RunSingleTurn executes one full turn cycle and returns the turn_idx the
// caller should use for its next call.
func (e *Engine) RunSingleTurn(ctx context.Context, key models.ConversationKey, catalog *ToolCatalog, model, reasoning, toolChoice string) (turnIdx int, err error) {
	unlock := e.lockConversation(key.String())
	defer unlock()

	ctx, endTurnSpan := e.startTurnSpan(ctx, key.AgentRole, key.AgentID)
	defer func() { endTurnSpan(err) }()

	turns, err := e.store.LoadTurns(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("engine: load turns: %w", err)
	}
	if len(turns) == 0 {
		return 0, ErrTurnZeroMissing
	}

	state, err := e.store.GetAgentState(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("engine: load state: %w", err)
	}

	if e.summarizer != nil && compaction.ShouldCompact(turns, e.config.Compaction) {
		compacted := compaction.Compact(ctx, turns, e.config.Compaction, e.summarizer)
		if len(compacted) != len(turns) {
			if err := e.store.SaveTurns(ctx, key, compacted); err != nil {
				return 0, fmt.Errorf("engine: save compacted turns: %w", err)
			}
			turns = compacted
		}
	}

	nextTurnIdx := models.MaxTurnIdx(turns) + 1

	providerName, modelID := e.splitModel(model)
	provider, ok := e.models.Get(providerName)
	if !ok {
		return 0, fmt.Errorf("engine: no provider registered for %q", providerName)
	}

	req := completionRequest(turns, catalog, e.resolver, key.AgentRole, modelID, reasoning, toolChoice)

	traceCtx, endSpan := e.startLLMSpan(ctx, providerName, modelID)
	result, err := provider.Complete(traceCtx, req)
	endSpan(err)
	if err != nil {
		if e.logger != nil {
			e.logger.Error(ctx, "engine: model call failed", "role", key.AgentRole, "id", key.AgentID, "provider", providerName, "error", err)
		}
		return 0, fmt.Errorf("engine: model call: %w", err)
	}

	assistantTurn, err := e.buildAssistantTurn(ctx, key, nextTurnIdx, result)
	if err != nil {
		return 0, err
	}

	allTurns := append(append([]models.Turn{}, turns...), assistantTurn)
	turnCounter := nextTurnIdx

	var toolTurns []models.Turn
	for _, call := range result.ToolCalls {
		turnCounter++
		toolTurn, err := e.executeToolCall(ctx, key, catalog, allTurns, toolTurns, state, call, turnCounter)
		if err != nil {
			return 0, err
		}
		toolTurns = append(toolTurns, toolTurn)
	}

	allTurns = append(allTurns, toolTurns...)
	if err := e.store.SaveTurns(ctx, key, allTurns); err != nil {
		return 0, fmt.Errorf("engine: save turns: %w", err)
	}

	return turnCounter + 1, nil
}

// completionRequest flattens every message of every turn in order and
// projects the tool catalog to the role's allowed set.
func completionRequest(turns []models.Turn, catalog *ToolCatalog, resolver *policy.Resolver, role, modelID, reasoning, toolChoice string) modelclient.CompletionRequest {
	var messages []models.Message
	var system string
	for _, t := range turns {
		for _, m := range t.Messages {
			if m.Role == models.RoleSystem && system == "" {
				system = m.Content
				continue
			}
			messages = append(messages, m)
		}
	}
	if toolChoice == "" {
		toolChoice = string(modelclient.ToolChoiceAuto)
	}
	return modelclient.CompletionRequest{
		Model:      modelID,
		System:     system,
		Messages:   messages,
		Tools:      catalog.MetadataFor(resolver, role),
		ToolChoice: toolChoice,
		Reasoning:  reasoning,
	}
}

func (e *Engine) buildAssistantTurn(ctx context.Context, key models.ConversationKey, turnIdx int, result modelclient.CompletionResult) (models.Turn, error) {
	msg := models.NewMessage(models.RoleAssistant, result.Content)
	msg.RawExtra = result.RawExtra
	id, err := e.store.AllocateNextMessageID(ctx, key)
	if err != nil {
		return models.Turn{}, fmt.Errorf("engine: allocate message id: %w", err)
	}
	msg.RepoURL, msg.AgentRole, msg.AgentID = key.RepoURL, key.AgentRole, key.AgentID
	msg.TurnIdx = turnIdx
	msg.OriginalMessageID = id

	return models.Turn{
		RepoURL:        key.RepoURL,
		AgentRole:      key.AgentRole,
		AgentID:        key.AgentID,
		TurnIdx:        turnIdx,
		TotalCharCount: msg.CharCount,
		Finalized:      len(result.ToolCalls) == 0,
		Messages:       []models.Message{msg},
		CreatedAt:      time.Now(),
	}, nil
}

// executeToolCall runs duplicate detection, then either rejects the call or
// dispatches it, building the resulting tool turn either way.
func (e *Engine) executeToolCall(ctx context.Context, key models.ConversationKey, catalog *ToolCatalog, priorTurns, sameRoundTurns []models.Turn, state models.AgentState, call models.ToolCall, turnIdx int) (models.Turn, error) {
	descriptor, _ := catalog.Get(call.Name)

	candidate := models.ToolInvocation{
		ToolName:           call.Name,
		ToolType:           descriptor.ToolType,
		Status:             models.ToolStatusSuccess,
		PreservationPolicy: descriptor.PreservationPolicy,
		ArgsHash:           store.ComputeArgsHash(call.Input),
		NormalizedFilename: store.NormalizedFilenameFromArgs(call.Input),
		InputArgs:          call.Input,
		BuildEpochAtRecord: state.BuildEpoch,
	}

	var content string
	var isError bool
	var execTime float64

	if validationErr := catalog.ValidateArgs(call.Name, call.Input); validationErr != nil {
		candidate.Status = models.ToolStatusError
		candidate.Rejection = validationErr.Error()
		content = validationErr.Error()
		isError = true
		return e.finishToolTurn(ctx, key, turnIdx, call, candidate, content, isError, execTime)
	}

	history := append(append([]models.Turn{}, priorTurns...), sameRoundTurns...)
	dup := store.DetectDuplicate(history, candidate, state, turnIdx)

	if dup.Found {
		candidate.Status = models.ToolStatusRejected
		candidate.Rejection = dup.RejectionNote
		content = dup.RejectionNote
		isError = true
	} else {
		start := time.Now()
		traceCtx, endSpan := e.startToolSpan(ctx, call.Name)
		resp := e.bus.Dispatch(traceCtx, models.ExecRequest{
			ToolName:  call.Name,
			InputArgs: call.Input,
			RepoURL:   key.RepoURL,
			TurnID:    strconv.Itoa(turnIdx),
		}, e.config.DispatchTimeout)
		endSpan(nil)
		execTime = time.Since(start).Seconds()
		if resp.Meta.ExecTimeSeconds > 0 {
			execTime = resp.Meta.ExecTimeSeconds
		}

		switch resp.Status {
		case models.ExecStatusOK:
			content = string(resp.Response)
			candidate.Status = models.ToolStatusSuccess
			if descriptor.MetadataFilter != nil {
				fields := descriptor.MetadataFilter(resp.Response)
				if len(fields) > 0 {
					if err := e.store.UpdateMetadata(ctx, key, fields); err != nil && e.logger != nil {
						e.logger.Warn(ctx, "engine: metadata filter update failed", "tool", call.Name, "error", err)
					}
				}
			}
		case models.ExecStatusFailure:
			candidate.Status = models.ToolStatusFailure
			isError = true
			if resp.Error != nil {
				content = resp.Error.Message
			}
		default:
			candidate.Status = models.ToolStatusError
			isError = true
			if resp.Error != nil {
				content = resp.Error.Message
			}
		}
	}
	candidate.ExecutionTime = execTime

	return e.finishToolTurn(ctx, key, turnIdx, call, candidate, content, isError, execTime)
}

// finishToolTurn builds the tool-role message and wrapping turn for a
// completed (dispatched, rejected, or failed-validation) tool call.
func (e *Engine) finishToolTurn(ctx context.Context, key models.ConversationKey, turnIdx int, call models.ToolCall, candidate models.ToolInvocation, content string, isError bool, execTime float64) (models.Turn, error) {
	toolResult := models.ToolResult{ToolCallID: call.ID, Content: content, IsError: isError, ExecTime: execTime}
	rawExtra, _ := json.Marshal(toolResult)

	msg := models.NewMessage(models.RoleTool, content)
	msg.RawExtra = rawExtra
	id, err := e.store.AllocateNextMessageID(ctx, key)
	if err != nil {
		return models.Turn{}, fmt.Errorf("engine: allocate message id: %w", err)
	}
	msg.RepoURL, msg.AgentRole, msg.AgentID = key.RepoURL, key.AgentRole, key.AgentID
	msg.TurnIdx = turnIdx
	msg.OriginalMessageID = id

	return models.Turn{
		RepoURL:        key.RepoURL,
		AgentRole:      key.AgentRole,
		AgentID:        key.AgentID,
		TurnIdx:        turnIdx,
		TotalCharCount: msg.CharCount,
		Finalized:      false,
		Messages:       []models.Message{msg},
		ToolInvocation: &candidate,
		CreatedAt:      time.Now(),
	}, nil
}
