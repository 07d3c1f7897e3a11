package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/swarmrun/swarmrun/internal/models"
)

// AppendMessages implements the spec's append_messages: persists a single
// new turn containing one message per entry in content, tagged turnRole,
// without invoking the model or dispatching any tool. Each entry is
// allocated its own freshly minted message ID, in order.
func (e *Engine) AppendMessages(ctx context.Context, key models.ConversationKey, turnRole models.Role, content []string) (turnID int, messageIDs []int, err error) {
	unlock := e.lockConversation(key.String())
	defer unlock()

	turns, err := e.store.LoadTurns(ctx, key)
	if err != nil {
		return 0, nil, fmt.Errorf("engine: load turns: %w", err)
	}
	turnIdx := models.MaxTurnIdx(turns) + 1

	messages := make([]models.Message, len(content))
	messageIDs = make([]int, len(content))
	var totalChars int
	for i, c := range content {
		id, err := e.store.AllocateNextMessageID(ctx, key)
		if err != nil {
			return 0, nil, fmt.Errorf("engine: allocate message id: %w", err)
		}
		msg := models.NewMessage(turnRole, c)
		msg.RepoURL, msg.AgentRole, msg.AgentID = key.RepoURL, key.AgentRole, key.AgentID
		msg.TurnIdx = turnIdx
		msg.MessageIdx = i
		msg.OriginalMessageID = id
		messages[i] = msg
		messageIDs[i] = id
		totalChars += msg.CharCount
	}

	turn := models.Turn{
		RepoURL:        key.RepoURL,
		AgentRole:      key.AgentRole,
		AgentID:        key.AgentID,
		TurnIdx:        turnIdx,
		TotalCharCount: totalChars,
		Finalized:      true,
		Messages:       messages,
		CreatedAt:      time.Now(),
	}

	if err := e.store.SaveTurns(ctx, key, append(turns, turn)); err != nil {
		return 0, nil, fmt.Errorf("engine: save turns: %w", err)
	}

	return turnIdx, messageIDs, nil
}
