// Package store implements the Conversation Store: durable turns, messages,
// and tool-invocation metadata, with monotonic ID allocation and the
// duplicate-detection scan the Agent Execution Engine relies on before
// dispatching a tool call.
package store

import (
	"context"
	"time"

	"github.com/swarmrun/swarmrun/internal/models"
)

// TimeWindow bounds a query by message timestamp; a turn matches if any of
// its messages falls within [Start, End].
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// QueryFilters narrows QueryTurns to a subset of a conversation's turns.
// Zero-value fields are unconstrained.
type QueryFilters struct {
	Status     models.ToolStatus
	ToolName   string
	Deleted    *bool
	TimeWindow *TimeWindow
}

// SortField is one of the columns QueryTurns can order by. Some live on the
// turn row, others on the nested tool-invocation row; the store is
// responsible for the composite join this implies.
type SortField string

const (
	SortByTurnIdx        SortField = "turn_idx"
	SortByTotalCharCount SortField = "total_char_count"
	SortByStatus         SortField = "status"
	SortByToolName       SortField = "tool_name"
	SortByExecutionTime  SortField = "execution_time"
)

// Sort describes the ordering QueryTurns should apply.
type Sort struct {
	Field SortField
	Desc  bool
}

// Store is the Conversation Store's public contract. Implementations must
// serialise allocator calls and saves per conversation while allowing
// distinct conversations to proceed concurrently.
type Store interface {
	// AllocateNextTurnIdx reads last_turn_idx (default -1), increments,
	// writes back atomically, and returns the new value.
	AllocateNextTurnIdx(ctx context.Context, key models.ConversationKey) (int, error)

	// AllocateNextMessageID is symmetric to AllocateNextTurnIdx for
	// last_message_id.
	AllocateNextMessageID(ctx context.Context, key models.ConversationKey) (int, error)

	// LoadTurns returns every turn in a conversation, ascending by turn_idx,
	// each rehydrated with its tool-invocation metadata and ordered
	// messages.
	LoadTurns(ctx context.Context, key models.ConversationKey) ([]models.Turn, error)

	// QueryTurns pages and filters the denormalised join of turns and
	// tool-metadata.
	QueryTurns(ctx context.Context, key models.ConversationKey, filters QueryFilters, sort Sort, limit, offset int) ([]models.Turn, error)

	// SaveTurns transactionally replaces the conversation with the supplied
	// sequence, cascading to tool-meta and messages. It never re-allocates
	// IDs: turn_idx and original_message_id on the supplied turns are
	// trusted as-is.
	SaveTurns(ctx context.Context, key models.ConversationKey, turns []models.Turn) error

	// DeleteConversation cascades all rows for the conversation and resets
	// its counters.
	DeleteConversation(ctx context.Context, key models.ConversationKey) error

	// GetAgentState returns the conversation's counter row, or the zero
	// state (-1, -1) if the conversation has never been written to.
	GetAgentState(ctx context.Context, key models.ConversationKey) (models.AgentState, error)

	// GetMetadata returns the conversation-level opaque metadata blob.
	GetMetadata(ctx context.Context, key models.ConversationKey) (map[string]any, error)

	// UpdateMetadata merges the supplied fields into the conversation's
	// metadata blob.
	UpdateMetadata(ctx context.Context, key models.ConversationKey, fields map[string]any) error
}
