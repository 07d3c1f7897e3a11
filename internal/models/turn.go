// Package models defines the durable record types shared by the conversation
// store, the execution engine, and the agent runtime.
package models

import "time"

// Turn is one row of a conversation's history: the inbound trigger plus
// whatever the model and tools produced in response to it. Turns are
// append-only within a conversation and ordered by TurnIdx.
type Turn struct {
	RepoURL   string `json:"repo_url"`
	AgentRole string `json:"agent_role"`
	AgentID   string `json:"agent_id"`

	// TurnIdx is assigned once, at creation, and never changes afterward.
	TurnIdx int `json:"turn_idx"`

	TotalCharCount int  `json:"total_char_count"`
	Finalized      bool `json:"finalized"`

	Messages []Message `json:"messages"`

	// ToolInvocation is present exactly when this turn originated from a
	// tool call.
	ToolInvocation *ToolInvocation `json:"tool_invocation,omitempty"`

	// TurnsToPurge and InvocationReason are carried opaquely: callers may set
	// them but no engine logic reads them back.
	TurnsToPurge     []int  `json:"turns_to_purge,omitempty"`
	InvocationReason string `json:"invocation_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsToolTurn reports whether this turn carries tool-invocation metadata.
func (t Turn) IsToolTurn() bool {
	return t.ToolInvocation != nil
}

// MaxTurnIdx returns -1 for an empty slice, otherwise the highest TurnIdx
// present. Turns are normally supplied in ascending order but this does not
// assume it.
func MaxTurnIdx(turns []Turn) int {
	max := -1
	for _, t := range turns {
		if t.TurnIdx > max {
			max = t.TurnIdx
		}
	}
	return max
}

// ConversationKey identifies a single conversation's durable state: the
// triple (repo_url, agent_role, agent_id).
type ConversationKey struct {
	RepoURL   string `json:"repo_url"`
	AgentRole string `json:"agent_role"`
	AgentID   string `json:"agent_id"`
}

func (k ConversationKey) String() string {
	return k.RepoURL + "|" + k.AgentRole + "|" + k.AgentID
}

// AgentState is the denormalised per-conversation counter row: the
// monotonic turn/message allocators plus the build epoch used to resolve
// the until-build preservation policy. LastTurnIdx and LastMessageID start
// at -1, matching an empty conversation.
type AgentState struct {
	ConversationKey

	LastTurnIdx   int `json:"last_turn_idx"`
	LastMessageID int `json:"last_message_id"`

	// BuildEpoch increments every time a build-type tool invocation is
	// persisted; until-build dedup compares the candidate's recorded epoch
	// against the current one instead of walking a separate invocation log.
	BuildEpoch int `json:"build_epoch"`

	// Metadata is the opaque conversation-level JSON blob written by tool
	// metadata filters (e.g. issue-title extraction) and read back by the
	// engine before finalizing a turn.
	Metadata map[string]any `json:"metadata,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewAgentState returns the zero-value state for a conversation that has
// never been written to: both counters at -1.
func NewAgentState(key ConversationKey) AgentState {
	return AgentState{
		ConversationKey: key,
		LastTurnIdx:     -1,
		LastMessageID:   -1,
	}
}
