package models

import "time"

// AgentIdentity is the tuple (agent_role, agent_id, repo_url) that uniquely
// identifies a conversation and its registered agent.
type AgentIdentity struct {
	Role    string `json:"agent_role"`
	ID      string `json:"agent_id"`
	RepoURL string `json:"repo_url"`
}

func (a AgentIdentity) String() string {
	return a.Role + "/" + a.ID + "@" + a.RepoURL
}

// Key projects the identity onto a ConversationKey for store lookups.
func (a AgentIdentity) Key() ConversationKey {
	return ConversationKey{RepoURL: a.RepoURL, AgentRole: a.Role, AgentID: a.ID}
}

// RegisteredAgent is the Runtime's durable record of a live agent.
type RegisteredAgent struct {
	AgentIdentity
	CreatedAt time.Time `json:"created_at"`
}

// SpawnEdge records that Parent issued a task that created Child. Edges are
// deduplicated and self-edges are never recorded.
type SpawnEdge struct {
	Parent AgentIdentity `json:"parent"`
	Child  AgentIdentity `json:"child"`
}

// IsSelfEdge reports whether Parent and Child are the same identity.
func (e SpawnEdge) IsSelfEdge() bool {
	return e.Parent == e.Child
}

// key returns a string suitable for deduplicating edges in a set.
func (e SpawnEdge) key() string {
	return e.Parent.String() + "->" + e.Child.String()
}

// SpawnEdgeKey exposes key() for callers outside the package (e.g. the
// runtime's edge log) that need a stable dedup key without re-deriving the
// string format.
func SpawnEdgeKey(e SpawnEdge) string {
	return e.key()
}
