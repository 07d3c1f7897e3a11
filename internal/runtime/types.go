// Package runtime implements the Agent Runtime: live agents as first-class
// entities in the process, a bounded worker pool that drives spawned tasks,
// and the spawn graph recording which agent created which.
package runtime

import "time"

// Status is an agent's lifecycle state as tracked by the Runtime.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
)

// Identity is the (role, id) pair that names one agent, independent of
// which conversation repo it operates against.
type Identity struct {
	Role string
	ID   string
}

func (i Identity) key() string { return i.Role + "|" + i.ID }

// Record is the Runtime's in-memory view of one registered agent.
type Record struct {
	Identity
	RepoURL    string
	Status     Status
	CreatedAt  time.Time
	lastActive time.Time
}

// SpawnEdge is one recorded ((parent_role, parent_id) -> (child_role,
// child_id)) edge. Self-edges are never recorded.
type SpawnEdge struct {
	Parent Identity
	Child  Identity
}

// TaskResult is what RunAgentTask returns once its future resolves.
type TaskResult struct {
	Output string
	Err    error
}
