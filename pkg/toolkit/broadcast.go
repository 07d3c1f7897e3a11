package toolkit

import (
	"context"
	"encoding/json"

	"github.com/swarmrun/swarmrun/internal/runtime"
)

// BroadcastParams is the input contract for broadcast.
type BroadcastParams struct {
	RepoURL string   `json:"repo_url" jsonschema:"required,description=Repository URL scoping which running agents receive the broadcast."`
	Roles   []string `json:"roles,omitempty" jsonschema:"description=Agent roles to target. Empty or omitted targets every running agent in repo_url."`
	Content []string `json:"content" jsonschema:"required,description=One or more strings appended as a single user turn to each targeted agent."`
}

// BroadcastTool bridges the Agent Runtime's content broadcast into the Tool
// Dispatch Bus, the same indirection AgentTaskTool uses for run_agent_task.
type BroadcastTool struct {
	rt       *runtime.Runtime
	appendFn runtime.AppendFunc
}

// NewBroadcastTool returns a tool that fans content out to repoURL's running
// agents via rt, persisting each recipient's new turn through appendFn.
func NewBroadcastTool(rt *runtime.Runtime, appendFn runtime.AppendFunc) *BroadcastTool {
	return &BroadcastTool{rt: rt, appendFn: appendFn}
}

func (t *BroadcastTool) Name() string { return "broadcast" }
func (t *BroadcastTool) Description() string {
	return "Append content as a user turn to every running agent matching a role-set within a repo."
}
func (t *BroadcastTool) Schema() json.RawMessage { return DeriveSchema(&BroadcastParams{}) }

func (t *BroadcastTool) Execute(ctx context.Context, params json.RawMessage) (Result, error) {
	var p BroadcastParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult("invalid parameters: %v", err), nil
	}
	if len(p.Content) == 0 {
		return errorResult("content is required"), nil
	}

	result := t.rt.BroadcastMessage(ctx, p.Roles, p.RepoURL, p.Content, t.appendFn)
	payload, err := json.Marshal(result)
	if err != nil {
		return errorResult("marshal result: %v", err), nil
	}
	return Result{Content: string(payload)}, nil
}
