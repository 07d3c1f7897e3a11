package toolkit

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/swarmrun/swarmrun/internal/runtime"
)

// AgentTaskParams is the input contract for run_agent_task.
type AgentTaskParams struct {
	Role    string `json:"role" jsonschema:"required,description=Agent role to spawn (e.g. worker, reviewer)."`
	RepoURL string `json:"repo_url" jsonschema:"required,description=Repository URL scoping the child agent's conversation."`
	Prompt  string `json:"prompt" jsonschema:"required,description=Initial user prompt for the spawned agent."`
	ID      string `json:"id,omitempty" jsonschema:"description=Explicit agent id (default: derived from the prompt)."`
}

// rootWorker is the caller-worker key used for run_agent_task calls made
// outside of any worker-pool goroutine (a top-level conversation).
const rootWorker = "root"

// AgentTaskTool bridges the Agent Runtime's worker pool into the Tool
// Dispatch Bus, so run_agent_task dispatches and blocks like any other
// tool call.
type AgentTaskTool struct {
	pool *runtime.Pool
}

// NewAgentTaskTool returns a tool that spawns child agents through pool.
func NewAgentTaskTool(pool *runtime.Pool) *AgentTaskTool {
	return &AgentTaskTool{pool: pool}
}

func (t *AgentTaskTool) Name() string        { return "run_agent_task" }
func (t *AgentTaskTool) Description() string { return "Spawn a child agent and run it to completion." }
func (t *AgentTaskTool) Schema() json.RawMessage { return DeriveSchema(&AgentTaskParams{}) }

func (t *AgentTaskTool) Execute(ctx context.Context, params json.RawMessage) (Result, error) {
	var p AgentTaskParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(p.Role) == "" {
		return errorResult("role is required"), nil
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return errorResult("prompt is required"), nil
	}

	callerWorker, ok := runtime.WorkerIDFromContext(ctx)
	if !ok {
		callerWorker = rootWorker
	}

	result, err := t.pool.RunAgentTask(ctx, callerWorker, p.Role, p.RepoURL, p.Prompt, p.ID)
	if err != nil {
		return errorResult("%v", err), nil
	}
	return Result{Content: result.Output}, nil
}
