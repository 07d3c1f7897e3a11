package toolkit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/swarmrun/swarmrun/internal/models"
)

// Registry is the process-local collection of built-in tools, keyed by
// name. It is the bridge between toolkit.Tool implementations and the
// dispatch bus's Handler shape.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds a tool, replacing any existing tool with the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Handler adapts the registry into a dispatch.Handler: it looks up
// req.ToolName, runs its Execute against req.InputArgs, and folds the
// result into an ExecResponse. An unknown tool name yields
// ErrCodeToolNotFound; a Go error from Execute yields a failure response
// rather than propagating, matching the dispatch bus's contract that
// Serve's handler never returns an error itself.
func (r *Registry) Handler() func(ctx context.Context, req models.ExecRequest) models.ExecResponse {
	return func(ctx context.Context, req models.ExecRequest) models.ExecResponse {
		start := time.Now()
		tool, ok := r.Get(req.ToolName)
		if !ok {
			return models.NewErrorResponse(models.ErrCodeToolNotFound, "tool not registered: "+req.ToolName, time.Since(start).Seconds())
		}

		result, err := tool.Execute(ctx, req.InputArgs)
		elapsed := time.Since(start).Seconds()
		if err != nil {
			return models.NewFailureResponse(err.Error(), elapsed)
		}
		if result.IsError {
			return models.NewFailureResponse(result.Content, elapsed)
		}

		payload, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			return models.NewFailureResponse(marshalErr.Error(), elapsed)
		}
		return models.NewOKResponse(payload, elapsed)
	}
}
