package toolkit

import (
	"context"
	"encoding/json"
)

// EchoParams is echo's parameter shape, reflected into its JSON Schema by
// DeriveSchema.
type EchoParams struct {
	Text string `json:"text" jsonschema:"required,description=Text to echo back verbatim."`
}

// EchoTool returns its input unchanged. It exists mainly as a liveness
// check for the dispatch bus and a minimal example for role policies that
// grant nothing else.
type EchoTool struct{}

// NewEchoTool returns a ready EchoTool.
func NewEchoTool() *EchoTool { return &EchoTool{} }

func (t *EchoTool) Name() string        { return "echo" }
func (t *EchoTool) Description() string { return "Echoes the given text back unchanged." }
func (t *EchoTool) Schema() json.RawMessage {
	return DeriveSchema(&EchoParams{})
}

func (t *EchoTool) Execute(_ context.Context, params json.RawMessage) (Result, error) {
	var p EchoParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult("invalid parameters: %v", err), nil
	}
	return Result{Content: p.Text}, nil
}
