package toolkit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/swarmrun/swarmrun/internal/models"
)

func TestRegistry_HandlerDispatchesToRegisteredTool(t *testing.T) {
	r := NewRegistry()
	r.Register(NewEchoTool())
	handler := r.Handler()

	resp := handler(context.Background(), models.ExecRequest{
		ToolName:  "echo",
		InputArgs: json.RawMessage(`{"text":"ping"}`),
	})
	if resp.Status != models.ExecStatusOK {
		t.Fatalf("status = %q, want ok: %+v", resp.Status, resp)
	}
	var result Result
	if err := json.Unmarshal(resp.Response, &result); err != nil {
		t.Fatalf("response not valid Result JSON: %v", err)
	}
	if result.Content != "ping" {
		t.Fatalf("content = %q, want %q", result.Content, "ping")
	}
}

func TestRegistry_HandlerUnknownToolIsNotFound(t *testing.T) {
	r := NewRegistry()
	handler := r.Handler()

	resp := handler(context.Background(), models.ExecRequest{ToolName: "missing"})
	if resp.Status != models.ExecStatusError || resp.Error == nil || resp.Error.Code != models.ErrCodeToolNotFound {
		t.Fatalf("got %+v, want TOOL_NOT_FOUND error", resp)
	}
}

func TestRegistry_HandlerToolErrorResultIsFailure(t *testing.T) {
	r := NewRegistry()
	r.Register(NewReadFileTool(FSConfig{Workspace: t.TempDir()}))
	handler := r.Handler()

	params, _ := json.Marshal(ReadFileParams{Path: "does-not-exist.txt"})
	resp := handler(context.Background(), models.ExecRequest{ToolName: "read_file", InputArgs: params})
	if resp.Status != models.ExecStatusFailure {
		t.Fatalf("status = %q, want failure: %+v", resp.Status, resp)
	}
}

func TestRegistry_AllReturnsEveryRegisteredTool(t *testing.T) {
	r := NewRegistry()
	r.Register(NewEchoTool())
	r.Register(NewReadFileTool(FSConfig{Workspace: t.TempDir()}))
	if len(r.All()) != 2 {
		t.Fatalf("len(All()) = %d, want 2", len(r.All()))
	}
}
