package toolkit

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestRunBashTool_CapturesStdout(t *testing.T) {
	dir := t.TempDir()
	tool := NewRunBashTool(FSConfig{Workspace: dir})
	params, _ := json.Marshal(RunBashParams{Command: "echo hi"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if result.Content != "hi\n" {
		t.Fatalf("content = %q, want %q", result.Content, "hi\n")
	}
}

func TestRunBashTool_NonZeroExitIsErrorResult(t *testing.T) {
	dir := t.TempDir()
	tool := NewRunBashTool(FSConfig{Workspace: dir})
	params, _ := json.Marshal(RunBashParams{Command: "exit 3"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for a non-zero exit")
	}
}

func TestRunBashTool_RejectsEmptyCommand(t *testing.T) {
	dir := t.TempDir()
	tool := NewRunBashTool(FSConfig{Workspace: dir})
	params, _ := json.Marshal(RunBashParams{Command: "  "})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for an empty command")
	}
}

func TestRunBashTool_TimesOut(t *testing.T) {
	dir := t.TempDir()
	tool := &RunBashTool{resolver: Resolver{Root: dir}, maxOutput: 64000, maxTimeout: 30 * time.Millisecond}
	params, _ := json.Marshal(RunBashParams{Command: "sleep 5"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for a timed-out command")
	}
}
