package toolkit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteThenReadFileTool_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeTool := NewWriteFileTool(FSConfig{Workspace: dir})
	readTool := NewReadFileTool(FSConfig{Workspace: dir})

	params, _ := json.Marshal(WriteFileParams{Path: "notes.txt", Content: "first line\n"})
	result, err := writeTool.Execute(context.Background(), params)
	if err != nil || result.IsError {
		t.Fatalf("write failed: err=%v result=%+v", err, result)
	}

	readParams, _ := json.Marshal(ReadFileParams{Path: "notes.txt"})
	readResult, err := readTool.Execute(context.Background(), readParams)
	if err != nil || readResult.IsError {
		t.Fatalf("read failed: err=%v result=%+v", err, readResult)
	}
	if readResult.Content != "first line\n" {
		t.Fatalf("content = %q, want %q", readResult.Content, "first line\n")
	}
}

func TestWriteFileTool_AppendsWhenRequested(t *testing.T) {
	dir := t.TempDir()
	writeTool := NewWriteFileTool(FSConfig{Workspace: dir})

	first, _ := json.Marshal(WriteFileParams{Path: "log.txt", Content: "a\n"})
	if _, err := writeTool.Execute(context.Background(), first); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	second, _ := json.Marshal(WriteFileParams{Path: "log.txt", Content: "b\n", Append: true})
	if _, err := writeTool.Execute(context.Background(), second); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "log.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "a\nb\n" {
		t.Fatalf("content = %q, want %q", string(data), "a\nb\n")
	}
}

func TestReadFileTool_RejectsPathEscapingWorkspace(t *testing.T) {
	dir := t.TempDir()
	readTool := NewReadFileTool(FSConfig{Workspace: dir})
	params, _ := json.Marshal(ReadFileParams{Path: "../../etc/passwd"})
	result, err := readTool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for a path escaping the workspace")
	}
}

func TestReadFileTool_RespectsOffsetAndLimit(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "data.bin"), []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	readTool := NewReadFileTool(FSConfig{Workspace: dir})
	params, _ := json.Marshal(ReadFileParams{Path: "data.bin", Offset: 2, Limit: 3})
	result, err := readTool.Execute(context.Background(), params)
	if err != nil || result.IsError {
		t.Fatalf("read failed: err=%v result=%+v", err, result)
	}
	if result.Content != "234" {
		t.Fatalf("content = %q, want %q", result.Content, "234")
	}
}

func TestWriteFileTool_RejectsEmptyPath(t *testing.T) {
	dir := t.TempDir()
	writeTool := NewWriteFileTool(FSConfig{Workspace: dir})
	params, _ := json.Marshal(WriteFileParams{Path: "  ", Content: "x"})
	result, err := writeTool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for an empty path")
	}
}
