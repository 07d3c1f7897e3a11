package toolkit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
)

// FSConfig controls the filesystem tools' workspace containment and read
// cap.
type FSConfig struct {
	Workspace    string
	MaxReadBytes int
}

// ReadFileParams is read_file's parameter shape.
type ReadFileParams struct {
	Path   string `json:"path" jsonschema:"required,description=Path to the file (relative to workspace)."`
	Offset int    `json:"offset,omitempty" jsonschema:"minimum=0,description=Byte offset to start reading from (default 0)."`
	Limit  int    `json:"limit,omitempty" jsonschema:"minimum=0,description=Maximum bytes to read (default: tool's configured cap)."`
}

// ReadFileTool reads a file scoped to a workspace root.
type ReadFileTool struct {
	resolver Resolver
	maxRead  int
}

// NewReadFileTool returns a ready ReadFileTool.
func NewReadFileTool(cfg FSConfig) *ReadFileTool {
	limit := cfg.MaxReadBytes
	if limit <= 0 {
		limit = 200000
	}
	return &ReadFileTool{resolver: Resolver{Root: cfg.Workspace}, maxRead: limit}
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read a file from the workspace." }
func (t *ReadFileTool) Schema() json.RawMessage {
	return DeriveSchema(&ReadFileParams{})
}

func (t *ReadFileTool) Execute(_ context.Context, params json.RawMessage) (Result, error) {
	var p ReadFileParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult("invalid parameters: %v", err), nil
	}

	resolved, err := t.resolver.Resolve(p.Path)
	if err != nil {
		return errorResult("%v", err), nil
	}

	f, err := os.Open(resolved)
	if err != nil {
		return errorResult("open %s: %v", p.Path, err), nil
	}
	defer f.Close()

	if p.Offset > 0 {
		if _, err := f.Seek(int64(p.Offset), io.SeekStart); err != nil {
			return errorResult("seek %s: %v", p.Path, err), nil
		}
	}

	limit := t.maxRead
	if p.Limit > 0 && p.Limit < limit {
		limit = p.Limit
	}
	data, err := io.ReadAll(io.LimitReader(f, int64(limit)))
	if err != nil {
		return errorResult("read %s: %v", p.Path, err), nil
	}
	return Result{Content: string(data)}, nil
}

// WriteFileParams is write_file's parameter shape.
type WriteFileParams struct {
	Path    string `json:"path" jsonschema:"required,description=Path to write (relative to workspace)."`
	Content string `json:"content" jsonschema:"required,description=File contents to write."`
	Append  bool   `json:"append,omitempty" jsonschema:"description=Append instead of overwrite."`
}

// WriteFileTool writes a file scoped to a workspace root. Its
// PreservationPolicy is "one-of" and ToolType "mutating" in the global
// catalog: repeated identical writes to the same path should dedup, and it
// always counts as an intervening mutator for other files' dedup checks.
type WriteFileTool struct {
	resolver Resolver
}

// NewWriteFileTool returns a ready WriteFileTool.
func NewWriteFileTool(cfg FSConfig) *WriteFileTool {
	return &WriteFileTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write content to a file in the workspace, overwriting by default."
}
func (t *WriteFileTool) Schema() json.RawMessage {
	return DeriveSchema(&WriteFileParams{})
}

func (t *WriteFileTool) Execute(_ context.Context, params json.RawMessage) (Result, error) {
	var p WriteFileParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(p.Path) == "" {
		return errorResult("path is required"), nil
	}

	resolved, err := t.resolver.Resolve(p.Path)
	if err != nil {
		return errorResult("%v", err), nil
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if p.Append {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return errorResult("open %s: %v", p.Path, err), nil
	}
	defer f.Close()

	if _, err := f.WriteString(p.Content); err != nil {
		return errorResult("write %s: %v", p.Path, err), nil
	}
	return Result{Content: "wrote " + p.Path}, nil
}
