// Package policy resolves an agent role's allowed-tools set: the
// Registry Client fetches an allow/deny list per role, and the Agent
// Execution Engine filters the global tool registry through it before
// projecting tool metadata for a model call.
package policy

import "strings"

// Groups are named collections of tool names, referenced in an allow/deny
// list with a "group:" prefix.
var Groups = map[string][]string{
	"group:fs":       {"read_file", "write_file"},
	"group:exec":     {"run_bash"},
	"group:builtin":  {"echo", "read_file", "write_file", "run_bash"},
	"group:readonly": {"echo", "read_file"},
}

// Policy is one role's tool allow/deny configuration. Allow and Deny
// entries are either literal tool names, group references, or a
// wildcard-suffixed pattern ("mcp:*", "fs.*").
type Policy struct {
	Role  string
	Allow []string
	Deny  []string
}

// NormalizeTool canonicalises a tool name for comparison: trimmed and
// lowercased.
func NormalizeTool(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ExpandGroups expands every group reference in items to its constituent
// tool names, passing through plain names and patterns unchanged, and
// deduplicating the result.
func ExpandGroups(items []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range items {
		if tools, ok := Groups[item]; ok {
			for _, t := range tools {
				if !seen[t] {
					seen[t] = true
					out = append(out, t)
				}
			}
			continue
		}
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
