package runtime

import (
	"fmt"
	"strings"
)

// alias is the short node name spawn-graph emitters use for an identity:
// "{role}_{id[:8]}".
func alias(i Identity) string {
	id := i.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s", i.Role, id)
}

// MermaidGraph renders the current spawn graph as a mermaid flowchart.
func (r *Runtime) MermaidGraph() string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	for _, edge := range r.SpawnEdges() {
		fmt.Fprintf(&b, "    %s --> %s\n", alias(edge.Parent), alias(edge.Child))
	}
	return b.String()
}

// DOTGraph renders the current spawn graph in Graphviz DOT format.
func (r *Runtime) DOTGraph() string {
	var b strings.Builder
	b.WriteString("digraph spawn {\n")
	for _, edge := range r.SpawnEdges() {
		fmt.Fprintf(&b, "  %q -> %q;\n", alias(edge.Parent), alias(edge.Child))
	}
	b.WriteString("}\n")
	return b.String()
}
