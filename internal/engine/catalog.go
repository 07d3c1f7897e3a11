package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/swarmrun/swarmrun/internal/modelclient"
	"github.com/swarmrun/swarmrun/internal/models"
	"github.com/swarmrun/swarmrun/internal/policy"
)

// ToolDescriptor is the global registry's view of one tool: enough to
// project model-facing metadata and to classify a prospective call for
// duplicate detection.
type ToolDescriptor struct {
	Name               string
	Description        string
	Parameters         json.RawMessage
	PreservationPolicy models.PreservationPolicy
	ToolType           string

	// MetadataFilter, when set, runs after a successful invocation and
	// returns fields to merge into the conversation's metadata blob (e.g.
	// extracting an issue title from a fetch-issues response).
	MetadataFilter func(response json.RawMessage) map[string]any
}

// ToolCatalog is the global tool registry: every known tool plus the
// allow/deny policy for each agent role.
type ToolCatalog struct {
	Tools    map[string]ToolDescriptor
	Policies map[string]*policy.Policy

	schemasMu sync.Mutex
	schemas   map[string]*jsonschema.Schema
}

// NewToolCatalog returns an empty catalog ready for registration.
func NewToolCatalog() *ToolCatalog {
	return &ToolCatalog{
		Tools:    make(map[string]ToolDescriptor),
		Policies: make(map[string]*policy.Policy),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// Register adds or replaces a tool descriptor.
func (c *ToolCatalog) Register(d ToolDescriptor) {
	c.Tools[policy.NormalizeTool(d.Name)] = d
}

// SetPolicy assigns the allow/deny policy for a role.
func (c *ToolCatalog) SetPolicy(role string, p *policy.Policy) {
	c.Policies[role] = p
}

// MetadataFor projects the catalog, filtered to role's allowed set, to the
// {name, description, parameter-schema} shape the model client sends on
// every completion request. Order follows map iteration and is not
// guaranteed stable across calls.
func (c *ToolCatalog) MetadataFor(resolver *policy.Resolver, role string) []modelclient.ToolMetadata {
	p := c.Policies[role]
	var out []modelclient.ToolMetadata
	for name, d := range c.Tools {
		if !resolver.IsAllowed(p, name) {
			continue
		}
		out = append(out, modelclient.ToolMetadata{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return out
}

// Get returns the descriptor for a tool name, normalised.
func (c *ToolCatalog) Get(name string) (ToolDescriptor, bool) {
	d, ok := c.Tools[policy.NormalizeTool(name)]
	return d, ok
}

// ValidateArgs checks args against the tool's registered parameter schema,
// compiling and caching the schema on first use. A tool with no parameter
// schema registered is not validated. Called before dispatch so a malformed
// call never reaches the bus.
func (c *ToolCatalog) ValidateArgs(name string, args json.RawMessage) error {
	normalized := policy.NormalizeTool(name)
	descriptor, ok := c.Tools[normalized]
	if !ok || len(descriptor.Parameters) == 0 {
		return nil
	}

	schema, err := c.compiledSchema(normalized, descriptor.Parameters)
	if err != nil {
		return fmt.Errorf("engine: compile schema for %s: %w", name, err)
	}

	var doc any
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, &doc); err != nil {
		return fmt.Errorf("engine: input_args for %s is not valid json: %w", name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("engine: input_args for %s failed schema validation: %w", name, err)
	}
	return nil
}

func (c *ToolCatalog) compiledSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	c.schemasMu.Lock()
	defer c.schemasMu.Unlock()

	if schema, ok := c.schemas[name]; ok {
		return schema, nil
	}

	url := "mem://tools/" + name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	c.schemas[name] = schema
	return schema, nil
}
