package toolkit

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// reflector derives parameter schemas from Go structs rather than the
// teacher's hand-built map literals: one source of truth for a tool's
// shape and its validation schema.
var reflector = &jsonschema.Reflector{
	DoNotReference:            true,
	ExpandedStruct:            true,
	AllowAdditionalProperties: false,
}

// DeriveSchema reflects v's struct tags into a JSON Schema document. v
// should be a zero-value pointer to the tool's parameter struct.
func DeriveSchema(v any) json.RawMessage {
	schema := reflector.Reflect(v)
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}
