package tooldef

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// CompileSchema checks that the definition's declared input schema is a
// valid JSON Schema document. Definitions without a schema pass trivially.
func CompileSchema(d *ToolDefinition) error {
	if d.Schema == nil {
		return nil
	}
	_, err := compile(d.Schema)
	if err != nil {
		return fmt.Errorf("CompileSchema: tool %s: %w", d.ID, err)
	}
	return nil
}

// ValidateArguments validates a JSON-encoded argument object against the
// definition's input schema. Definitions without a schema accept anything.
func ValidateArguments(d *ToolDefinition, argsJSON string) error {
	if d.Schema == nil {
		return nil
	}
	sch, err := compile(d.Schema)
	if err != nil {
		return fmt.Errorf("ValidateArguments: tool %s: %w", d.ID, err)
	}

	var args any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return fmt.Errorf("ValidateArguments: tool %s: arguments are not valid JSON: %w", d.ID, err)
	}
	if err := sch.Validate(args); err != nil {
		return fmt.Errorf("ValidateArguments: tool %s: %w", d.ID, err)
	}
	return nil
}

// compile round-trips the decoded schema through JSON so the compiler sees
// the exact document shape it expects.
func compile(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}
