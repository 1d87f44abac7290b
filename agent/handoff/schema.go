package handoff

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	contractx "github.com/haasonsaas/adept/agent/contract"
)

// The structural gate re-checks what the line scanner already enforced:
// enum membership for status, list types for the six sections, string types
// for the scalars. Any violation is a parse error even when field presence
// was satisfied.
const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["status", "plan", "actions", "data", "errors", "verification", "missing"],
  "properties": {
    "status": {"enum": ["done", "needs_info", "blocked", "planning"]},
    "plan": {"type": "array", "items": {"type": "string"}},
    "actions": {"type": "array", "items": {"type": "string"}},
    "data": {"type": "array", "items": {"type": "string"}},
    "errors": {"type": "array", "items": {"type": "string"}},
    "verification": {"type": "array", "items": {"type": "string"}},
    "missing": {"type": "array", "items": {"type": "string"}},
    "follow_up": {"type": "string"},
    "draft": {"type": "string"}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("unmarshal handoff schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("handoff.json", doc); err != nil {
			schemaErr = fmt.Errorf("add handoff schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("handoff.json")
	})
	return schema, schemaErr
}

func validateSchema(h contractx.Handoff) []string {
	sch, err := compiledSchema()
	if err != nil {
		return []string{err.Error()}
	}

	payload, err := json.Marshal(h)
	if err != nil {
		return []string{fmt.Sprintf("marshal handoff for validation: %v", err)}
	}
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return []string{fmt.Sprintf("decode handoff for validation: %v", err)}
	}

	if err := sch.Validate(value); err != nil {
		return []string{fmt.Sprintf("handoff schema violation: %v", err)}
	}
	return nil
}
