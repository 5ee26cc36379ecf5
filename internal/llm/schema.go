package llm

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema reflects a Go type into a JSON schema suitable for
// strict structured output. OpenAI's strict mode additionally requires
// additionalProperties=false and an explicit required list on every object,
// which the reflector does not emit on its own.
func GenerateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)

	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	ensureStrictCompliance(m)
	return m
}

func ensureStrictCompliance(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if properties, ok := schema["properties"].(map[string]any); ok {
			var required []string
			for name := range properties {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if properties, ok := schema["properties"].(map[string]any); ok {
		for _, prop := range properties {
			if m, ok := prop.(map[string]any); ok {
				ensureStrictCompliance(m)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		ensureStrictCompliance(items)
	}
}
