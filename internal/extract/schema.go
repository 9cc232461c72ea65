package extract

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	schemaOnce sync.Once
	schemaMap  map[string]any
	schemaErr  error
)

// Schema returns the JSON schema of Record as a generic map, suitable for
// structured-output parameters of generation backends. Every object in the
// schema is closed and lists all of its properties as required.
func Schema() (map[string]any, error) {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties:  false,
			DoNotReference:             true,
			RequiredFromJSONSchemaTags: true,
		}
		s := reflector.Reflect(&Record{})
		b, err := s.MarshalJSON()
		if err != nil {
			schemaErr = err
			return
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			schemaErr = err
			return
		}
		delete(m, "$schema")
		delete(m, "$id")
		closeObjects(m)
		schemaMap = m
	})
	if schemaErr != nil {
		return nil, schemaErr
	}
	return copyMap(schemaMap), nil
}

func closeObjects(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			sort.Strings(required)
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				closeObjects(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		closeObjects(items)
	}
}

func copyMap(m map[string]any) map[string]any {
	b, _ := json.Marshal(m)
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return out
}
