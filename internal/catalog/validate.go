package catalog

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/overseer/pkg/models"
)

var schemaCache sync.Map

// ValidateParams checks proposal parameters against the tool's parameter
// schema. Tools without a schema accept any parameters.
func ValidateParams(tool models.ToolDescriptor, params map[string]any) error {
	if len(tool.Parameters) == 0 {
		return nil
	}

	schema, err := compileSchema(tool.Parameters)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", tool.Name, err)
	}

	// jsonschema validates generic values; a nil map is an empty object.
	var doc any = map[string]any{}
	if params != nil {
		doc = normalizeForSchema(params)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("parameters for %s invalid: %w", tool.Name, err)
	}
	return nil
}

func compileSchema(raw []byte) (*jsonschema.Schema, error) {
	key := string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	compiled, err := jsonschema.CompileString("tool.parameters.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// normalizeForSchema converts Go-typed values into the shapes the schema
// validator expects (notably numeric types into float64).
func normalizeForSchema(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeForSchema(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeForSchema(item)
		}
		return out
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
