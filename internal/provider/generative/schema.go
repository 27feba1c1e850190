package generative

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/aydarnuman/tender-analyzer/internal/models"
)

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// responseSchema is the shape a generative answer must have. It is lenient on
// scalars (models often quote numbers) and strict on structure: objects stay
// objects and lists stay lists of objects.
func responseSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := json.Marshal(schemaDocument())
		if err != nil {
			schemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("schema.json")
	})
	return schema, schemaErr
}

func schemaDocument() map[string]any {
	root := objectSchema()
	for _, f := range models.Fields {
		leaf := map[string]any{"type": []any{"string", "null"}}
		if f.Kind != models.KindText {
			leaf["type"] = []any{"number", "string", "null"}
		}
		placeSchema(root, f.Path, leaf)
	}
	for _, l := range models.Lists {
		placeSchema(root, l.Path, map[string]any{
			"type":  []any{"array", "null"},
			"items": map[string]any{"type": "object"},
		})
	}
	// a bare amount is accepted for the estimated cost and unpacked later
	bedel := property(root, "mali.tahmini_bedel")
	bedel["type"] = []any{"object", "number", "string", "null"}
	return root
}

func objectSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func placeSchema(root map[string]any, path string, leaf map[string]any) {
	parts := strings.Split(path, ".")
	cur := root
	for _, p := range parts[:len(parts)-1] {
		props := cur["properties"].(map[string]any)
		next, ok := props[p].(map[string]any)
		if !ok {
			next = objectSchema()
			props[p] = next
		}
		cur = next
	}
	cur["properties"].(map[string]any)[parts[len(parts)-1]] = leaf
}

func property(root map[string]any, path string) map[string]any {
	cur := root
	for _, p := range strings.Split(path, ".") {
		cur = cur["properties"].(map[string]any)[p].(map[string]any)
	}
	return cur
}

// parseResponse decodes and validates a generative answer into a JSON tree.
func parseResponse(text string) (map[string]any, error) {
	text = stripFence(text)
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	s, err := responseSchema()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(v); err != nil {
		return nil, fmt.Errorf("json does not match schema: %w", err)
	}
	return v.(map[string]any), nil
}

// stripFence removes a ```json fence some models add despite the JSON mode.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
