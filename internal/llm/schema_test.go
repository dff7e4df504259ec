package llm

import (
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai/jsonschema"
)

func TestValidate(t *testing.T) {
	def := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"kind":  {Type: jsonschema.String, Enum: []string{"a", "b"}},
			"order": {Type: jsonschema.Integer},
			"tags":  {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}},
			"ok":    {Type: jsonschema.Boolean},
			"note":  {Type: jsonschema.String},
		},
		Required: []string{"kind", "order"},
	}
	cases := []struct {
		name string
		in   any
		path string
	}{
		{"valid", map[string]any{"kind": "a", "order": float64(1), "tags": []any{"x"}, "ok": true}, ""},
		{"optional null", map[string]any{"kind": "a", "order": float64(1), "note": nil}, ""},
		{"not object", []any{}, "$"},
		{"missing required", map[string]any{"kind": "a"}, "$.order"},
		{"null required", map[string]any{"kind": nil, "order": float64(1)}, "$.kind"},
		{"enum", map[string]any{"kind": "c", "order": float64(1)}, "$.kind"},
		{"fractional integer", map[string]any{"kind": "a", "order": 1.5}, "$.order"},
		{"array item", map[string]any{"kind": "a", "order": float64(1), "tags": []any{"x", float64(2)}}, "$.tags[1]"},
		{"boolean", map[string]any{"kind": "a", "order": float64(1), "ok": "yes"}, "$.ok"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(def, tc.in)
			if tc.path == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("expected SchemaError got %v", err)
			}
			if se.Path != tc.path {
				t.Fatalf("path = %q, want %q", se.Path, tc.path)
			}
		})
	}
}
