package llm

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sashabaranov/go-openai/jsonschema"
)

var ErrSchemaMismatch = errors.New("schema mismatch")

// SchemaError locates the first value that does not match its definition.
type SchemaError struct {
	Path string
	Msg  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s at %s: %s", ErrSchemaMismatch, e.Path, e.Msg)
}

func (e *SchemaError) Unwrap() error { return ErrSchemaMismatch }

// Validate checks a decoded JSON value against def. Required properties must
// be present and non-null; optional properties may be absent or null. Unknown
// properties are ignored.
func Validate(def jsonschema.Definition, v any) error {
	return validate("$", def, v)
}

func validate(path string, def jsonschema.Definition, v any) error {
	switch def.Type {
	case jsonschema.Object:
		m, ok := v.(map[string]any)
		if !ok {
			return mismatch(path, "expected object", v)
		}
		for _, key := range def.Required {
			if val, ok := m[key]; !ok || val == nil {
				return &SchemaError{Path: path + "." + key, Msg: "required property missing"}
			}
		}
		keys := make([]string, 0, len(def.Properties))
		for k := range def.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			val, ok := m[k]
			if !ok || val == nil {
				continue
			}
			if err := validate(path+"."+k, def.Properties[k], val); err != nil {
				return err
			}
		}
	case jsonschema.Array:
		arr, ok := v.([]any)
		if !ok {
			return mismatch(path, "expected array", v)
		}
		if def.Items == nil {
			return nil
		}
		for i, item := range arr {
			if err := validate(fmt.Sprintf("%s[%d]", path, i), *def.Items, item); err != nil {
				return err
			}
		}
	case jsonschema.String:
		s, ok := v.(string)
		if !ok {
			return mismatch(path, "expected string", v)
		}
		if len(def.Enum) > 0 && !contains(def.Enum, s) {
			return &SchemaError{Path: path, Msg: fmt.Sprintf("%q is not one of %v", s, def.Enum)}
		}
	case jsonschema.Integer:
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			return mismatch(path, "expected integer", v)
		}
	case jsonschema.Number:
		if _, ok := v.(float64); !ok {
			return mismatch(path, "expected number", v)
		}
	case jsonschema.Boolean:
		if _, ok := v.(bool); !ok {
			return mismatch(path, "expected boolean", v)
		}
	}
	return nil
}

func mismatch(path, msg string, v any) error {
	return &SchemaError{Path: path, Msg: fmt.Sprintf("%s, got %T", msg, v)}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
