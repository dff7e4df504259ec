package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// jsonObject matches the widest brace-delimited span in a response.
var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// Structured is a parsed completion that conforms to the requested schema.
type Structured struct {
	Data map[string]any
	Completion
}

// CompleteStructured asks for output matching schema and parses it. The schema
// is appended to the prompt and JSON mode is requested; if the text still is
// not a JSON object, the widest {...} span is tried before giving up.
func (c *Client) CompleteStructured(ctx context.Context, prompt string, schema jsonschema.Definition, system string) (Structured, error) {
	full, err := StructuredPrompt(prompt, schema)
	if err != nil {
		return Structured{}, err
	}
	comp, err := c.Complete(ctx, full, system, true)
	if err != nil {
		return Structured{}, err
	}
	data, err := ParseStructured(comp.Text, schema)
	if err != nil {
		return Structured{}, err
	}
	return Structured{Data: data, Completion: comp}, nil
}

// StructuredPrompt appends the serialized schema and the JSON-only instruction.
func StructuredPrompt(prompt string, schema jsonschema.Definition) (string, error) {
	raw, err := json.MarshalIndent(&schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nRespond with a JSON object that follows this JSON schema:\n")
	b.Write(raw)
	b.WriteString("\n\nReturn ONLY the JSON object, with no explanations, comments or markdown.")
	return b.String(), nil
}

// ParseStructured decodes text as a JSON object and validates it against schema.
func ParseStructured(text string, schema jsonschema.Definition) (map[string]any, error) {
	data, err := decodeObject(text)
	if err != nil {
		m := jsonObject.FindString(text)
		if m == "" {
			return nil, &MalformedResponseError{Raw: text, Err: errors.New("no JSON object in response")}
		}
		data, err = decodeObject(m)
		if err != nil {
			return nil, &MalformedResponseError{Raw: text, Err: err}
		}
	}
	if err := Validate(schema, data); err != nil {
		return nil, &MalformedResponseError{Raw: text, Err: err}
	}
	return data, nil
}

func decodeObject(s string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("response is not a JSON object")
	}
	return out, nil
}

// Decode converts validated structured data into a typed value.
func Decode[T any](data map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(data)
	if err != nil {
		return out, fmt.Errorf("marshal structured data: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &MalformedResponseError{Raw: string(raw), Err: err}
	}
	return out, nil
}
