package pipeline

import (
	"github.com/sashabaranov/go-openai/jsonschema"

	"ai-web-studio/internal/models"
)

func sectionTypeEnum() []string {
	out := make([]string, 0, len(models.SectionTypes))
	for _, t := range models.SectionTypes {
		out = append(out, string(t))
	}
	return out
}

// StructureSchema describes the structure stage output.
var StructureSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"name":            {Type: jsonschema.String, Description: "Site name"},
		"description":     {Type: jsonschema.String, Description: "One or two sentence summary"},
		"target_audience": {Type: jsonschema.String},
		"sections": {
			Type: jsonschema.Array,
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"type":        {Type: jsonschema.String, Enum: sectionTypeEnum()},
					"title":       {Type: jsonschema.String},
					"description": {Type: jsonschema.String},
					"order":       {Type: jsonschema.Integer, Description: "Unique display position, ascending"},
				},
				Required: []string{"type", "title", "order"},
			},
		},
		"features": {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}},
	},
	Required: []string{"name", "description", "target_audience", "sections", "features"},
}
