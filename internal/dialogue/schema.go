package dialogue

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// SchemaName is the name the reply schema is registered under with engines
// that require one (OpenAI-style json_schema response formats).
const SchemaName = "dialogue_reply"

// BuildSchema returns the reply schema {content: string, tone: enum(styles)}.
// The tone enum lists style names in catalogue order.
func BuildSchema(styles []types.VoiceStyle) *jsonschema.Schema {
	tones := make([]any, len(styles))
	for i, s := range styles {
		tones[i] = s.Name
	}
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"content": {Type: "string", Description: "The text to speak."},
			"tone":    {Type: "string", Description: "The voice style to speak the content in.", Enum: tones},
		},
		Required:             []string{"content", "tone"},
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
}

// LoadSchema reads a JSON schema document from path. A missing or invalid file
// is a configuration error.
func LoadSchema(path string) (*jsonschema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.Configuration("dialogue schema", err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errdefs.Configuration("dialogue schema", fmt.Errorf("parse %s: %w", path, err))
	}
	return &s, nil
}

// schemaMap converts s into the generic form carried by llm.ResponseSchema.
func schemaMap(s *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("dialogue: marshal schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("dialogue: convert schema: %w", err)
	}
	return m, nil
}

// shapeSchema resolves a copy of s that checks the reply's shape only: the
// tone property loses its enum and const and is no longer required. Unknown
// tones are resolved to a style by the synthesis stage.
func shapeSchema(s *jsonschema.Schema) (*jsonschema.Resolved, error) {
	m, err := schemaMap(s)
	if err != nil {
		return nil, err
	}
	if props, ok := m["properties"].(map[string]any); ok {
		if tone, ok := props["tone"].(map[string]any); ok {
			delete(tone, "enum")
			delete(tone, "const")
		}
	}
	if req, ok := m["required"].([]any); ok {
		kept := make([]any, 0, len(req))
		for _, name := range req {
			if name != "tone" {
				kept = append(kept, name)
			}
		}
		m["required"] = kept
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("dialogue: marshal reply shape: %w", err)
	}
	var shape jsonschema.Schema
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("dialogue: convert reply shape: %w", err)
	}
	return shape.Resolve(nil)
}
