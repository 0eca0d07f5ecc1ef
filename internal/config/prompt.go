package config

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/MrWong99/kaiwa/pkg/errdefs"
)

// PromptData is the data available to the system prompt template.
type PromptData struct {
	// Persona is the configured persona name.
	Persona string

	// ToneList holds the voice style names in catalogue order.
	ToneList []string
}

// Tones returns the style names joined with ", " for inline use as
// {{.Tones}}.
func (d PromptData) Tones() string { return strings.Join(d.ToneList, ", ") }

// RenderPrompt executes tmpl with data. A template that does not parse or
// references unknown fields is a configuration error.
func RenderPrompt(tmpl string, data PromptData) (string, error) {
	t, err := template.New("system_prompt").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", errdefs.Configuration("system prompt", err)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", errdefs.Configuration("system prompt", err)
	}
	return b.String(), nil
}

// SystemPromptTemplate returns the configured prompt template, reading
// SystemPromptPath when set.
func (d DialogueConfig) SystemPromptTemplate() (string, error) {
	if d.SystemPromptPath == "" {
		return d.SystemPrompt, nil
	}
	data, err := os.ReadFile(d.SystemPromptPath)
	if err != nil {
		return "", errdefs.Configuration("system prompt", fmt.Errorf("read %q: %w", d.SystemPromptPath, err))
	}
	return string(data), nil
}
