package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/kaiwa/internal/config"
	"github.com/MrWong99/kaiwa/pkg/errdefs"
)

func TestRenderPrompt(t *testing.T) {
	data := config.PromptData{Persona: "四国めたん", ToneList: []string{"普通", "あまあま"}}
	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{name: "plain", tmpl: "こんにちは", want: "こんにちは"},
		{name: "persona", tmpl: "あなたは{{.Persona}}です。", want: "あなたは四国めたんです。"},
		{name: "joined tones", tmpl: "tone: {{.Tones}}", want: "tone: 普通, あまあま"},
		{name: "range tones", tmpl: "{{range .ToneList}}[{{.}}]{{end}}", want: "[普通][あまあま]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := config.RenderPrompt(tc.tmpl, data)
			if err != nil {
				t.Fatalf("RenderPrompt: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRenderPrompt_Errors(t *testing.T) {
	for _, tmpl := range []string{"{{.Persona", "{{.Unknown}}"} {
		if _, err := config.RenderPrompt(tmpl, config.PromptData{}); !errors.Is(err, errdefs.ErrConfiguration) {
			t.Errorf("RenderPrompt(%q) error = %v, want ErrConfiguration", tmpl, err)
		}
	}
}

func TestSystemPromptTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("from file"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := config.DialogueConfig{SystemPrompt: "inline", SystemPromptPath: path}.SystemPromptTemplate()
	if err != nil || got != "from file" {
		t.Errorf("with path: got %q, %v", got, err)
	}
	got, err = config.DialogueConfig{SystemPrompt: "inline"}.SystemPromptTemplate()
	if err != nil || got != "inline" {
		t.Errorf("inline: got %q, %v", got, err)
	}
	_, err = config.DialogueConfig{SystemPromptPath: path + ".missing"}.SystemPromptTemplate()
	if !errors.Is(err, errdefs.ErrConfiguration) {
		t.Errorf("missing file: error = %v, want ErrConfiguration", err)
	}
}
