package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/kaiwa/internal/config"
)

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func TestDiff(t *testing.T) {
	base := mustLoad(t, minimalYAML)

	tests := []struct {
		name        string
		mutate      func(c *config.Config)
		wantVAD     bool
		wantLog     bool
		wantRestart []string
	}{
		{name: "identical", mutate: func(*config.Config) {}},
		{name: "silence threshold", mutate: func(c *config.Config) { c.VAD.SilenceThreshold = 10 }, wantVAD: true},
		{name: "min frames", mutate: func(c *config.Config) { c.VAD.MinFramesThreshold = 5 }, wantVAD: true},
		{name: "noise log", mutate: func(c *config.Config) { c.VAD.NoiseLogLevel = config.NoiseLogInfo }, wantVAD: true},
		{name: "log level", mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug }, wantLog: true},
		{name: "engine", mutate: func(c *config.Config) { c.VAD.Engine = "energy" }, wantRestart: []string{"vad"}},
		{name: "aggressiveness", mutate: func(c *config.Config) { n := 1; c.VAD.Aggressiveness = &n }, wantRestart: []string{"vad"}},
		{name: "llm model", mutate: func(c *config.Config) { c.Providers.LLM.Model = "qwen3" }, wantRestart: []string{"providers"}},
		{name: "persona", mutate: func(c *config.Config) { c.Persona = "ずんだもん" }, wantRestart: []string{"persona"}},
		{name: "diagnostics addr", mutate: func(c *config.Config) { c.Server.DiagnosticsAddr = ":9090" }, wantRestart: []string{"server"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next := mustLoad(t, minimalYAML)
			tc.mutate(next)
			d := config.Diff(base, next)

			if d.VADChanged != tc.wantVAD {
				t.Errorf("VADChanged = %v, want %v", d.VADChanged, tc.wantVAD)
			}
			if d.LogLevelChanged != tc.wantLog {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tc.wantLog)
			}
			if !slices.Equal(d.RestartRequired, tc.wantRestart) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tc.wantRestart)
			}
			empty := !tc.wantVAD && !tc.wantLog && len(tc.wantRestart) == 0
			if d.Empty() != empty {
				t.Errorf("Empty() = %v, want %v", d.Empty(), empty)
			}
			if tc.wantVAD && d.NewVAD.SilenceThreshold != next.VAD.SilenceThreshold {
				t.Errorf("NewVAD = %+v", d.NewVAD)
			}
		})
	}
}
