package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/kaiwa/internal/config"
	"github.com/MrWong99/kaiwa/pkg/errdefs"
)

const minimalYAML = `
providers:
  llm:
    model: gemma3
`

const fullYAML = `
server:
  log_level: debug
  diagnostics_addr: 127.0.0.1:9090
  shutdown_timeout: 5s
audio:
  input_device: "2"
  sample_rate: 16000
  frame_ms: 20
  playback_sample_rate: 48000
  trailing_silence: 300ms
vad:
  engine: energy
  aggressiveness: 0
  silence_threshold: 15
  min_frames_threshold: 10
  max_frames: 500
  noise_log_level: debug
providers:
  stt:
    name: remote
    base_url: http://stt.local:8000
    options:
      language: ja
      beam_size: 5
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  tts:
    name: voicevox
    base_url: http://127.0.0.1:50021
dialogue:
  system_prompt: "You are {{.Persona}}."
  temperature: 0.8
  empty_transcripts: forward
resilience:
  max_failures: 3
  reset_timeout: 1m
persona: 四国めたん
`

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	checks := []struct {
		name      string
		got, want any
	}{
		{"log_level", cfg.Server.LogLevel, config.LogInfo},
		{"shutdown_timeout", cfg.Server.ShutdownTimeout, config.DefaultShutdownTimeout},
		{"capture", cfg.Audio.Capture, "malgo"},
		{"playback", cfg.Audio.Playback, "oto"},
		{"sample_rate", cfg.Audio.SampleRate, 16000},
		{"frame_ms", cfg.Audio.FrameMs, 30},
		{"frame_samples", cfg.Audio.FrameSamples(), 480},
		{"playback_sample_rate", cfg.Audio.PlaybackSampleRate, 24000},
		{"trailing_silence", cfg.Audio.TrailingSilence, 200 * time.Millisecond},
		{"vad.engine", cfg.VAD.Engine, "webrtc"},
		{"vad.aggressiveness", *cfg.VAD.Aggressiveness, 3},
		{"vad.silence_threshold", cfg.VAD.SilenceThreshold, 20},
		{"vad.min_frames_threshold", cfg.VAD.MinFramesThreshold, 20},
		{"vad.max_frames", cfg.VAD.MaxFrames, 0},
		{"vad.noise_log_level", cfg.VAD.NoiseLogLevel, config.NoiseLogOff},
		{"stt", cfg.Providers.STT.Name, "whisper-native"},
		{"llm", cfg.Providers.LLM.Name, "ollama"},
		{"llm.base_url", cfg.Providers.LLM.BaseURL, config.DefaultOllamaHost},
		{"tts", cfg.Providers.TTS.Name, "voicevox"},
		{"empty_transcripts", cfg.Dialogue.EmptyTranscripts, config.EmptyDrop},
		{"max_failures", cfg.Resilience.MaxFailures, 5},
		{"reset_timeout", cfg.Resilience.ResetTimeout, 30 * time.Second},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadFromReader_Full(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("shutdown_timeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Audio.FrameSamples() != 320 {
		t.Errorf("frame samples = %d, want 320", cfg.Audio.FrameSamples())
	}
	if *cfg.VAD.Aggressiveness != 0 {
		t.Errorf("explicit aggressiveness 0 replaced by %d", *cfg.VAD.Aggressiveness)
	}
	if got := cfg.Providers.STT.OptString("language"); got != "ja" {
		t.Errorf("stt language = %q", got)
	}
	if got := cfg.Providers.STT.OptInt("beam_size"); got != 5 {
		t.Errorf("stt beam_size = %d", got)
	}
	if cfg.Providers.LLM.BaseURL != "" {
		t.Errorf("non-ollama llm picked up base_url %q", cfg.Providers.LLM.BaseURL)
	}
	if cfg.Persona != "四国めたん" {
		t.Errorf("persona = %q", cfg.Persona)
	}
	if cfg.Dialogue.EmptyTranscripts != config.EmptyForward {
		t.Errorf("empty_transcripts = %q", cfg.Dialogue.EmptyTranscripts)
	}
}

func TestLoadFromReader_OllamaHostEnv(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{env: "127.0.0.1:11435", want: "http://127.0.0.1:11435"},
		{env: "https://ollama.example.com", want: "https://ollama.example.com"},
	}
	for _, tc := range tests {
		t.Run(tc.env, func(t *testing.T) {
			t.Setenv("OLLAMA_HOST", tc.env)
			cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
			if err != nil {
				t.Fatalf("LoadFromReader: %v", err)
			}
			if cfg.Providers.LLM.BaseURL != tc.want {
				t.Errorf("base_url = %q, want %q", cfg.Providers.LLM.BaseURL, tc.want)
			}
		})
	}

	t.Run("explicit base_url wins", func(t *testing.T) {
		t.Setenv("OLLAMA_HOST", "10.0.0.1:11434")
		cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML + "    base_url: http://gpu:11434\n"))
		if err != nil {
			t.Fatalf("LoadFromReader: %v", err)
		}
		if cfg.Providers.LLM.BaseURL != "http://gpu:11434" {
			t.Errorf("base_url = %q", cfg.Providers.LLM.BaseURL)
		}
	})
}

func TestLoadFromReader_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{name: "unknown key", yaml: minimalYAML + "bogus: 1\n", wantMsg: "bogus"},
		{name: "missing model", yaml: "server:\n  log_level: info\n", wantMsg: "providers.llm.model"},
		{name: "log level", yaml: minimalYAML + "server:\n  log_level: loud\n", wantMsg: "server.log_level"},
		{name: "frame ms", yaml: minimalYAML + "audio:\n  frame_ms: 25\n", wantMsg: "audio.frame_ms"},
		{name: "fractional frame", yaml: minimalYAML + "audio:\n  sample_rate: 11025\n  frame_ms: 10\n", wantMsg: "whole samples"},
		{name: "aggressiveness", yaml: minimalYAML + "vad:\n  aggressiveness: 4\n", wantMsg: "vad.aggressiveness"},
		{name: "negative silence", yaml: minimalYAML + "vad:\n  silence_threshold: -1\n", wantMsg: "vad.silence_threshold"},
		{name: "max below min", yaml: minimalYAML + "vad:\n  max_frames: 10\n", wantMsg: "vad.max_frames"},
		{name: "noise log", yaml: minimalYAML + "vad:\n  noise_log_level: trace\n", wantMsg: "vad.noise_log_level"},
		{name: "empty policy", yaml: minimalYAML + "dialogue:\n  empty_transcripts: keep\n", wantMsg: "dialogue.empty_transcripts"},
		{name: "temperature", yaml: minimalYAML + "dialogue:\n  temperature: 3\n", wantMsg: "dialogue.temperature"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, errdefs.ErrConfiguration) {
				t.Errorf("error %v is not a configuration error", err)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}

func TestValidate_JoinsAllFailures(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  log_level: loud
audio:
  frame_ms: 25
`))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "audio.frame_ms", "providers.llm.model"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/kaiwa.yaml")
	if !errors.Is(err, errdefs.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
}

func TestProviderEntry_Options(t *testing.T) {
	e := config.ProviderEntry{Options: map[string]any{
		"s": "x", "i": 3, "f": 2.0, "wrong": true,
	}}
	if e.OptString("s") != "x" || e.OptString("i") != "" || e.OptString("missing") != "" {
		t.Error("OptString mismatch")
	}
	if e.OptInt("i") != 3 || e.OptInt("f") != 2 || e.OptInt("wrong") != 0 || e.OptInt("s") != 0 {
		t.Error("OptInt mismatch")
	}
	var empty config.ProviderEntry
	if empty.OptString("s") != "" || empty.OptInt("i") != 0 {
		t.Error("nil Options should yield zero values")
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := config.Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Persona != "四国めたん" || cfg.Providers.TTS.Name != "voicevox" {
		t.Errorf("unexpected config: persona=%q tts=%q", cfg.Persona, cfg.Providers.TTS.Name)
	}
	if len(cfg.Transcript.Suppress) != 1 {
		t.Errorf("transcript.suppress = %v", cfg.Transcript.Suppress)
	}
	if _, err := config.RenderPrompt(cfg.Dialogue.SystemPrompt, config.PromptData{Persona: cfg.Persona, ToneList: []string{"普通"}}); err != nil {
		t.Errorf("RenderPrompt: %v", err)
	}
}
