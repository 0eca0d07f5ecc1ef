package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/kaiwa/pkg/errdefs"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":      {"whisper", "whisper-native", "remote", "deepgram"},
	"llm":      {"ollama", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":      {"voicevox", "coqui"},
	"vad":      {"webrtc", "energy"},
	"capture":  {"malgo"},
	"playback": {"oto"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errdefs.Configuration("config", fmt.Errorf("open %q: %w", path, err))
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// environment fallbacks, and validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errdefs.Configuration("config", fmt.Errorf("decode yaml: %w", err))
	}
	ApplyDefaults(cfg)
	applyEnv(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	a := &cfg.Audio
	if a.Capture == "" {
		a.Capture = "malgo"
	}
	if a.Playback == "" {
		a.Playback = "oto"
	}
	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.FrameMs == 0 {
		a.FrameMs = DefaultFrameMs
	}
	if a.PlaybackSampleRate == 0 {
		a.PlaybackSampleRate = DefaultPlaybackSampleRate
	}
	if a.TrailingSilence == 0 {
		a.TrailingSilence = DefaultTrailingSilence
	}

	v := &cfg.VAD
	if v.Engine == "" {
		v.Engine = "webrtc"
	}
	if v.Aggressiveness == nil {
		n := DefaultAggressiveness
		v.Aggressiveness = &n
	}
	if v.SilenceThreshold == 0 {
		v.SilenceThreshold = DefaultSilenceThreshold
	}
	if v.MinFramesThreshold == 0 {
		v.MinFramesThreshold = DefaultMinFrames
	}
	if v.NoiseLogLevel == "" {
		v.NoiseLogLevel = NoiseLogOff
	}

	if cfg.Providers.STT.Name == "" {
		cfg.Providers.STT.Name = "whisper-native"
	}
	if cfg.Providers.LLM.Name == "" {
		cfg.Providers.LLM.Name = "ollama"
	}
	if cfg.Providers.TTS.Name == "" {
		cfg.Providers.TTS.Name = "voicevox"
	}

	if cfg.Dialogue.EmptyTranscripts == "" {
		cfg.Dialogue.EmptyTranscripts = EmptyDrop
	}

	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = DefaultMaxFailures
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = DefaultResetTimeout
	}
}

// applyEnv resolves the ollama address from OLLAMA_HOST when the config
// leaves it empty. Hosts without a scheme are treated as plain HTTP.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	llm := &cfg.Providers.LLM
	if llm.Name != "ollama" || llm.BaseURL != "" {
		return
	}
	host, ok := lookup("OLLAMA_HOST")
	if !ok || host == "" {
		llm.BaseURL = DefaultOllamaHost
		return
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	llm.BaseURL = host
}

// Validate checks that cfg contains a coherent set of values.
// It returns a configuration error joining all validation failures found.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if cfg.Server.ShutdownTimeout < 0 {
		add("server.shutdown_timeout must not be negative")
	}

	// Audio
	a := cfg.Audio
	if a.SampleRate <= 0 {
		add("audio.sample_rate must be positive, got %d", a.SampleRate)
	}
	if !slices.Contains([]int{10, 20, 30}, a.FrameMs) {
		add("audio.frame_ms %d is invalid; valid values: 10, 20, 30", a.FrameMs)
	} else if a.SampleRate > 0 && a.SampleRate*a.FrameMs%1000 != 0 {
		add("audio.frame_ms %d does not divide audio.sample_rate %d into whole samples", a.FrameMs, a.SampleRate)
	}
	if a.PlaybackSampleRate <= 0 {
		add("audio.playback_sample_rate must be positive, got %d", a.PlaybackSampleRate)
	}
	if a.TrailingSilence < 0 {
		add("audio.trailing_silence must not be negative")
	}

	// VAD
	v := cfg.VAD
	if v.Aggressiveness != nil && (*v.Aggressiveness < 0 || *v.Aggressiveness > 3) {
		add("vad.aggressiveness %d is out of range [0, 3]", *v.Aggressiveness)
	}
	if v.SilenceThreshold < 0 {
		add("vad.silence_threshold must not be negative, got %d", v.SilenceThreshold)
	}
	if v.MinFramesThreshold < 0 {
		add("vad.min_frames_threshold must not be negative, got %d", v.MinFramesThreshold)
	}
	if v.MaxFrames < 0 {
		add("vad.max_frames must not be negative, got %d", v.MaxFrames)
	} else if v.MaxFrames > 0 && v.MaxFrames <= v.MinFramesThreshold {
		add("vad.max_frames %d must exceed vad.min_frames_threshold %d", v.MaxFrames, v.MinFramesThreshold)
	}
	if !v.NoiseLogLevel.IsValid() {
		add("vad.noise_log_level %q is invalid; valid values: off, debug, info", v.NoiseLogLevel)
	}

	// Providers
	for kind, name := range map[string]string{
		"stt":      cfg.Providers.STT.Name,
		"llm":      cfg.Providers.LLM.Name,
		"tts":      cfg.Providers.TTS.Name,
		"vad":      v.Engine,
		"capture":  a.Capture,
		"playback": a.Playback,
	} {
		if name == "" {
			add("%s provider name is required", kind)
			continue
		}
		validateProviderName(kind, name)
	}
	if cfg.Providers.LLM.Model == "" {
		add("providers.llm.model is required")
	}

	// Transcript
	for from := range cfg.Transcript.Replacements {
		if strings.TrimSpace(from) == "" {
			add("transcript.replacements must not contain an empty phrase")
			break
		}
	}
	for i, phrase := range cfg.Transcript.Suppress {
		if strings.TrimSpace(phrase) == "" {
			add("transcript.suppress[%d] is empty", i)
		}
	}

	// Dialogue
	d := cfg.Dialogue
	if !d.EmptyTranscripts.IsValid() {
		add("dialogue.empty_transcripts %q is invalid; valid values: drop, forward", d.EmptyTranscripts)
	}
	if d.Temperature < 0 || d.Temperature > 2 {
		add("dialogue.temperature %.2f is out of range [0, 2]", d.Temperature)
	}
	if d.MaxTokens < 0 {
		add("dialogue.max_tokens must not be negative")
	}
	if d.SystemPrompt != "" && d.SystemPromptPath != "" {
		slog.Warn("both dialogue.system_prompt and dialogue.system_prompt_path are set; using the file")
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		add("resilience.max_failures must not be negative")
	}
	if cfg.Resilience.ResetTimeout < 0 {
		add("resilience.reset_timeout must not be negative")
	}

	if len(errs) == 0 {
		return nil
	}
	return errdefs.Configuration("config", errors.Join(errs...))
}

// validateProviderName logs a warning if name is not found in the
// [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
