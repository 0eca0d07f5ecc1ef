// Package config provides the configuration schema, loader, provider registry
// and prompt rendering for kaiwa.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NoiseLogLevel controls whether discarded noise bursts are logged.
type NoiseLogLevel string

const (
	NoiseLogOff   NoiseLogLevel = "off"
	NoiseLogDebug NoiseLogLevel = "debug"
	NoiseLogInfo  NoiseLogLevel = "info"
)

// IsValid reports whether n is a recognised noise log level.
func (n NoiseLogLevel) IsValid() bool {
	switch n {
	case NoiseLogOff, NoiseLogDebug, NoiseLogInfo:
		return true
	}
	return false
}

// Level returns the slog level noise bursts are logged at, or nil when
// noise logging is off.
func (n NoiseLogLevel) Level() *slog.Level {
	var lvl slog.Level
	switch n {
	case NoiseLogDebug:
		lvl = slog.LevelDebug
	case NoiseLogInfo:
		lvl = slog.LevelInfo
	default:
		return nil
	}
	return &lvl
}

// EmptyTranscripts selects what happens to blank transcription results.
type EmptyTranscripts string

const (
	// EmptyDrop discards blank transcripts before the dialogue stage.
	EmptyDrop EmptyTranscripts = "drop"

	// EmptyForward passes blank transcripts to the dialogue engine.
	EmptyForward EmptyTranscripts = "forward"
)

// IsValid reports whether e is a recognised policy.
func (e EmptyTranscripts) IsValid() bool {
	return e == EmptyDrop || e == EmptyForward
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultSampleRate         = 16000
	DefaultFrameMs            = 30
	DefaultPlaybackSampleRate = 24000
	DefaultTrailingSilence    = 200 * time.Millisecond
	DefaultAggressiveness     = 3
	DefaultSilenceThreshold   = 20
	DefaultMinFrames          = 20
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultMaxFailures        = 5
	DefaultResetTimeout       = 30 * time.Second
	DefaultOllamaHost         = "http://127.0.0.1:11434"
)

// Config is the root configuration structure for kaiwa.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	VAD        VADConfig        `yaml:"vad"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Dialogue   DialogueConfig   `yaml:"dialogue"`
	Resilience ResilienceConfig `yaml:"resilience"`

	// Persona names the voice the assistant speaks with. For VOICEVOX this is
	// a speaker name (e.g., "四国めたん"). It is also available to the system
	// prompt template.
	Persona string `yaml:"persona"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// DiagnosticsAddr, when set, serves /healthz, /readyz and /metrics on
	// this TCP address (e.g., "127.0.0.1:9090").
	DiagnosticsAddr string `yaml:"diagnostics_addr"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AudioConfig selects and shapes the capture and playback devices.
type AudioConfig struct {
	// Capture names the registered capture backend. Default: "malgo".
	Capture string `yaml:"capture"`

	// Playback names the registered playback backend. Default: "oto".
	Playback string `yaml:"playback"`

	// InputDevice selects the microphone by the id shown by -list-devices.
	// Empty selects the system default.
	InputDevice string `yaml:"input_device"`

	// SampleRate is the capture rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the capture frame length. Default: 30.
	FrameMs int `yaml:"frame_ms"`

	// PlaybackSampleRate is the output device rate. Default: 24000.
	PlaybackSampleRate int `yaml:"playback_sample_rate"`

	// TrailingSilence is played after every clip before capture resumes.
	// Default: 200ms.
	TrailingSilence time.Duration `yaml:"trailing_silence"`
}

// FrameSamples returns the number of samples per capture frame.
func (a AudioConfig) FrameSamples() int { return a.SampleRate * a.FrameMs / 1000 }

// VADConfig tunes voice activity detection and utterance segmentation.
type VADConfig struct {
	// Engine names the registered VAD engine ("webrtc" or "energy").
	// Default: "webrtc".
	Engine string `yaml:"engine"`

	// Aggressiveness is the detector mode in [0, 3]. Default: 3.
	Aggressiveness *int `yaml:"aggressiveness"`

	// SilenceThreshold is the number of non-speech frames tolerated inside an
	// utterance. Default: 20.
	SilenceThreshold int `yaml:"silence_threshold"`

	// MinFramesThreshold is the largest speech-frame count still discarded as
	// noise. Default: 20.
	MinFramesThreshold int `yaml:"min_frames_threshold"`

	// MaxFrames force-emits an utterance once it holds this many speech
	// frames. Zero disables the limit.
	MaxFrames int `yaml:"max_frames"`

	// NoiseLogLevel controls logging of discarded noise. Default: off.
	NoiseLogLevel NoiseLogLevel `yaml:"noise_log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "ollama", "voicevox").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gemma3", a
	// whisper model path).
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// OptString returns the string option key, or "" when absent or not a string.
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptInt returns the integer option key, or 0 when absent or not a number.
func (e ProviderEntry) OptInt(key string) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// DialogueConfig configures the conversation with the language model.
type DialogueConfig struct {
	// SystemPrompt is a text/template rendered with [PromptData]. Ignored when
	// SystemPromptPath is set.
	SystemPrompt string `yaml:"system_prompt"`

	// SystemPromptPath reads the template from a file.
	SystemPromptPath string `yaml:"system_prompt_path"`

	// SchemaPath overrides the generated reply schema with a JSON schema file.
	SchemaPath string `yaml:"schema_path"`

	// Temperature is the sampling temperature. Zero keeps the model default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps each reply. Zero means no cap.
	MaxTokens int `yaml:"max_tokens"`

	// EmptyTranscripts selects the blank transcript policy. Default: drop.
	EmptyTranscripts EmptyTranscripts `yaml:"empty_transcripts"`
}

// TranscriptConfig configures correction of recognised text before it
// reaches the dialogue engine. Both lists are empty by default.
type TranscriptConfig struct {
	// Replacements maps misrecognised phrases to their correct spelling,
	// e.g. "しこくめたん" to "四国めたん".
	Replacements map[string]string `yaml:"replacements"`

	// Suppress lists phrases the recogniser produces from silence or noise
	// (e.g. "ご視聴ありがとうございました"). A transcript consisting only of
	// one of them becomes empty.
	Suppress []string `yaml:"suppress"`
}

// ResilienceConfig configures the circuit breakers around remote services.
type ResilienceConfig struct {
	// Disabled turns the breakers off.
	Disabled bool `yaml:"disabled"`

	// MaxFailures is the number of consecutive failures that opens a breaker.
	// Default: 5.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker fast-fails. Default: 30s.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}
