package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/kaiwa/internal/app"
	"github.com/MrWong99/kaiwa/internal/config"
	"github.com/MrWong99/kaiwa/pkg/audio"
	"github.com/MrWong99/kaiwa/pkg/audio/malgo"
	"github.com/MrWong99/kaiwa/pkg/audio/oto"
	"github.com/MrWong99/kaiwa/pkg/provider/llm"
	"github.com/MrWong99/kaiwa/pkg/provider/llm/anyllm"
	"github.com/MrWong99/kaiwa/pkg/provider/llm/openai"
	"github.com/MrWong99/kaiwa/pkg/provider/stt"
	"github.com/MrWong99/kaiwa/pkg/provider/stt/deepgram"
	"github.com/MrWong99/kaiwa/pkg/provider/stt/remote"
	"github.com/MrWong99/kaiwa/pkg/provider/stt/whisper"
	"github.com/MrWong99/kaiwa/pkg/provider/tts"
	"github.com/MrWong99/kaiwa/pkg/provider/tts/coqui"
	"github.com/MrWong99/kaiwa/pkg/provider/tts/voicevox"
	"github.com/MrWong99/kaiwa/pkg/provider/vad"
	"github.com/MrWong99/kaiwa/pkg/provider/vad/energy"
	"github.com/MrWong99/kaiwa/pkg/provider/vad/webrtc"
)

// registerBuiltinProviders wires every built-in factory into reg.
func registerBuiltinProviders(reg *config.Registry, logger *slog.Logger) {
	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptString("model_path")
		}
		p, err := whisper.NewNative(modelPath,
			whisper.WithNativeOptions(sttOptions(entry)),
			whisper.WithNativeLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		opts := []whisper.Option{whisper.WithOptions(sttOptions(entry))}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		p, err := whisper.NewServer(entry.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	reg.RegisterSTT("remote", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		p, err := remote.New(entry.BaseURL, remote.WithOptions(sttOptions(entry)))
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		opts := []deepgram.Option{deepgram.WithOptions(sttOptions(entry))}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		p, err := deepgram.New(entry.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		p, err := anyllm.NewOllama(entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	// openai talks to the API directly for strict json_schema output.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptString("organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if s := entry.OptInt("timeout_seconds"); s > 0 {
			opts = append(opts, openai.WithTimeout(time.Duration(s)*time.Second))
		}
		p, err := openai.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(providerName, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("voicevox", func(entry config.ProviderEntry, persona string) (tts.Provider, error) {
		opts := []voicevox.Option{voicevox.WithPersona(persona)}
		if s := entry.OptInt("timeout_seconds"); s > 0 {
			opts = append(opts, voicevox.WithTimeout(time.Duration(s)*time.Second))
		}
		p, err := voicevox.New(entry.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	reg.RegisterTTS("coqui", func(entry config.ProviderEntry, _ string) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if s := entry.OptInt("timeout_seconds"); s > 0 {
			opts = append(opts, coqui.WithTimeout(time.Duration(s)*time.Second))
		}
		p, err := coqui.New(entry.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// ── VAD ───────────────────────────────────────────────────────────────────
	reg.RegisterVAD("webrtc", func(config.VADConfig) (vad.Engine, error) {
		return webrtc.New(), nil
	})
	reg.RegisterVAD("energy", func(config.VADConfig) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── Audio devices ─────────────────────────────────────────────────────────
	reg.RegisterCapture("malgo", func(cfg config.AudioConfig) (audio.CaptureDevice, error) {
		p, err := malgo.Open(audio.CaptureConfig{
			DeviceID:     cfg.InputDevice,
			SampleRate:   cfg.SampleRate,
			FrameSamples: cfg.FrameSamples(),
		}, malgo.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	reg.RegisterPlayback("oto", func(cfg config.AudioConfig) (audio.Player, error) {
		p, err := oto.New(audio.Format{SampleRate: cfg.PlaybackSampleRate, Channels: 1}, oto.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

func sttOptions(entry config.ProviderEntry) stt.Options {
	return stt.Options{
		Language: entry.OptString("language"),
		BeamSize: entry.OptInt("beam_size"),
	}.WithDefaults()
}

// buildProviders instantiates every provider named in cfg. On failure the
// providers built so far are released.
func buildProviders(cfg *config.Config, reg *config.Registry) (ps *app.Providers, err error) {
	ps = &app.Providers{}
	defer func() {
		if err != nil {
			closeProviders(ps)
			ps = nil
		}
	}()

	if ps.STT, err = reg.CreateSTT(cfg.Providers.STT); err != nil {
		return ps, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	if ps.LLM, err = reg.CreateLLM(cfg.Providers.LLM); err != nil {
		return ps, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	if ps.TTS, err = reg.CreateTTS(cfg.Providers.TTS, cfg.Persona); err != nil {
		return ps, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	if ps.VAD, err = reg.CreateVAD(cfg.VAD); err != nil {
		return ps, fmt.Errorf("create vad engine %q: %w", cfg.VAD.Engine, err)
	}
	if ps.Player, err = reg.CreatePlayback(cfg.Audio); err != nil {
		return ps, fmt.Errorf("open playback %q: %w", cfg.Audio.Playback, err)
	}
	if ps.Capture, err = reg.CreateCapture(cfg.Audio); err != nil {
		return ps, fmt.Errorf("open capture %q: %w", cfg.Audio.Capture, err)
	}
	return ps, nil
}

// closeProviders releases devices and providers that hold resources. It is
// used only when the app never took ownership of them.
func closeProviders(ps *app.Providers) {
	if ps == nil {
		return
	}
	var errs []error
	if ps.Capture != nil {
		errs = append(errs, ps.Capture.Close())
	}
	if ps.Player != nil {
		errs = append(errs, ps.Player.Close())
	}
	if c, ok := ps.STT.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("failed to release providers", "err", err)
	}
}
