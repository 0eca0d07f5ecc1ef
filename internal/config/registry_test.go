package config_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/kaiwa/internal/config"
	"github.com/MrWong99/kaiwa/pkg/audio"
	audiomock "github.com/MrWong99/kaiwa/pkg/audio/mock"
	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/provider/llm"
	llmmock "github.com/MrWong99/kaiwa/pkg/provider/llm/mock"
	"github.com/MrWong99/kaiwa/pkg/provider/stt"
	sttmock "github.com/MrWong99/kaiwa/pkg/provider/stt/mock"
	"github.com/MrWong99/kaiwa/pkg/provider/tts"
	ttsmock "github.com/MrWong99/kaiwa/pkg/provider/tts/mock"
	"github.com/MrWong99/kaiwa/pkg/provider/vad"
	vadmock "github.com/MrWong99/kaiwa/pkg/provider/vad/mock"
)

func TestRegistry_CreateRegistered(t *testing.T) {
	reg := config.NewRegistry()

	var gotEntry config.ProviderEntry
	var gotPersona string
	reg.RegisterSTT("fake", func(e config.ProviderEntry) (stt.Transcriber, error) {
		gotEntry = e
		return &sttmock.Transcriber{}, nil
	})
	reg.RegisterLLM("fake", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	reg.RegisterTTS("fake", func(_ config.ProviderEntry, persona string) (tts.Provider, error) {
		gotPersona = persona
		return &ttsmock.Provider{}, nil
	})
	reg.RegisterVAD("fake", func(config.VADConfig) (vad.Engine, error) { return &vadmock.Engine{}, nil })
	reg.RegisterCapture("fake", func(config.AudioConfig) (audio.CaptureDevice, error) { return &audiomock.CaptureDevice{}, nil })
	reg.RegisterPlayback("fake", func(config.AudioConfig) (audio.Player, error) { return &audiomock.Player{}, nil })

	entry := config.ProviderEntry{Name: "fake", Model: "m"}
	if _, err := reg.CreateSTT(entry); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if gotEntry.Model != "m" {
		t.Errorf("factory received %+v", gotEntry)
	}
	if _, err := reg.CreateLLM(entry); err != nil {
		t.Errorf("CreateLLM: %v", err)
	}
	if _, err := reg.CreateTTS(entry, "四国めたん"); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
	if gotPersona != "四国めたん" {
		t.Errorf("persona = %q", gotPersona)
	}
	if _, err := reg.CreateVAD(config.VADConfig{Engine: "fake"}); err != nil {
		t.Errorf("CreateVAD: %v", err)
	}
	if _, err := reg.CreateCapture(config.AudioConfig{Capture: "fake"}); err != nil {
		t.Errorf("CreateCapture: %v", err)
	}
	if _, err := reg.CreatePlayback(config.AudioConfig{Playback: "fake"}); err != nil {
		t.Errorf("CreatePlayback: %v", err)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	reg := config.NewRegistry()
	reg.RegisterSTT("whisper", func(config.ProviderEntry) (stt.Transcriber, error) { return nil, nil })

	calls := map[string]func() error{
		"stt": func() error { _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}); return err },
		"llm": func() error { _, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"}); return err },
		"tts": func() error { _, err := reg.CreateTTS(config.ProviderEntry{Name: "nope"}, ""); return err },
		"vad": func() error { _, err := reg.CreateVAD(config.VADConfig{Engine: "nope"}); return err },
		"capture": func() error {
			_, err := reg.CreateCapture(config.AudioConfig{Capture: "nope"})
			return err
		},
		"playback": func() error {
			_, err := reg.CreatePlayback(config.AudioConfig{Playback: "nope"})
			return err
		},
	}
	for kind, call := range calls {
		t.Run(kind, func(t *testing.T) {
			err := call()
			if !errors.Is(err, config.ErrProviderNotRegistered) || !errors.Is(err, errdefs.ErrConfiguration) {
				t.Errorf("error = %v, want ErrProviderNotRegistered as a configuration error", err)
			}
		})
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterLLM("bad", func(config.ProviderEntry) (llm.Provider, error) { return nil, boom })
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Errorf("error = %v, want factory error", err)
	}
}
