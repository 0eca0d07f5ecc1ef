package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/kaiwa/pkg/audio"
	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/provider/llm"
	"github.com/MrWong99/kaiwa/pkg/provider/stt"
	"github.com/MrWong99/kaiwa/pkg/provider/tts"
	"github.com/MrWong99/kaiwa/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name. It is always wrapped in
// a configuration error.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory signatures. Stage providers are built from their [ProviderEntry];
// the VAD engine and audio devices from their own config sections.
type (
	STTFactory      func(ProviderEntry) (stt.Transcriber, error)
	LLMFactory      func(ProviderEntry) (llm.Provider, error)
	TTSFactory      func(entry ProviderEntry, persona string) (tts.Provider, error)
	VADFactory      func(VADConfig) (vad.Engine, error)
	CaptureFactory  func(AudioConfig) (audio.CaptureDevice, error)
	PlaybackFactory func(AudioConfig) (audio.Player, error)
)

// factories is one provider kind's name → constructor table.
type factories[F any] map[string]F

func (f factories[F]) lookup(mu *sync.RWMutex, kind, name string) (F, error) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok := f[name]
	if !ok {
		var zero F
		return zero, errdefs.Configuration("registry", fmt.Errorf("%w: %s/%q (registered: %v)", ErrProviderNotRegistered, kind, name, f.names()))
	}
	return factory, nil
}

func (f factories[F]) names() []string {
	names := make([]string, 0, len(f))
	for n := range f {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	stt      factories[STTFactory]
	llm      factories[LLMFactory]
	tts      factories[TTSFactory]
	vad      factories[VADFactory]
	capture  factories[CaptureFactory]
	playback factories[PlaybackFactory]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:      make(factories[STTFactory]),
		llm:      make(factories[LLMFactory]),
		tts:      make(factories[TTSFactory]),
		vad:      make(factories[VADFactory]),
		capture:  make(factories[CaptureFactory]),
		playback: make(factories[PlaybackFactory]),
	}
}

// RegisterSTT registers a transcriber factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, f STTFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = f
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, f LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = f
}

// RegisterTTS registers a synthesis provider factory under name.
func (r *Registry) RegisterTTS(name string, f TTSFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = f
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, f VADFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = f
}

// RegisterCapture registers a capture device factory under name.
func (r *Registry) RegisterCapture(name string, f CaptureFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture[name] = f
}

// RegisterPlayback registers a playback device factory under name.
func (r *Registry) RegisterPlayback(name string, f PlaybackFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playback[name] = f
}

// CreateSTT instantiates the transcriber registered under entry.Name.
// Returns a configuration error wrapping [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	f, err := r.stt.lookup(&r.mu, "stt", entry.Name)
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateLLM instantiates the LLM provider registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	f, err := r.llm.lookup(&r.mu, "llm", entry.Name)
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateTTS instantiates the synthesis provider registered under entry.Name
// for persona.
func (r *Registry) CreateTTS(entry ProviderEntry, persona string) (tts.Provider, error) {
	f, err := r.tts.lookup(&r.mu, "tts", entry.Name)
	if err != nil {
		return nil, err
	}
	return f(entry, persona)
}

// CreateVAD instantiates the VAD engine registered under cfg.Engine.
func (r *Registry) CreateVAD(cfg VADConfig) (vad.Engine, error) {
	f, err := r.vad.lookup(&r.mu, "vad", cfg.Engine)
	if err != nil {
		return nil, err
	}
	return f(cfg)
}

// CreateCapture instantiates the capture device registered under cfg.Capture.
func (r *Registry) CreateCapture(cfg AudioConfig) (audio.CaptureDevice, error) {
	f, err := r.capture.lookup(&r.mu, "capture", cfg.Capture)
	if err != nil {
		return nil, err
	}
	return f(cfg)
}

// CreatePlayback instantiates the player registered under cfg.Playback.
func (r *Registry) CreatePlayback(cfg AudioConfig) (audio.Player, error) {
	f, err := r.playback.lookup(&r.mu, "playback", cfg.Playback)
	if err != nil {
		return nil, err
	}
	return f(cfg)
}
