package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/provider/stt"
	"github.com/MrWong99/kaiwa/pkg/provider/tts"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// Transcriber is an stt.Transcriber guarded by a circuit breaker.
type Transcriber struct {
	next    stt.Transcriber
	breaker *CircuitBreaker
}

var _ stt.Transcriber = (*Transcriber)(nil)

// GuardTranscriber wraps next with cb. A rejected call fails with
// errdefs.ErrTranscription wrapping ErrCircuitOpen.
func GuardTranscriber(next stt.Transcriber, cb *CircuitBreaker) *Transcriber {
	return &Transcriber{next: next, breaker: cb}
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, seg types.SpeechSegment) (string, error) {
	var text string
	err := t.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		text, err = t.next.Transcribe(ctx, seg)
		return err
	})
	if errors.Is(err, ErrCircuitOpen) {
		return "", errdefs.Transcription(t.breaker.Name(), err)
	}
	return text, err
}

// Synthesizer is a tts.Provider whose Synthesize calls are guarded by a
// circuit breaker. Styles is a startup call and passes straight through.
type Synthesizer struct {
	next    tts.Provider
	breaker *CircuitBreaker
}

var _ tts.Provider = (*Synthesizer)(nil)

// GuardSynthesizer wraps next with cb. A rejected call fails with
// errdefs.ErrSynthesis wrapping ErrCircuitOpen.
func GuardSynthesizer(next tts.Provider, cb *CircuitBreaker) *Synthesizer {
	return &Synthesizer{next: next, breaker: cb}
}

// Styles implements tts.Provider.
func (s *Synthesizer) Styles(ctx context.Context) ([]types.VoiceStyle, error) {
	return s.next.Styles(ctx)
}

// Synthesize implements tts.Provider.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, style types.VoiceStyle) ([]byte, error) {
	var clip []byte
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		clip, err = s.next.Synthesize(ctx, text, style)
		return err
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil, errdefs.Synthesis(s.breaker.Name(), err)
	}
	return clip, err
}
