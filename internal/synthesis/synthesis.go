// Package synthesis turns dialogue replies into playable audio.
//
// A [Worker] holds the voice styles fetched from the synthesis service at
// startup, maps each reply's tone to one of them and asks the service to
// render the reply. Tones are matched by exact style name; an unknown tone is
// logged and rendered in the first style of the catalogue.
package synthesis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrWong99/kaiwa/internal/observe"
	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/provider/tts"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// ResolveStyle returns the style whose name equals tone. When none matches it
// returns the first style and false. styles must not be empty.
func ResolveStyle(styles []types.VoiceStyle, tone string) (types.VoiceStyle, bool) {
	for _, s := range styles {
		if s.Name == tone {
			return s, true
		}
	}
	return styles[0], false
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// Worker renders replies through a tts.Provider.
type Worker struct {
	provider tts.Provider
	styles   []types.VoiceStyle
	logger   *slog.Logger
}

// New creates a Worker. An empty style catalogue is a configuration error.
func New(provider tts.Provider, styles []types.VoiceStyle, opts ...Option) (*Worker, error) {
	if provider == nil {
		return nil, errdefs.Configuration("synthesis", errors.New("tts provider is required"))
	}
	if len(styles) == 0 {
		return nil, errdefs.Configuration("synthesis", errors.New("voice style list is empty"))
	}
	w := &Worker{
		provider: provider,
		styles:   append([]types.VoiceStyle(nil), styles...),
	}
	for _, o := range opts {
		o(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w, nil
}

// Styles returns a copy of the style catalogue.
func (w *Worker) Styles() []types.VoiceStyle {
	return append([]types.VoiceStyle(nil), w.styles...)
}

// Synthesize renders reply. Provider failures are returned as
// errdefs.ErrSynthesis.
func (w *Worker) Synthesize(ctx context.Context, reply types.DialogueReply) (types.SynthesizedAudio, error) {
	style, ok := ResolveStyle(w.styles, reply.Tone)
	if !ok {
		observe.Logger(ctx, w.logger).Warn("unknown tone, using default style", "tone", reply.Tone, "style", style.Name)
	}

	data, err := w.provider.Synthesize(ctx, reply.Content, style)
	if err != nil {
		if errors.Is(err, errdefs.ErrSynthesis) || ctx.Err() != nil {
			return types.SynthesizedAudio{}, err
		}
		return types.SynthesizedAudio{}, errdefs.Synthesis("synthesize", err)
	}
	if len(data) == 0 {
		return types.SynthesizedAudio{}, errdefs.Synthesis("synthesize", errors.New("empty audio"))
	}
	return types.SynthesizedAudio{Data: data, Text: reply.Content, Style: style}, nil
}
