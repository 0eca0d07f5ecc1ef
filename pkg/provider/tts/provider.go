// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (VOICEVOX by default, or a
// Coqui TTS server) that renders one complete reply per call. Each provider
// exposes the catalogue of expressive styles of its configured persona; the
// dialogue engine offers those style names to the LLM as the allowed tones,
// and synthesis renders the reply in the style the LLM picked.
//
// Every backend reports failures as errors matching
// [github.com/MrWong99/kaiwa/pkg/errdefs.ErrSynthesis].
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/kaiwa/pkg/types"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Styles returns the persona's voice styles in catalogue order. The first
	// style is the fallback for unknown tones. An unresolvable persona is a
	// configuration error.
	Styles(ctx context.Context) ([]types.VoiceStyle, error)

	// Synthesize renders text in style and returns an encoded WAV clip.
	Synthesize(ctx context.Context, text string, style types.VoiceStyle) ([]byte, error)
}
