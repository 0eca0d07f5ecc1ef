// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A transcriber receives one complete utterance at a time, as produced by the
// segmenter, and returns its text. Backends are batch engines: a local
// whisper.cpp model, a whisper.cpp server, or any HTTP service exposing a
// /transcribe endpoint.
//
// Every backend reports failures as errors matching
// [github.com/MrWong99/kaiwa/pkg/errdefs.ErrTranscription], so callers can
// drop the utterance without knowing which backend is configured.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/kaiwa/pkg/types"
)

const (
	// DefaultLanguage is the recognition language used when none is set.
	DefaultLanguage = "ja"

	// DefaultBeamSize is the decoder beam width used when none is set.
	// Greedy decoding keeps latency low on CPU.
	DefaultBeamSize = 1
)

// Transcriber converts one utterance of 16-bit mono PCM into text.
type Transcriber interface {
	// Transcribe returns the recognised text of seg. An empty string is a
	// valid result for audio without intelligible speech.
	Transcribe(ctx context.Context, seg types.SpeechSegment) (string, error)
}

// Options are the recognition hints shared by all backends.
type Options struct {
	// Language is the ISO 639-1 code of the spoken language (e.g., "ja").
	// Empty means DefaultLanguage.
	Language string

	// BeamSize is the decoder beam width. Zero means DefaultBeamSize.
	BeamSize int
}

// WithDefaults returns o with zero fields replaced by their defaults.
func (o Options) WithDefaults() Options {
	if o.Language == "" {
		o.Language = DefaultLanguage
	}
	if o.BeamSize <= 0 {
		o.BeamSize = DefaultBeamSize
	}
	return o
}
