// Package vad defines the Engine interface for voice activity detection backends.
//
// A VAD engine wraps a frame-level speech classifier (WebRTC VAD, an energy
// detector, or a custom model) and surfaces it as a per-stream session. The
// session answers a single question per frame: is this speech or not. Turning
// that boolean stream into utterances is the job of internal/segmenter.
//
// VAD is synchronous: IsSpeech returns immediately, which makes it suitable
// for running inline inside a real-time capture callback.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import (
	"errors"
	"fmt"
)

// ErrFrameSize is returned by IsSpeech when a frame does not match the
// configured size.
var ErrFrameSize = errors.New("vad: frame size mismatch")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to IsSpeech. Common values: 8000, 16000, 32000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds.
	// WebRTC VAD accepts 10, 20 or 30 ms.
	FrameSizeMs int

	// Aggressiveness is the filtering mode in [0, 3]. 0 is the least
	// aggressive about filtering out non-speech, 3 the most.
	Aggressiveness int
}

// FrameBytes returns the expected byte length of one 16-bit mono frame.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// Validate reports whether the configuration is usable by any engine.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameSizeMs <= 0 {
		return fmt.Errorf("vad: frame size must be positive, got %d ms", c.FrameSizeMs)
	}
	if c.Aggressiveness < 0 || c.Aggressiveness > 3 {
		return fmt.Errorf("vad: aggressiveness must be in [0,3], got %d", c.Aggressiveness)
	}
	return nil
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations
// without a live engine.
type SessionHandle interface {
	// IsSpeech classifies a single frame of raw little-endian 16-bit PCM at
	// the SampleRate and FrameSizeMs configured when the session was created.
	// Returns an error wrapping [ErrFrameSize] if the frame has the wrong
	// length, or an engine error on internal failure.
	//
	// It must not block.
	IsSpeech(frame []byte) (bool, error)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	//
	// Returns an error if the configuration is invalid (unsupported sample
	// rate, frame size or aggressiveness) or if the engine cannot allocate
	// resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
