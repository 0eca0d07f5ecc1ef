// Package energy provides a pure-Go vad.Engine that classifies frames by
// their RMS level. It needs no CGO and works at any sample rate and frame
// size, which makes it the fallback on platforms without WebRTC VAD.
//
// Aggressiveness selects the RMS threshold: higher modes demand a louder
// frame before calling it speech.
package energy

import (
	"fmt"

	"github.com/MrWong99/kaiwa/pkg/audio"
	"github.com/MrWong99/kaiwa/pkg/provider/vad"
)

// Compile-time assertions.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)

// Thresholds maps aggressiveness 0..3 to a normalised RMS level.
var Thresholds = [4]float64{0.004, 0.008, 0.015, 0.025}

// Engine creates energy-based VAD sessions.
type Engine struct {
	thresholds [4]float64
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithThresholds overrides the per-mode RMS thresholds.
func WithThresholds(t [4]float64) Option {
	return func(e *Engine) { e.thresholds = t }
}

// New returns an energy VAD engine using [Thresholds] unless overridden.
func New(opts ...Option) *Engine {
	e := &Engine{thresholds: Thresholds}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &session{
		threshold:  e.thresholds[cfg.Aggressiveness],
		frameBytes: cfg.FrameBytes(),
	}, nil
}

type session struct {
	threshold  float64
	frameBytes int
}

func (s *session) IsSpeech(frame []byte) (bool, error) {
	if len(frame) != s.frameBytes {
		return false, fmt.Errorf("%w: got %d bytes, want %d", vad.ErrFrameSize, len(frame), s.frameBytes)
	}
	return audio.RMS(frame) >= s.threshold, nil
}

// Reset is a no-op; the detector keeps no history.
func (s *session) Reset() {}

func (s *session) Close() error { return nil }
