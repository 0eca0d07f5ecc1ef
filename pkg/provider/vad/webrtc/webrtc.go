// Package webrtc provides a vad.Engine backed by the WebRTC voice activity
// detector via the go-webrtcvad CGO bindings.
//
// WebRTC VAD operates on 10, 20 or 30 ms frames of 16-bit mono PCM at 8, 16,
// 32 or 48 kHz. The aggressiveness maps directly onto the detector mode.
package webrtc

import (
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/kaiwa/pkg/provider/vad"
)

// Compile-time assertions.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)

// Engine creates WebRTC VAD sessions. The zero value is ready to use.
type Engine struct{}

// New returns a WebRTC VAD engine.
func New() *Engine { return &Engine{} }

// NewSession allocates a detector configured for cfg.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	det, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: create detector: %w", err)
	}
	if err := det.SetMode(cfg.Aggressiveness); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode %d: %w", cfg.Aggressiveness, err)
	}
	frameBytes := cfg.FrameBytes()
	if !det.ValidRateAndFrameLength(cfg.SampleRate, frameBytes/2) {
		return nil, fmt.Errorf("webrtc vad: unsupported rate %d Hz with %d ms frames",
			cfg.SampleRate, cfg.FrameSizeMs)
	}
	return &session{det: det, rate: cfg.SampleRate, frameBytes: frameBytes, mode: cfg.Aggressiveness}, nil
}

type session struct {
	mu         sync.Mutex
	det        *webrtcvad.VAD
	rate       int
	frameBytes int
	mode       int
	closed     bool
}

func (s *session) IsSpeech(frame []byte) (bool, error) {
	if len(frame) != s.frameBytes {
		return false, fmt.Errorf("%w: got %d bytes, want %d", vad.ErrFrameSize, len(frame), s.frameBytes)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("webrtc vad: session closed")
	}
	active, err := s.det.Process(s.rate, frame)
	if err != nil {
		return false, fmt.Errorf("webrtc vad: process: %w", err)
	}
	return active, nil
}

// Reset re-applies the detector mode, which reinitialises its internal state.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	_ = s.det.SetMode(s.mode)
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
