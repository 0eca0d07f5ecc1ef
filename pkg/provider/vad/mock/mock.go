// Package mock provides test doubles for the vad package interfaces.
//
// Session classifies frames either with a scripted sequence of results or,
// when Script is empty, by inspecting the first byte of each frame: a non-zero
// first byte is speech. The latter lets tests build speech and silence frames
// with [SpeechFrame] and [SilenceFrame] without caring about call order.
//
//	sess := &mock.Session{}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/MrWong99/kaiwa/pkg/provider/vad"
)

// SpeechFrame returns a frame of size n that Session classifies as speech.
func SpeechFrame(n int) []byte {
	f := make([]byte, n)
	for i := range f {
		f[i] = 0x7f
	}
	return f
}

// SilenceFrame returns a frame of size n that Session classifies as silence.
func SilenceFrame(n int) []byte {
	return make([]byte, n)
}

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Script, if non-empty, supplies the result of successive IsSpeech calls.
	// Once exhausted, classification falls back to the first-byte rule.
	Script []bool

	// FrameSize, if non-zero, makes IsSpeech reject frames of any other length
	// with vad.ErrFrameSize.
	FrameSize int

	// IsSpeechErr, if non-nil, is returned by every IsSpeech call.
	IsSpeechErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// IsSpeechCallCount is the number of times IsSpeech was called.
	IsSpeechCallCount int

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// IsSpeech records the call and returns the next scripted or inferred result.
func (s *Session) IsSpeech(frame []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IsSpeechCallCount++
	if s.IsSpeechErr != nil {
		return false, s.IsSpeechErr
	}
	if s.FrameSize != 0 && len(frame) != s.FrameSize {
		return false, vad.ErrFrameSize
	}
	if len(s.Script) > 0 {
		v := s.Script[0]
		s.Script = s.Script[1:]
		return v, nil
	}
	return len(frame) > 0 && frame[0] != 0, nil
}

// Reset records the call by incrementing ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)
