// Package segmenter turns a continuous stream of fixed-size PCM frames into
// discrete utterances.
//
// Each frame is classified by a VAD session. Speech frames are appended to
// the utterance buffer and reset the silence counter; non-speech frames only
// advance the counter and are never buffered. Once the counter exceeds the
// silence threshold the utterance ends: buffers with no more than MinFrames
// speech frames are discarded as noise, anything longer is concatenated into
// a [types.SpeechSegment] and handed to the emit callback.
//
// The silence counter is not reset when an utterance ends. Every further
// silent frame re-evaluates the (now empty) buffer, which is a no-op, until
// speech resumes.
//
// Process is synchronous and allocation-light so it can run inline inside a
// capture callback. It does no I/O; the emit callback must not block.
package segmenter

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/provider/vad"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// Defaults for Config.
const (
	DefaultSilenceThreshold = 20
	DefaultMinFrames        = 20
)

// ErrMalformedFrame is returned by Process for frames whose size does not
// match the configured frame size. It is classified as a configuration error:
// the capture stream and the segmenter disagree about the frame format.
var ErrMalformedFrame = errdefs.Configuration("", errors.New("segmenter: malformed frame"))

// State is the segmenter's position in an utterance.
type State int32

const (
	// Idle means no speech is buffered.
	Idle State = iota

	// Accumulating means at least one speech frame is buffered.
	Accumulating
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Accumulating:
		return "ACCUMULATING"
	default:
		return "UNKNOWN"
	}
}

// Config holds segmentation thresholds.
type Config struct {
	// FrameBytes is the exact byte length of every frame. Required.
	FrameBytes int

	// SampleRate of the frames in Hz. Required.
	SampleRate int

	// SilenceThreshold is the number of consecutive non-speech frames that
	// may occur inside an utterance. The utterance ends on the frame that
	// pushes the counter past this value. Default 20.
	SilenceThreshold int

	// MinFrames is the largest speech-frame count still treated as noise.
	// Utterances must contain more than MinFrames speech frames to be emitted.
	// Default 20.
	MinFrames int

	// MaxFrames, if positive, force-emits the buffer once it holds this many
	// speech frames so a monologue without pauses cannot grow unbounded.
	// Zero disables the limit.
	MaxFrames int
}

// Thresholds are the parameters that may be changed while running.
type Thresholds struct {
	SilenceThreshold int
	MinFrames        int
	MaxFrames        int
}

// EmitFunc receives a completed utterance. It runs on the caller's goroutine
// and must not block.
type EmitFunc func(types.SpeechSegment)

// NoiseFunc receives the number of speech frames discarded as noise.
type NoiseFunc func(frames int)

// Segmenter is the VAD state machine. Process must be called from a single
// goroutine; Tune and State are safe to call concurrently with it.
type Segmenter struct {
	det        vad.SessionHandle
	emit       EmitFunc
	onNoise    NoiseFunc
	frameBytes int
	sampleRate int

	silenceThreshold atomic.Int64
	minFrames        atomic.Int64
	maxFrames        atomic.Int64
	state            atomic.Int32

	// Owned by the Process goroutine.
	silence int
	frames  int
	buf     []byte
	start   time.Duration
}

// Option is a functional option for configuring a Segmenter.
type Option func(*Segmenter)

// WithNoiseHandler registers a diagnostic callback for discarded noise
// bursts. Empty buffers never reach it.
func WithNoiseHandler(fn NoiseFunc) Option {
	return func(s *Segmenter) { s.onNoise = fn }
}

// New creates a Segmenter that classifies frames with det and passes finished
// utterances to emit. Zero thresholds take their defaults.
func New(det vad.SessionHandle, cfg Config, emit EmitFunc, opts ...Option) (*Segmenter, error) {
	if det == nil {
		return nil, errdefs.Configuration("segmenter", errors.New("nil VAD session"))
	}
	if emit == nil {
		return nil, errdefs.Configuration("segmenter", errors.New("nil emit callback"))
	}
	if cfg.FrameBytes <= 0 || cfg.FrameBytes%2 != 0 {
		return nil, errdefs.Configuration("segmenter", fmt.Errorf("frame size must be a positive even byte count, got %d", cfg.FrameBytes))
	}
	if cfg.SampleRate <= 0 {
		return nil, errdefs.Configuration("segmenter", fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate))
	}
	s := &Segmenter{
		det:        det,
		emit:       emit,
		frameBytes: cfg.FrameBytes,
		sampleRate: cfg.SampleRate,
	}
	if err := s.Tune(Thresholds{
		SilenceThreshold: cfg.SilenceThreshold,
		MinFrames:        cfg.MinFrames,
		MaxFrames:        cfg.MaxFrames,
	}); err != nil {
		return nil, err
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Tune replaces the thresholds. Zero SilenceThreshold or MinFrames take their
// defaults. The new values apply from the next processed frame.
func (s *Segmenter) Tune(t Thresholds) error {
	if t.SilenceThreshold < 0 || t.MinFrames < 0 || t.MaxFrames < 0 {
		return errdefs.Configuration("segmenter", fmt.Errorf("thresholds must not be negative: %+v", t))
	}
	if t.SilenceThreshold == 0 {
		t.SilenceThreshold = DefaultSilenceThreshold
	}
	if t.MinFrames == 0 {
		t.MinFrames = DefaultMinFrames
	}
	if t.MaxFrames != 0 && t.MaxFrames <= t.MinFrames {
		return errdefs.Configuration("segmenter", fmt.Errorf("max frames (%d) must exceed min frames (%d)", t.MaxFrames, t.MinFrames))
	}
	s.silenceThreshold.Store(int64(t.SilenceThreshold))
	s.minFrames.Store(int64(t.MinFrames))
	s.maxFrames.Store(int64(t.MaxFrames))
	return nil
}

// Thresholds returns the thresholds currently in effect.
func (s *Segmenter) Thresholds() Thresholds {
	return Thresholds{
		SilenceThreshold: int(s.silenceThreshold.Load()),
		MinFrames:        int(s.minFrames.Load()),
		MaxFrames:        int(s.maxFrames.Load()),
	}
}

// State returns the current state.
func (s *Segmenter) State() State { return State(s.state.Load()) }

// Process consumes one frame. It returns an error wrapping
// [ErrMalformedFrame] for frames of the wrong size and the detector's error
// if classification fails; in both cases segmentation state is unchanged.
func (s *Segmenter) Process(frame types.AudioFrame) error {
	if len(frame.Data) != s.frameBytes {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedFrame, len(frame.Data), s.frameBytes)
	}
	speech, err := s.det.IsSpeech(frame.Data)
	if err != nil {
		if errors.Is(err, vad.ErrFrameSize) {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return fmt.Errorf("segmenter: classify frame: %w", err)
	}

	if speech {
		s.silence = 0
		if s.frames == 0 {
			s.start = frame.Timestamp
			s.state.Store(int32(Accumulating))
		}
		s.buf = append(s.buf, frame.Data...)
		s.frames++
		if limit := int(s.maxFrames.Load()); limit > 0 && s.frames >= limit {
			s.flush()
		}
		return nil
	}

	s.silence++
	if s.silence <= int(s.silenceThreshold.Load()) {
		return nil
	}
	s.endUtterance()
	return nil
}

func (s *Segmenter) endUtterance() {
	if s.frames == 0 {
		return
	}
	if s.frames <= int(s.minFrames.Load()) {
		n := s.frames
		s.reset()
		if s.onNoise != nil {
			s.onNoise(n)
		}
		return
	}
	s.flush()
}

// flush emits the buffer and returns to Idle. The buffer is handed off, not
// reused, so the emitted segment is never mutated afterwards.
func (s *Segmenter) flush() {
	seg := types.SpeechSegment{
		PCM:        s.buf,
		SampleRate: s.sampleRate,
		Frames:     s.frames,
		Start:      s.start,
	}
	s.buf = nil
	s.reset()
	s.emit(seg)
}

func (s *Segmenter) reset() {
	s.buf = s.buf[:0]
	s.frames = 0
	s.start = 0
	s.state.Store(int32(Idle))
}
