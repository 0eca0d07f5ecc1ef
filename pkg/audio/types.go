// Package audio defines the device interfaces used by the voice pipeline and
// a handful of 16-bit PCM helpers.
//
// The two primary abstractions are:
//
//   - [CaptureDevice] delivers fixed-size microphone frames to a registered
//     [FrameHandler] on the device's real-time thread.
//   - [Player] renders a decoded [Clip] and blocks until it has been heard.
//
// Implementations live in sub-packages (audio/malgo, audio/oto, audio/mock).
// This package lives under pkg/ because external code is expected to supply
// alternative devices.
package audio

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/kaiwa/pkg/types"
)

// ErrDeviceClosed is returned by device methods called after Close.
var ErrDeviceClosed = errors.New("audio: device closed")

// FrameHandler receives one captured frame. It is invoked on the capture
// device's real-time thread and must never block.
type FrameHandler func(frame types.AudioFrame)

// CaptureConfig selects and shapes a capture stream.
type CaptureConfig struct {
	// DeviceID selects the input device. Empty selects the system default.
	// For audio/malgo this is the index printed by device listing.
	DeviceID string

	// SampleRate in Hz. The pipeline runs at 16000.
	SampleRate int

	// FrameSamples is the number of mono samples per delivered frame
	// (480 at 16 kHz for 30 ms frames).
	FrameSamples int
}

// FrameBytes returns the byte length of one 16-bit mono frame.
func (c CaptureConfig) FrameBytes() int { return c.FrameSamples * 2 }

// FrameDuration returns the duration of one frame.
func (c CaptureConfig) FrameDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameSamples) * time.Second / time.Duration(c.SampleRate)
}

// CaptureDevice wraps a hardware input stream.
//
// Start and Stop may be called repeatedly to pause and resume frame delivery.
// Callers serialize these calls; see internal/duplex.
type CaptureDevice interface {
	// OnFrame registers the handler that receives frames. It must be called
	// before the first Start. Later registrations replace the earlier one.
	OnFrame(h FrameHandler)

	// Start begins (or resumes) frame delivery.
	Start() error

	// Stop halts frame delivery. No handler invocation begins after Stop
	// returns.
	Stop() error

	// Close stops the stream and releases the device. Calling Close more than
	// once is safe.
	Close() error
}

// DeviceInfo describes an input device available for capture.
type DeviceInfo struct {
	ID        string
	Name      string
	IsDefault bool
}

// Format describes the sample rate and channel count of 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// Clip is decoded 16-bit little-endian interleaved PCM ready for playback.
type Clip struct {
	PCM    []byte
	Format Format
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.Format.SampleRate <= 0 || c.Format.Channels <= 0 {
		return 0
	}
	frames := len(c.PCM) / (2 * c.Format.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.Format.SampleRate)
}

// Player renders audio to an output device.
type Player interface {
	// Play renders clip and blocks until it has finished playing or ctx is
	// cancelled. Implementations convert the clip to their output format.
	Play(ctx context.Context, clip Clip) error

	// Close releases the output device.
	Close() error
}
