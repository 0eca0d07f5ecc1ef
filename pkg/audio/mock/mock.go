// Package mock provides in-memory mock implementations of the
// [audio.CaptureDevice] and [audio.Player] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	dev := &mock.CaptureDevice{}
//	// ... hand dev to the code under test, which calls OnFrame and Start ...
//	dev.Push(frame) // delivered only while started
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/kaiwa/pkg/audio"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// ─── CaptureDevice ────────────────────────────────────────────────────────────

// CaptureDevice is a mock implementation of [audio.CaptureDevice]. Frames are
// injected with [CaptureDevice.Push] and delivered synchronously to the
// registered handler while the device is started.
type CaptureDevice struct {
	mu sync.Mutex

	// SampleRate is stamped onto pushed frames. Defaults to 16000.
	SampleRate int

	// StartErr, StopErr and CloseErr are returned by the matching methods.
	StartErr error
	StopErr  error
	CloseErr error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// Dropped counts frames pushed while the device was stopped.
	Dropped int

	handler audio.FrameHandler
	running bool
	closed  bool
	frames  int
}

// OnFrame implements [audio.CaptureDevice].
func (d *CaptureDevice) OnFrame(h audio.FrameHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// Start implements [audio.CaptureDevice].
func (d *CaptureDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStart++
	if d.StartErr != nil {
		return d.StartErr
	}
	if d.closed {
		return audio.ErrDeviceClosed
	}
	d.running = true
	return nil
}

// Stop implements [audio.CaptureDevice].
func (d *CaptureDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStop++
	if d.StopErr != nil {
		return d.StopErr
	}
	d.running = false
	return nil
}

// Close implements [audio.CaptureDevice].
func (d *CaptureDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	d.running = false
	d.closed = true
	return d.CloseErr
}

// Running reports whether the device is currently delivering frames.
func (d *CaptureDevice) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Push delivers one frame to the handler if the device is running. It returns
// whether the frame was delivered. The handler runs with the device lock held,
// mirroring a real device where Stop waits for the capture callback to finish.
func (d *CaptureDevice) Push(data []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running || d.handler == nil {
		d.Dropped++
		return false
	}
	rate := d.SampleRate
	if rate == 0 {
		rate = 16000
	}
	frameDur := time.Duration(len(data)/2) * time.Second / time.Duration(rate)
	d.handler(types.AudioFrame{
		Data:       data,
		SampleRate: rate,
		Timestamp:  time.Duration(d.frames) * frameDur,
	})
	d.frames++
	return true
}

// Ensure CaptureDevice implements audio.CaptureDevice at compile time.
var _ audio.CaptureDevice = (*CaptureDevice)(nil)

// ─── Player ───────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by Play after the hook runs.
	PlayErr error

	// CloseErr is returned by Close.
	CloseErr error

	// OnPlay, if set, is called synchronously inside Play before returning.
	// Tests use it to observe state (e.g. whether capture is paused) while a
	// clip is "playing", or to block until released.
	OnPlay func(ctx context.Context, clip audio.Clip)

	// Played records every clip passed to Play in order.
	Played []audio.Clip

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	p.mu.Lock()
	p.Played = append(p.Played, clip)
	hook := p.OnPlay
	err := p.PlayErr
	p.mu.Unlock()

	if hook != nil {
		hook(ctx, clip)
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

// Close implements [audio.Player].
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClose++
	return p.CloseErr
}

// PlayedClips returns a copy of the recorded clips.
func (p *Player) PlayedClips() []audio.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]audio.Clip, len(p.Played))
	copy(out, p.Played)
	return out
}

// Ensure Player implements audio.Player at compile time.
var _ audio.Player = (*Player)(nil)
