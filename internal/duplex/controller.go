// Package duplex keeps the microphone from hearing the system's own voice.
//
// [Controller] serializes every transition of the capture stream (start,
// pause, resume, close) behind one mutex so that the lifecycle owner and the
// playback path can never race on the device. [Gate] pauses capture around
// each playback and always resumes it, whatever the outcome of playback.
package duplex

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/kaiwa/pkg/audio"
	"github.com/MrWong99/kaiwa/pkg/errdefs"
)

// ErrNotStarted is returned by Pause when capture has not been started.
var ErrNotStarted = errors.New("duplex: capture not started")

// ErrClosed is returned by Start and Pause after Close.
var ErrClosed = errors.New("duplex: capture closed")

type phase int

const (
	phaseIdle phase = iota
	phaseRunning
	phaseClosed
)

// Stats reports how often capture was paused and released.
type Stats struct {
	Pauses  int64
	Resumes int64
}

// Controller owns a capture device's running/paused state.
//
// Pauses nest: the device is stopped on the first Pause and restarted when
// the matching number of Resume calls has been made.
type Controller struct {
	dev audio.CaptureDevice
	log *slog.Logger

	onPause func(paused bool)

	mu    sync.Mutex
	phase phase
	depth int
	stats Stats
}

// ControllerOption is a functional option for configuring a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

// WithPauseObserver registers a callback run (under the controller lock) each
// time the device is actually stopped for playback or restarted afterwards.
func WithPauseObserver(fn func(paused bool)) ControllerOption {
	return func(c *Controller) { c.onPause = fn }
}

// NewController wraps dev. The device is not started.
func NewController(dev audio.CaptureDevice, opts ...ControllerOption) *Controller {
	c := &Controller{dev: dev, log: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnFrame registers the frame handler on the underlying device.
func (c *Controller) OnFrame(h audio.FrameHandler) {
	c.dev.OnFrame(h)
}

// Start begins frame delivery. Starting a running controller is a no-op.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.phase {
	case phaseClosed:
		return ErrClosed
	case phaseRunning:
		return nil
	}
	if err := c.dev.Start(); err != nil {
		return errdefs.Device("start capture", err)
	}
	c.phase = phaseRunning
	c.log.Debug("capture started")
	return nil
}

// Pause stops frame delivery until the matching Resume. It fails if capture
// is not running, in which case no Resume is owed.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.phase {
	case phaseClosed:
		return ErrClosed
	case phaseIdle:
		return ErrNotStarted
	}
	if c.depth == 0 {
		if err := c.dev.Stop(); err != nil {
			return errdefs.Device("pause capture", err)
		}
		if c.onPause != nil {
			c.onPause(true)
		}
	}
	c.depth++
	c.stats.Pauses++
	return nil
}

// Resume releases one Pause. When the last pause is released the device is
// restarted. A Resume after Close still releases its pause but leaves the
// device closed.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.depth == 0 {
		return fmt.Errorf("duplex: resume without matching pause")
	}
	c.depth--
	c.stats.Resumes++
	if c.depth > 0 || c.phase == phaseClosed {
		return nil
	}
	if c.onPause != nil {
		c.onPause(false)
	}
	if err := c.dev.Start(); err != nil {
		return errdefs.Device("resume capture", err)
	}
	return nil
}

// Close stops capture for good and releases the device. Calling Close more
// than once is safe.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == phaseClosed {
		return nil
	}
	wasPaused := c.depth > 0
	c.phase = phaseClosed
	if wasPaused && c.onPause != nil {
		c.onPause(false)
	}
	if err := c.dev.Close(); err != nil {
		return errdefs.Device("close capture", err)
	}
	c.log.Debug("capture closed", "pauses", c.stats.Pauses, "resumes", c.stats.Resumes)
	return nil
}

// Running reports whether frames are currently being delivered.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == phaseRunning && c.depth == 0
}

// Paused reports whether capture is currently muted for playback.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depth > 0
}

// Stats returns the pause and resume counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
